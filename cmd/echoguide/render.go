package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/stats"
	"github.com/calvinmclean/echoguide/telemetry"
)

var (
	colorClear   = lipgloss.Color("#00CC33")
	colorNear    = lipgloss.Color("#FFAA00")
	colorAlert   = lipgloss.Color("#FF3300")
	colorMuted   = lipgloss.Color("#777777")
	colorHeading = lipgloss.Color("#00FFAA")

	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleHeading = lipgloss.NewStyle().Foreground(colorHeading).Bold(true)
	styleAlert   = lipgloss.NewStyle().Foreground(colorAlert).Bold(true)
	styleFault   = lipgloss.NewStyle().Foreground(colorAlert)
	styleLabel   = lipgloss.NewStyle().Width(16)

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

// levelBar draws an intensity level as a fixed width bar
func levelBar(level echoguide.IntensityLevel, width int) string {
	n := min(int(level), width)
	return strings.Repeat("█", n) + strings.Repeat("·", width-n)
}

func levelStyle(cmd echoguide.FeedbackCommand) lipgloss.Style {
	switch {
	case cmd.Alert:
		return styleAlert
	case cmd.Level == echoguide.LevelOff:
		return lipgloss.NewStyle().Foreground(colorClear)
	default:
		return lipgloss.NewStyle().Foreground(colorNear)
	}
}

func renderSnapshot(s echoguide.Snapshot) string {
	dist := "   ---  "
	if s.Estimate.Valid {
		dist = fmt.Sprintf("%6.1fcm", s.Estimate.Distance)
	}

	line := fmt.Sprintf("%s %-5s %s %s %-3s",
		styleMuted.Render(s.Timestamp.Format("15:04:05.000")),
		s.Side,
		dist,
		levelStyle(s.Command).Render(levelBar(s.Command.Level, 8)),
		s.Command.Level,
	)
	if s.Command.Alert {
		line += " " + styleAlert.Render("ALERT")
	}
	return line
}

func renderFault(f echoguide.Fault) string {
	return styleFault.Render(fmt.Sprintf("%s fault %s", f.Timestamp.Format("15:04:05.000"), f.Error()))
}

// console prints telemetry for a person watching the terminal
type console struct {
	w io.Writer
}

var _ telemetry.Sink = console{}

func newConsole(w io.Writer) console {
	return console{w: w}
}

// PublishSnapshot implements telemetry.Sink.
func (c console) PublishSnapshot(s echoguide.Snapshot) {
	fmt.Fprintln(c.w, renderSnapshot(s))
}

// PublishFault implements telemetry.Sink.
func (c console) PublishFault(f echoguide.Fault) {
	fmt.Fprintln(c.w, renderFault(f))
}

func renderConfig(cfg config.DeviceConfig) string {
	levels := make([]string, len(cfg.Levels))
	for i, d := range cfg.Levels {
		levels[i] = fmt.Sprintf("L%d≤%s", i+1, strconv.FormatFloat(d, 'f', -1, 64))
	}

	rows := []string{
		styleHeading.Render("Config"),
		styleLabel.Render("levels") + strings.Join(levels, " "),
		styleLabel.Render("critical") + strconv.FormatFloat(cfg.Critical, 'f', -1, 64) + "cm",
		styleLabel.Render("period") + cfg.CyclePeriod.String(),
		styleLabel.Render("window") + strconv.Itoa(cfg.WindowSize),
		styleLabel.Render("dropout") + strconv.Itoa(cfg.DropoutLimit),
	}
	return stylePanel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

type sideReport struct {
	Side       echoguide.Side
	Summary    stats.Summary
	AlertRatio float64
	Faults     map[string]int
}

func renderStats(reports []sideReport) string {
	panels := make([]string, 0, len(reports))
	for _, r := range reports {
		rows := []string{
			styleHeading.Render(r.Side.String()),
			styleLabel.Render("samples") + strconv.Itoa(r.Summary.Count),
		}
		if r.Summary.Count > 0 {
			rows = append(rows,
				styleLabel.Render("mean") + fmt.Sprintf("%.1fcm ± %.1f", r.Summary.Mean, r.Summary.StdDev),
				styleLabel.Render("closest") + fmt.Sprintf("%.1fcm", r.Summary.Min),
				styleLabel.Render("median") + fmt.Sprintf("%.1fcm", r.Summary.Median),
				styleLabel.Render("p90") + fmt.Sprintf("%.1fcm", r.Summary.P90),
			)
		}
		rows = append(rows, styleLabel.Render("alert") + fmt.Sprintf("%.1f%%", r.AlertRatio*100))

		for _, component := range slices.Sorted(maps.Keys(r.Faults)) {
			rows = append(rows, styleFault.Render(styleLabel.Render(component+" faults")+strconv.Itoa(r.Faults[component])))
		}

		panels = append(panels, stylePanel.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, panels...)
}
