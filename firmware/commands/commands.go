package commands

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/calvinmclean/echoguide/config"
)

// Command is a single-byte serial command. Commands with HasInput read the rest of the line as input.
type Command struct {
	Flag        byte
	HasInput    bool
	Run         func(Controller, []byte, io.Writer) error
	Description string
}

// Controller is used to control a device
type Controller interface {
	Config() config.DeviceConfig
	UpdateConfig(config.DeviceConfig) error
	Debug() string
	Verbose()

	// I/O
	ReadByte() (byte, error)
}

var (
	LevelsCommand = &Command{
		Flag:        'L',
		HasInput:    true,
		Run:         setField(setLevels),
		Description: "Set intensity level thresholds in cm, farthest first. Input: comma-separated distances.",
	}
	CriticalCommand = &Command{
		Flag:        'C',
		HasInput:    true,
		Run:         setField(setCritical),
		Description: "Set the critical alert distance in cm.",
	}
	PeriodCommand = &Command{
		Flag:        'P',
		HasInput:    true,
		Run:         setField(setPeriod),
		Description: "Set the measurement cycle period in milliseconds.",
	}
	WindowCommand = &Command{
		Flag:        'W',
		HasInput:    true,
		Run:         setField(setWindow),
		Description: "Set the filter window size. This resets both filters.",
	}
	DropoutCommand = &Command{
		Flag:        'X',
		HasInput:    true,
		Run:         setField(setDropout),
		Description: "Set how many consecutive missed echoes are bridged before an estimate is dropped.",
	}
	ApplyCommand = &Command{
		Flag:     'A',
		HasInput: true,
		Run: func(c Controller, input []byte, _ io.Writer) error {
			fields := strings.Fields(string(input))
			if len(fields) == 0 {
				return errors.New("invalid input: at least one field is required")
			}

			cfg := c.Config()
			for _, f := range fields {
				set, ok := fieldSetters[f[0]]
				if !ok {
					return errors.New("invalid input: unknown field " + f)
				}
				if err := set(&cfg, []byte(f[1:])); err != nil {
					return err
				}
			}
			return c.UpdateConfig(cfg)
		},
		Description: "Set several fields at once. Input: space-separated L/C/P/W/X fields, like 'L300,100 C50 W3'.",
	}
	ResetCommand = &Command{
		Flag: 'R',
		Run: func(c Controller, _ []byte, _ io.Writer) error {
			return c.UpdateConfig(config.Default())
		},
		Description: "Restore the default config.",
	}
	GetConfigCommand = &Command{
		Flag: 'G',
		Run: func(c Controller, _ []byte, out io.Writer) error {
			_, err := io.WriteString(out, EncodeConfig(c.Config())+"\r\n")
			return err
		},
		Description: "Print the active config as an A command that recreates it.",
	}
	DebugCommand = &Command{
		Flag: 'D',
		Run: func(c Controller, _ []byte, out io.Writer) error {
			_, err := io.WriteString(out, c.Debug()+"\r\n")
			return err
		},
		Description: "Print the current state.",
	}
	VerboseCommand = &Command{
		Flag: 'V',
		Run: func(c Controller, _ []byte, _ io.Writer) error {
			c.Verbose()
			return nil
		},
		Description: "Enable verbose output.",
	}
	HelpCommand = &Command{
		Flag:        'H',
		Description: "Show all available commands and their descriptions.",
		Run: func(c Controller, _ []byte, out io.Writer) error {
			_, _ = io.WriteString(out, "Available Commands:\r\n")
			for _, cmd := range commands {
				_, _ = io.WriteString(out, string(cmd.Flag)+": "+cmd.Description+"\r\n")
			}
			return nil
		},
	}
)

var commands = []*Command{
	LevelsCommand,
	CriticalCommand,
	PeriodCommand,
	WindowCommand,
	DropoutCommand,
	ApplyCommand,
	ResetCommand,
	GetConfigCommand,
	DebugCommand,
	VerboseCommand,
}

type fieldSetter func(*config.DeviceConfig, []byte) error

var fieldSetters = map[byte]fieldSetter{
	'L': setLevels,
	'C': setCritical,
	'P': setPeriod,
	'W': setWindow,
	'X': setDropout,
}

// setField runs a single field setter against the active config
func setField(set fieldSetter) func(Controller, []byte, io.Writer) error {
	return func(c Controller, input []byte, _ io.Writer) error {
		cfg := c.Config()
		if err := set(&cfg, input); err != nil {
			return err
		}
		return c.UpdateConfig(cfg)
	}
}

func setLevels(cfg *config.DeviceConfig, input []byte) error {
	if len(input) == 0 {
		return errors.New("invalid input: at least one level is required")
	}

	parts := strings.Split(string(input), ",")
	levels := make([]float64, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return errors.New("invalid input: " + string(input))
		}
		levels = append(levels, d)
	}
	cfg.Levels = levels
	return nil
}

func setCritical(cfg *config.DeviceConfig, input []byte) error {
	d, err := strconv.ParseFloat(string(input), 64)
	if err != nil {
		return errors.New("invalid input: " + string(input))
	}
	cfg.Critical = d
	return nil
}

func setPeriod(cfg *config.DeviceConfig, input []byte) error {
	ms, err := atoi(input)
	if err != nil {
		return err
	}
	cfg.CyclePeriod = time.Duration(ms) * time.Millisecond
	return nil
}

func setWindow(cfg *config.DeviceConfig, input []byte) error {
	n, err := atoi(input)
	if err != nil {
		return err
	}
	cfg.WindowSize = n
	return nil
}

func setDropout(cfg *config.DeviceConfig, input []byte) error {
	n, err := atoi(input)
	if err != nil {
		return err
	}
	cfg.DropoutLimit = n
	return nil
}

// EncodeConfig returns a single A command that sets a device to cfg in one update
func EncodeConfig(cfg config.DeviceConfig) string {
	levels := make([]string, len(cfg.Levels))
	for i, d := range cfg.Levels {
		levels[i] = strconv.FormatFloat(d, 'f', -1, 64)
	}

	fields := []string{
		string(LevelsCommand.Flag) + strings.Join(levels, ","),
		string(CriticalCommand.Flag) + strconv.FormatFloat(cfg.Critical, 'f', -1, 64),
		string(PeriodCommand.Flag) + strconv.FormatInt(cfg.CyclePeriod.Milliseconds(), 10),
		string(WindowCommand.Flag) + strconv.Itoa(cfg.WindowSize),
		string(DropoutCommand.Flag) + strconv.Itoa(cfg.DropoutLimit),
	}
	return string(ApplyCommand.Flag) + " " + strings.Join(fields, " ")
}

func atoi(input []byte) (int, error) {
	n, err := strconv.Atoi(string(input))
	if err != nil {
		return 0, errors.New("invalid input: " + string(input))
	}
	return n, nil
}

func isEOL(b byte) bool {
	return b == '\n' || b == '\r'
}

// Run reads commands from c until ReadByte returns io.EOF. Other read errors mean no data is available
// yet and are retried. Output and errors are written to out.
func Run(c Controller, out io.Writer) {
	cmdMap := map[byte]*Command{
		HelpCommand.Flag: HelpCommand,
	}

	for _, cmd := range commands {
		cmdMap[cmd.Flag] = cmd
	}

	var in []byte
	for {
		cmdIn, err := c.ReadByte()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			continue
		}

		cmd, ok := cmdMap[cmdIn]
		if !ok {
			continue
		}

		in = in[:0]
		if cmd.HasInput {
			for {
				b, err := c.ReadByte()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					continue
				}
				if isEOL(b) {
					break
				}
				in = append(in, b)
			}
		}

		err = cmd.Run(c, in, out)
		if err != nil {
			_, _ = io.WriteString(out, "error: "+err.Error()+"\r\n")
		}
	}
}
