// Package mapper converts a StableEstimate into a FeedbackCommand
package mapper

import (
	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/config"
)

// Map is a pure function of its inputs: the same estimate and config always produce the same command.
func Map(est echoguide.StableEstimate, cfg config.DeviceConfig) echoguide.FeedbackCommand {
	cmd := echoguide.FeedbackCommand{Side: est.Side, Level: echoguide.LevelOff}
	if !est.Valid {
		return cmd
	}

	cmd.Level = Level(est.Distance, cfg.Levels)
	cmd.Alert = est.Distance < cfg.Critical
	return cmd
}

// Level returns the level with the smallest threshold that still covers distance. Thresholds are
// non-increasing, so that is the highest index covering it, and equal thresholds resolve upward.
func Level(distance float64, levels []float64) echoguide.IntensityLevel {
	for i := len(levels) - 1; i >= 0; i-- {
		if distance <= levels[i] {
			return echoguide.IntensityLevel(i + 1)
		}
	}
	return echoguide.LevelOff
}
