// Package monitoring holds the diagnostic logger shared by the control core.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf. The firmware
// swaps it for a serial console printer and tests may mute it.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
