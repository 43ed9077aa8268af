package main_test

import (
	"bufio"
	"os"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/firmware/commands"
	"github.com/calvinmclean/echoguide/telemetry"
)

// These tests run against a connected device. Set ECHOGUIDE_PORT to its serial port, like
// /dev/cu.usbmodem2101, to enable them.
func openPort(t *testing.T) serial.Port {
	t.Helper()

	path := os.Getenv("ECHOGUIDE_PORT")
	if path == "" {
		t.Skip("ECHOGUIDE_PORT is not set")
	}

	port, err := serial.Open(path, &serial.Mode{BaudRate: 115200})
	if err != nil {
		t.Fatalf("unexpected error opening serial connection: %v", err)
	}
	t.Cleanup(func() { port.Close() })

	err = port.SetReadTimeout(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error setting read timeout: %v", err)
	}
	return port
}

// readLines collects console lines that aren't telemetry until timeout
func readLines(t *testing.T, port serial.Port, want int, timeout time.Duration) []string {
	t.Helper()

	var lines []string
	deadline := time.Now().Add(timeout)
	reader := bufio.NewReader(port)
	for len(lines) < want && time.Now().Before(deadline) {
		// a read timeout returns what was read so far, which is usually nothing
		line, _ := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if _, err := telemetry.Decode(line); err != nil {
			lines = append(lines, line)
		}
	}
	return lines
}

func send(t *testing.T, port serial.Port, in string) {
	t.Helper()
	_, err := port.Write([]byte(in))
	if err != nil {
		t.Fatalf("unexpected error writing serial: %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	port := openPort(t)

	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{
			"Reset",
			"R\nG",
			[]string{commands.EncodeConfig(config.Default())},
		},
		{
			"SetLevelsAndCritical",
			"L250,150,75\nC120\nG",
			[]string{"A L250,150,75 C120 P60 W5 X5"},
		},
		{
			"InvalidKeepsPrevious",
			"L50,100\nG",
			[]string{
				"error: invalid config: level 2 distance 100 exceeds level 1 distance 50",
				"A L250,150,75 C120 P60 W5 X5",
			},
		},
		{
			"ApplyAll",
			"A L200,100 C40 P50 W3 X4\nG",
			[]string{"A L200,100 C40 P50 W3 X4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, port, tt.in)
			lines := readLines(t, port, len(tt.expected), 2*time.Second)

			// the device may interleave log lines prefixed with #
			var got []string
			for _, l := range lines {
				if !strings.HasPrefix(l, "#") {
					got = append(got, l)
				}
			}
			if strings.Join(got, "\n") != strings.Join(tt.expected, "\n") {
				t.Errorf("expected=%q, got=%q", tt.expected, got)
			}
		})
	}

	send(t, port, "R\n")
}

func TestTelemetry(t *testing.T) {
	port := openPort(t)

	reader := bufio.NewReader(port)
	deadline := time.Now().Add(2 * time.Second)
	seen := map[string]bool{}
	for len(seen) < 2 && time.Now().Before(deadline) {
		line, _ := reader.ReadString('\n')
		rec, err := telemetry.Decode(line)
		if err != nil || rec.Snapshot == nil {
			continue
		}
		seen[rec.Snapshot.Side.Short()] = true
	}

	if !seen["L"] || !seen["R"] {
		t.Errorf("expected snapshots from both sides, got %v", seen)
	}
}
