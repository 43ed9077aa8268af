// Package monitor connects a host to the device's USB serial console: it finds and opens the port,
// decodes telemetry into a Sink and pushes config commands.
package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/firmware/commands"
	"github.com/calvinmclean/echoguide/internal/monitoring"
	"github.com/calvinmclean/echoguide/telemetry"
)

// DefaultBaudRate matches the firmware's USB CDC console
const DefaultBaudRate = 115200

var ErrNoUSBSerial = errors.New("no USB serial ports found")

// GetSerialPorts lists USB serial ports by name
func GetSerialPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("error listing serial ports: %w", err)
	}

	var result []string
	for _, port := range ports {
		if port.IsUSB {
			result = append(result, port.Name)
		}
	}
	if len(result) == 0 {
		return nil, ErrNoUSBSerial
	}

	return result, nil
}

// Open opens a serial port. A baud of 0 uses DefaultBaudRate.
func Open(path string, baud int) (serial.Port, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %q: %w", path, err)
	}
	return port, nil
}

// Stream decodes telemetry lines from r into sink until r is exhausted or ctx is done. If r is also
// an io.Closer it is closed when ctx is done so a blocked read returns. Console output that isn't
// telemetry is logged.
func Stream(ctx context.Context, r io.Reader, sink telemetry.Sink) error {
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = c.Close()
		})
		defer stop()
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		rec, err := telemetry.Decode(line)
		switch {
		case errors.Is(err, telemetry.ErrNotTelemetry):
			monitoring.Logf("device: %s", line)
			continue
		case err != nil:
			monitoring.Logf("invalid telemetry %q: %v", line, err)
			continue
		}

		rec.Publish(sink)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading serial: %w", err)
	}
	return nil
}

// PushConfig validates cfg and writes it to the device as one command, so the device installs it in
// a single update
func PushConfig(w io.Writer, cfg config.DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	line := commands.EncodeConfig(cfg)
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return fmt.Errorf("error writing %q: %w", line, err)
	}
	return nil
}
