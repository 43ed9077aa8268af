//go:build tinygo

package device

import (
	"context"
	"machine"
	"runtime"
	"time"

	"tinygo.org/x/drivers/hcsr04"

	"github.com/calvinmclean/echoguide/sensor"
)

// transducer drives an HC-SR04. The driver's own ReadPulse busy-waits, which would starve the other
// side's goroutine, so the driver only sets up the pins and they are polled here with a yield
// between reads.
type transducer struct {
	trigger machine.Pin
	echo    machine.Pin
}

var _ sensor.Transducer = (*transducer)(nil)

func newTransducer(cfg SensorConfig) *transducer {
	dev := hcsr04.New(cfg.Trigger, cfg.Echo)
	dev.Configure()
	return &transducer{trigger: cfg.Trigger, echo: cfg.Echo}
}

// Trigger holds the trigger pin high for the trigger pulse
func (t *transducer) Trigger() error {
	t.trigger.Low()
	time.Sleep(2 * time.Microsecond)
	t.trigger.High()
	time.Sleep(sensor.TriggerPulse)
	t.trigger.Low()
	return nil
}

// AwaitEcho waits for the echo pin to rise and then measures how long it stays high
func (t *transducer) AwaitEcho(ctx context.Context, timeout time.Duration) (time.Duration, bool) {
	deadline := time.Now().Add(timeout)

	for !t.echo.Get() {
		if time.Now().After(deadline) || ctx.Err() != nil {
			return 0, false
		}
		runtime.Gosched()
	}

	start := time.Now()
	for t.echo.Get() {
		if time.Now().After(deadline) || ctx.Err() != nil {
			return 0, false
		}
		runtime.Gosched()
	}
	return time.Since(start), true
}
