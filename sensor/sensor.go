// Package sensor turns trigger/echo timing from an ultrasonic transducer into RawSamples.
package sensor

import (
	"context"
	"math"
	"time"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/internal/timeutil"
)

const (
	// SpeedOfSound is in meters / second, at sea level, at 20 celsius
	SpeedOfSound = 343.0

	// TriggerPulse is how long the trigger pin is held high to start a measurement
	TriggerPulse = 10 * time.Microsecond

	// stepsPerCentimeter sets the resolution distances are rounded to. It is far below what the
	// transducer can resolve and keeps nanosecond truncation from moving a reading across a threshold.
	stepsPerCentimeter = 1000

	// echoMargin is added to the round trip time of the maximum range before giving up on an echo
	echoMargin = 2 * time.Millisecond
)

// Transducer drives one trigger/echo pair. AwaitEcho must yield while waiting so the other side's
// pipeline keeps running.
type Transducer interface {
	// Trigger emits the trigger pulse
	Trigger() error
	// AwaitEcho returns the width of the echo pulse, or false if no echo arrived within timeout or
	// ctx was cancelled
	AwaitEcho(ctx context.Context, timeout time.Duration) (time.Duration, bool)
}

// Config is the sensor's rated range in centimeters
type Config struct {
	MinRange float64
	MaxRange float64
}

// DefaultConfig is the rated range of an HC-SR04
func DefaultConfig() Config {
	return Config{MinRange: 2, MaxRange: 400}
}

// Sensor produces distance samples for one physical transducer
type Sensor struct {
	side       echoguide.Side
	transducer Transducer
	cfg        Config
	clock      timeutil.Clock
	timeout    time.Duration
}

// New creates a Sensor. A nil clock uses the real clock.
func New(side echoguide.Side, t Transducer, cfg Config, clock timeutil.Clock) *Sensor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sensor{
		side:       side,
		transducer: t,
		cfg:        cfg,
		clock:      clock,
		timeout:    EchoTimeout(cfg.MaxRange),
	}
}

// Side returns the side this sensor is mounted on
func (s *Sensor) Side() echoguide.Side {
	return s.side
}

// EchoTimeout is how long to wait for an echo from an obstacle at maxRange centimeters
func EchoTimeout(maxRange float64) time.Duration {
	roundTripSeconds := 2 * (maxRange / 100) / SpeedOfSound
	return time.Duration(roundTripSeconds*float64(time.Second)) + echoMargin
}

// PulseToCentimeters converts a round trip echo pulse into a one-way distance
func PulseToCentimeters(pulse time.Duration) float64 {
	centimetersPerMicrosecond := SpeedOfSound * 100 / 1e6
	oneWayMicroseconds := float64(pulse) / float64(time.Microsecond) / 2
	return math.Round(oneWayMicroseconds*centimetersPerMicrosecond*stepsPerCentimeter) / stepsPerCentimeter
}

// CentimetersToPulse is the round trip echo width for an obstacle at d centimeters, rounded to the
// nearest nanosecond
func CentimetersToPulse(d float64) time.Duration {
	centimetersPerMicrosecond := SpeedOfSound * 100 / 1e6
	return time.Duration(math.Round(2 * d / centimetersPerMicrosecond * float64(time.Microsecond)))
}

// EchoTimeout returns the bound on a single AwaitEcho
func (s *Sensor) EchoTimeout() time.Duration {
	return s.timeout
}

// Trigger starts a measurement
func (s *Sensor) Trigger() error {
	return s.transducer.Trigger()
}

// Await waits for the echo of the last Trigger. A missing echo or an out-of-range distance is
// reported as an invalid sample, which means no obstacle in range.
func (s *Sensor) Await(ctx context.Context) echoguide.RawSample {
	pulse, ok := s.transducer.AwaitEcho(ctx, s.timeout)
	sample := echoguide.RawSample{
		Side:      s.side,
		Timestamp: s.clock.Now(),
	}
	if !ok {
		return sample
	}

	sample.Distance = PulseToCentimeters(pulse)
	sample.Valid = sample.Distance >= s.cfg.MinRange && sample.Distance <= s.cfg.MaxRange
	return sample
}

// Measure triggers and waits for one sample. A trigger error is returned alongside an invalid sample.
func (s *Sensor) Measure(ctx context.Context) (echoguide.RawSample, error) {
	if err := s.Trigger(); err != nil {
		return echoguide.RawSample{Side: s.side, Timestamp: s.clock.Now()}, err
	}
	return s.Await(ctx), nil
}
