package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/internal/timeutil"
)

type fakeTransducer struct {
	pulse      time.Duration
	echo       bool
	triggerErr error

	triggers    int
	lastTimeout time.Duration
}

func (f *fakeTransducer) Trigger() error {
	f.triggers++
	return f.triggerErr
}

func (f *fakeTransducer) AwaitEcho(_ context.Context, timeout time.Duration) (time.Duration, bool) {
	f.lastTimeout = timeout
	return f.pulse, f.echo
}

func TestPulseToCentimeters(t *testing.T) {
	assert.InDelta(t, 100.0, PulseToCentimeters(CentimetersToPulse(100)), 0.01)
	// datasheet rule of thumb is 58us per centimeter
	assert.InDelta(t, 10.0, PulseToCentimeters(583*time.Microsecond), 0.05)
}

func TestCentimetersToPulseRoundTrip(t *testing.T) {
	for _, d := range []float64{2, 50, 100, 150, 200, 300, 400, 123.456} {
		assert.Equal(t, d, PulseToCentimeters(CentimetersToPulse(d)), "%v cm", d)
	}

	// 200cm is 11661807.58ns, which truncation would read back as 199.99999
	assert.Equal(t, 11661808*time.Nanosecond, CentimetersToPulse(200))
}

func TestEchoTimeout(t *testing.T) {
	timeout := EchoTimeout(400)
	assert.Greater(t, timeout, CentimetersToPulse(400))
	assert.Less(t, timeout, 30*time.Millisecond)
}

func TestMeasure(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		transducer    *fakeTransducer
		expectedValid bool
		expectedDist  float64
		expectedErr   bool
	}{
		{
			"Echo",
			&fakeTransducer{pulse: CentimetersToPulse(150), echo: true},
			true, 150, false,
		},
		{
			"Timeout",
			&fakeTransducer{echo: false},
			false, 0, false,
		},
		{
			"TooClose",
			&fakeTransducer{pulse: CentimetersToPulse(1), echo: true},
			false, 1, false,
		},
		{
			"TooFar",
			&fakeTransducer{pulse: CentimetersToPulse(450), echo: true},
			false, 450, false,
		},
		{
			"AtMaxRange",
			&fakeTransducer{pulse: CentimetersToPulse(399.9), echo: true},
			true, 399.9, false,
		},
		{
			"TriggerError",
			&fakeTransducer{triggerErr: errors.New("pin fault"), pulse: CentimetersToPulse(100), echo: true},
			false, 0, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := timeutil.NewMockClock(now)
			s := New(echoguide.SideRight, tt.transducer, DefaultConfig(), clock)

			sample, err := s.Measure(context.Background())
			if tt.expectedErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, s.EchoTimeout(), tt.transducer.lastTimeout)
			}

			assert.Equal(t, echoguide.SideRight, sample.Side)
			assert.Equal(t, now, sample.Timestamp)
			assert.Equal(t, tt.expectedValid, sample.Valid)
			assert.InDelta(t, tt.expectedDist, sample.Distance, 0.01)
			assert.Equal(t, 1, tt.transducer.triggers)
		})
	}
}
