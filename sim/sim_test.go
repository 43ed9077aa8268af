package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/coordinator"
	"github.com/calvinmclean/echoguide/internal/monitoring"
	"github.com/calvinmclean/echoguide/sensor"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, Profile{300, 250, 200, 150, 100}, Approach(300, 100, 5))
	assert.Equal(t, Profile{80}, Approach(300, 80, 1))
	assert.Equal(t, Profile{120, 120}, Constant(120, 2))

	p := Constant(50, 1).Then(Silence(2), Approach(10, 20, 2))
	require.Len(t, p, 5)
	assert.Equal(t, 50.0, p[0])
	assert.True(t, math.IsNaN(p[1]))
	assert.True(t, math.IsNaN(p[2]))
	assert.Equal(t, Profile{10, 20}, p[3:])
}

func TestTransducer(t *testing.T) {
	tr := NewTransducer(Profile{200, NoEcho, 1000, 3})
	s := sensor.New(echoguide.SideLeft, tr, sensor.DefaultConfig(), nil)

	var samples []echoguide.RawSample
	for range 5 {
		sample, err := s.Measure(context.Background())
		require.NoError(t, err)
		samples = append(samples, sample)
	}

	assert.True(t, samples[0].Valid)
	assert.InDelta(t, 200, samples[0].Distance, 1e-6)
	assert.False(t, samples[1].Valid, "no echo")
	assert.False(t, samples[2].Valid, "beyond the echo timeout")
	assert.True(t, samples[3].Valid)
	assert.InDelta(t, 3, samples[3].Distance, 1e-6)
	assert.False(t, samples[4].Valid, "profile exhausted")

	assert.Equal(t, 5, tr.Triggers())
	select {
	case <-tr.Exhausted():
	default:
		t.Fatal("expected transducer to be exhausted")
	}
}

func TestTransducerRealtime(t *testing.T) {
	tr := NewTransducer(Profile{NoEcho})
	tr.Realtime = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := tr.AwaitEcho(ctx, time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestApproachingObstacle(t *testing.T) {
	left := NewTransducer(Approach(350, 40, 40).Then(Constant(40, 5)))
	right := NewTransducer(Silence(45))
	lh, rh, alert := &Haptic{}, &Haptic{}, &Alert{}

	c, err := coordinator.New(
		config.NewStore(config.Default()),
		coordinator.Pipeline{Sensor: sensor.New(echoguide.SideLeft, left, sensor.DefaultConfig(), nil), Haptic: lh},
		coordinator.Pipeline{Sensor: sensor.New(echoguide.SideRight, right, sensor.DefaultConfig(), nil), Haptic: rh},
		alert,
	)
	require.NoError(t, err)

	for range 45 {
		c.Step(context.Background(), echoguide.SideLeft)
		c.Step(context.Background(), echoguide.SideRight)
	}

	levels := lh.Levels()
	require.Len(t, levels, 45)
	for i := 1; i < len(levels); i++ {
		assert.GreaterOrEqual(t, levels[i], levels[i-1], "level dropped at cycle %d", i)
	}
	assert.Equal(t, echoguide.LevelOff, levels[0])
	assert.Equal(t, echoguide.IntensityLevel(4), levels[len(levels)-1])

	for _, l := range rh.Levels() {
		assert.Equal(t, echoguide.LevelOff, l)
	}

	assert.Equal(t, []bool{false, true}, alert.Writes())
	assert.True(t, alert.On())
}

func TestObstacleOnThreshold(t *testing.T) {
	tests := []struct {
		name          string
		distance      float64
		expectedLevel echoguide.IntensityLevel
		expectedAlert bool
	}{
		{"AtCritical", 150, 2, false},
		{"AtLevelTwo", 200, 2, false},
		{"AtLevelThree", 100, 3, true},
		{"JustInsideCritical", 149.9, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left := NewTransducer(Constant(tt.distance, 5))
			right := NewTransducer(Silence(5))
			lh, alert := &Haptic{}, &Alert{}

			c, err := coordinator.New(
				config.NewStore(config.Default()),
				coordinator.Pipeline{Sensor: sensor.New(echoguide.SideLeft, left, sensor.DefaultConfig(), nil), Haptic: lh},
				coordinator.Pipeline{Sensor: sensor.New(echoguide.SideRight, right, sensor.DefaultConfig(), nil), Haptic: &Haptic{}},
				alert,
			)
			require.NoError(t, err)

			for range 5 {
				c.Step(context.Background(), echoguide.SideLeft)
				c.Step(context.Background(), echoguide.SideRight)
			}

			est := c.Estimate(echoguide.SideLeft)
			require.True(t, est.Valid)
			assert.Equal(t, tt.distance, est.Distance)
			assert.Equal(t, tt.expectedLevel, c.Command(echoguide.SideLeft).Level)
			assert.Equal(t, tt.expectedAlert, alert.On())
			for _, on := range alert.Writes() {
				assert.Equal(t, tt.expectedAlert, on)
			}
		})
	}
}
