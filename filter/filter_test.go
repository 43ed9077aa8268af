package filter

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/echoguide"
)

func valid(d float64) echoguide.RawSample {
	return echoguide.RawSample{Side: echoguide.SideLeft, Distance: d, Valid: true, Timestamp: time.Now()}
}

func invalid() echoguide.RawSample {
	return echoguide.RawSample{Side: echoguide.SideLeft, Timestamp: time.Now()}
}

func referenceMedian(values []float64) float64 {
	s := slices.Clone(values)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func TestUpdate(t *testing.T) {
	t.Run("EmptyIsInvalid", func(t *testing.T) {
		f := New(echoguide.SideLeft, 5, 5)
		assert.False(t, f.Estimate().Valid)
		assert.Equal(t, echoguide.SideLeft, f.Estimate().Side)
	})

	t.Run("PartialWindow", func(t *testing.T) {
		f := New(echoguide.SideLeft, 5, 5)
		assert.Equal(t, 100.0, f.Update(valid(100)).Distance)
		assert.Equal(t, 150.0, f.Update(valid(200)).Distance)
		assert.Equal(t, 200.0, f.Update(valid(300)).Distance)
		assert.Equal(t, 3, f.Len())
	})

	t.Run("EvictsOldest", func(t *testing.T) {
		f := New(echoguide.SideLeft, 3, 5)
		for _, d := range []float64{10, 20, 30, 40, 50} {
			f.Update(valid(d))
		}
		assert.Equal(t, 3, f.Len())
		assert.Equal(t, 40.0, f.Estimate().Distance)
	})

	t.Run("SpikeRejected", func(t *testing.T) {
		f := New(echoguide.SideLeft, 5, 5)
		for range 10 {
			f.Update(valid(250))
		}
		est := f.Update(valid(5))
		assert.True(t, est.Valid)
		assert.Equal(t, 250.0, est.Distance)

		for range 4 {
			est = f.Update(valid(250))
		}
		assert.Equal(t, 250.0, est.Distance)
	})

	t.Run("DropoutBridged", func(t *testing.T) {
		f := New(echoguide.SideLeft, 5, 5)
		f.Update(valid(120))
		for range 5 {
			est := f.Update(invalid())
			assert.True(t, est.Valid)
			assert.Equal(t, 120.0, est.Distance)
		}
	})

	t.Run("DropoutExceeded", func(t *testing.T) {
		f := New(echoguide.SideLeft, 5, 5)
		for range 5 {
			f.Update(valid(120))
		}

		var est echoguide.StableEstimate
		for i := range 10 {
			est = f.Update(invalid())
			if i < 5 {
				assert.True(t, est.Valid, "cycle %d", i)
			} else {
				assert.False(t, est.Valid, "cycle %d", i)
			}
		}
		assert.Equal(t, 0, f.Len())

		// stale readings from before the dropout don't come back
		est = f.Update(valid(300))
		assert.True(t, est.Valid)
		assert.Equal(t, 300.0, est.Distance)
	})

	t.Run("Reset", func(t *testing.T) {
		f := New(echoguide.SideLeft, 5, 5)
		f.Update(valid(100))
		require.True(t, f.Configured(5, 5))

		f.Reset(3, 2)
		assert.True(t, f.Configured(3, 2))
		assert.False(t, f.Estimate().Valid)
		assert.Equal(t, 0, f.Len())
	})
}

// The estimate is the median of the last w valid samples no matter where invalid samples fall,
// as long as no dropout run exceeds the limit.
func TestMedianOfLastValid(t *testing.T) {
	const dropoutLimit = 4
	rng := rand.New(rand.NewSource(42))

	for _, w := range []int{1, 2, 3, 5, 8} {
		f := New(echoguide.SideLeft, w, dropoutLimit)
		var history []float64
		missRun := 0

		for range 500 {
			if missRun < dropoutLimit && len(history) > 0 && rng.Intn(3) == 0 {
				missRun++
				f.Update(invalid())
			} else {
				missRun = 0
				d := float64(rng.Intn(400) + 1)
				history = append(history, d)
				f.Update(valid(d))
			}

			last := history[max(0, len(history)-w):]
			est := f.Estimate()
			require.True(t, est.Valid)
			require.Equal(t, referenceMedian(last), est.Distance, "window=%d", w)
		}
	}
}

func TestUpdateDoesNotAllocate(t *testing.T) {
	f := New(echoguide.SideLeft, 5, 5)
	sample := valid(100)
	allocs := testing.AllocsPerRun(100, func() {
		f.Update(sample)
	})
	assert.Zero(t, allocs)
}
