// Package sim provides simulated hardware so the real coordinator can run on a host
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/sensor"
)

// NoEcho in a Profile is a cycle where the echo never returns
var NoEcho = math.NaN()

// Profile is the true obstacle distance in centimeters for each successive cycle
type Profile []float64

// Approach moves an obstacle from start to end over steps cycles
func Approach(start, end float64, steps int) Profile {
	if steps < 2 {
		return Profile{end}
	}
	p := make(Profile, steps)
	for i := range p {
		p[i] = start + (end-start)*float64(i)/float64(steps-1)
	}
	return p
}

// Constant holds an obstacle at d for n cycles
func Constant(d float64, n int) Profile {
	p := make(Profile, n)
	for i := range p {
		p[i] = d
	}
	return p
}

// Silence is n cycles without an echo
func Silence(n int) Profile {
	return Constant(NoEcho, n)
}

// Then appends other profiles
func (p Profile) Then(others ...Profile) Profile {
	out := append(Profile(nil), p...)
	for _, o := range others {
		out = append(out, o...)
	}
	return out
}

// PulseFor is the echo width an HC-SR04 reports for an obstacle at d centimeters
func PulseFor(d float64) time.Duration {
	return sensor.CentimetersToPulse(d)
}

// Transducer plays back a Profile, one entry per trigger. Once the profile is exhausted it reports no
// echo and Exhausted is closed.
type Transducer struct {
	// Realtime makes AwaitEcho take as long as the real echo would
	Realtime bool

	mu        sync.Mutex
	profile   Profile
	next      int
	triggers  int
	exhausted chan struct{}
	once      sync.Once
}

var _ sensor.Transducer = (*Transducer)(nil)

func NewTransducer(p Profile) *Transducer {
	t := &Transducer{profile: p, exhausted: make(chan struct{})}
	if len(p) == 0 {
		t.once.Do(func() { close(t.exhausted) })
	}
	return t
}

// Trigger implements sensor.Transducer
func (t *Transducer) Trigger() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.triggers++
	return nil
}

// AwaitEcho implements sensor.Transducer
func (t *Transducer) AwaitEcho(ctx context.Context, timeout time.Duration) (time.Duration, bool) {
	t.mu.Lock()
	d := NoEcho
	if t.next < len(t.profile) {
		d = t.profile[t.next]
		t.next++
	}
	if t.next >= len(t.profile) {
		t.once.Do(func() { close(t.exhausted) })
	}
	t.mu.Unlock()

	pulse, ok := timeout, false
	if !math.IsNaN(d) && d >= 0 {
		pulse = PulseFor(d)
		ok = pulse <= timeout
		pulse = min(pulse, timeout)
	}

	if t.Realtime {
		timer := time.NewTimer(pulse)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, false
		case <-timer.C:
		}
	}

	if !ok {
		return 0, false
	}
	return pulse, true
}

// Triggers is the number of trigger pulses received
func (t *Transducer) Triggers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.triggers
}

// Exhausted is closed once every profile entry has been played
func (t *Transducer) Exhausted() <-chan struct{} {
	return t.exhausted
}

// Haptic records every level written to it
type Haptic struct {
	mu     sync.Mutex
	levels []echoguide.IntensityLevel
}

// SetIntensity implements actuator.Haptic
func (h *Haptic) SetIntensity(l echoguide.IntensityLevel) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels = append(h.levels, l)
	return nil
}

// Levels returns a copy of the recorded levels
func (h *Haptic) Levels() []echoguide.IntensityLevel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]echoguide.IntensityLevel(nil), h.levels...)
}

// Alert records every alert state written to it
type Alert struct {
	mu     sync.Mutex
	writes []bool
}

// SetAlert implements actuator.Alert
func (a *Alert) SetAlert(on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writes = append(a.writes, on)
	return nil
}

// Writes returns a copy of the recorded alert states
func (a *Alert) Writes() []bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]bool(nil), a.writes...)
}

// On is the last state written
func (a *Alert) On() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.writes) > 0 && a.writes[len(a.writes)-1]
}
