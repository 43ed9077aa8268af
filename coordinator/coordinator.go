// Package coordinator runs the per-side sensing pipelines and drives the haptic and alert outputs.
//
// Each side owns its sensor, filter and haptic exclusively. The only state shared between the sides
// is the last estimate/command per side and the alert's commanded state, both held under one lock.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/actuator"
	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/filter"
	"github.com/calvinmclean/echoguide/internal/monitoring"
	"github.com/calvinmclean/echoguide/internal/timeutil"
	"github.com/calvinmclean/echoguide/mapper"
	"github.com/calvinmclean/echoguide/telemetry"
)

// RangeSensor is the measurement half of a pipeline. sensor.Sensor implements it.
type RangeSensor interface {
	Trigger() error
	Await(ctx context.Context) echoguide.RawSample
}

// Pipeline is the hardware for one side
type Pipeline struct {
	Sensor RangeSensor
	Haptic actuator.Haptic
}

// levelSetter is implemented by haptics that need to know how many levels exist
type levelSetter interface {
	SetLevels(int)
}

type side struct {
	id     echoguide.Side
	sensor RangeSensor
	haptic actuator.Haptic
	filter *filter.Filter
	levels int
	state  atomic.Int32
}

func (s *side) setState(cs echoguide.CycleState) {
	s.state.Store(int32(cs))
}

// Coordinator owns both pipelines and the shared alert
type Coordinator struct {
	config    *config.Store
	clock     timeutil.Clock
	telemetry telemetry.Sink
	alert     actuator.Alert
	sides     [2]*side

	// mu guards everything below. Alert writes happen while holding it so they are serialized and
	// always reflect the latest commands.
	mu           sync.Mutex
	estimates    [2]echoguide.StableEstimate
	commands     [2]echoguide.FeedbackCommand
	alertOn      bool
	alertWritten bool
	startTime    time.Time

	verbose atomic.Bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock sets the clock used for cycle timing and timestamps
func WithClock(clock timeutil.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithTelemetry sets the telemetry Sink. It must not block; see telemetry.Buffered.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(c *Coordinator) {
		c.telemetry = sink
	}
}

// New creates a Coordinator for the left and right pipelines
func New(store *config.Store, left, right Pipeline, alert actuator.Alert, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("config store is required")
	}
	if alert == nil {
		return nil, errors.New("alert actuator is required")
	}

	cfg := store.Load()
	c := &Coordinator{
		config:    store,
		clock:     timeutil.RealClock{},
		telemetry: telemetry.Noop{},
		alert:     alert,
	}

	for _, id := range echoguide.Sides {
		p := left
		if id == echoguide.SideRight {
			p = right
		}
		if p.Sensor == nil || p.Haptic == nil {
			return nil, fmt.Errorf("%s pipeline requires a sensor and a haptic", id)
		}
		c.sides[id] = &side{
			id:     id,
			sensor: p.Sensor,
			haptic: p.Haptic,
			filter: filter.New(id, cfg.WindowSize, cfg.DropoutLimit),
		}
		c.estimates[id] = echoguide.StableEstimate{Side: id}
		c.commands[id] = echoguide.FeedbackCommand{Side: id}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Run cycles both sides until ctx is done. Each side is re-triggered every CyclePeriod measured from
// the start of its previous trigger, so a timed-out echo never stretches the period.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	c.startTime = c.clock.Now()
	c.mu.Unlock()

	monitoring.Logf("%s Started...", c.ts())

	var wg sync.WaitGroup
	for _, id := range echoguide.Sides {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runSide(ctx, id)
		}()
	}
	wg.Wait()

	monitoring.Logf("%s Stopped", c.ts())
	return nil
}

func (c *Coordinator) runSide(ctx context.Context, id echoguide.Side) {
	for ctx.Err() == nil {
		start := c.clock.Now()
		c.Step(ctx, id)

		wait := c.clock.Until(start.Add(c.config.Load().CyclePeriod))
		if wait <= 0 {
			// overran the period: start the next cycle now but let the other side run first
			runtime.Gosched()
		}
		if err := timeutil.SleepContext(ctx, c.clock, wait); err != nil {
			return
		}
	}
}

// Step runs one full cycle for a side and returns the command it dispatched. If ctx is cancelled
// while waiting for the echo, the cycle is abandoned without writing to any actuator.
func (c *Coordinator) Step(ctx context.Context, id echoguide.Side) echoguide.FeedbackCommand {
	s := c.sides[id]
	cfg := c.config.Load()
	c.applyConfig(s, cfg)

	s.setState(echoguide.StateTriggered)
	var sample echoguide.RawSample
	if err := s.sensor.Trigger(); err != nil {
		c.fault(id, "sensor", err)
		sample = echoguide.RawSample{Side: id, Timestamp: c.clock.Now()}
	} else {
		s.setState(echoguide.StateAwaitingEcho)
		sample = s.sensor.Await(ctx)
	}
	s.setState(echoguide.StateResolved)

	if ctx.Err() != nil {
		s.setState(echoguide.StateIdle)
		return c.Command(id)
	}

	est := s.filter.Update(sample)
	cmd := mapper.Map(est, cfg)

	if c.verbose.Load() {
		monitoring.Logf("%s %s raw=%.1f/%t est=%.1f/%t -> %s alert=%t",
			c.ts(), id, sample.Distance, sample.Valid, est.Distance, est.Valid, cmd.Level, cmd.Alert)
	}

	if err := s.haptic.SetIntensity(cmd.Level); err != nil {
		c.fault(id, "haptic", err)
	}

	c.arbitrate(id, est, cmd)

	c.telemetry.PublishSnapshot(echoguide.Snapshot{
		Side:      id,
		Estimate:  est,
		Command:   cmd,
		Timestamp: c.clock.Now(),
	})

	s.setState(echoguide.StateIdle)
	return cmd
}

// applyConfig brings a side's filter and haptic in line with cfg. It only runs between cycles.
func (c *Coordinator) applyConfig(s *side, cfg config.DeviceConfig) {
	if !s.filter.Configured(cfg.WindowSize, cfg.DropoutLimit) {
		if c.verbose.Load() {
			monitoring.Logf("%s %s filter reset: window=%d dropout=%d", c.ts(), s.id, cfg.WindowSize, cfg.DropoutLimit)
		}
		s.filter.Reset(cfg.WindowSize, cfg.DropoutLimit)
	}

	if s.levels != cfg.NumLevels() {
		s.levels = cfg.NumLevels()
		if ls, ok := s.haptic.(levelSetter); ok {
			ls.SetLevels(s.levels)
		}
	}
}

// arbitrate records the side's latest command and drives the alert to the OR of both sides
func (c *Coordinator) arbitrate(id echoguide.Side, est echoguide.StableEstimate, cmd echoguide.FeedbackCommand) {
	if err := c.driveAlert(id, est, cmd); err != nil {
		c.fault(id, "alert", err)
	}
}

// driveAlert only writes the alert when its commanded state changes. A failed write leaves the
// recorded state alone so the next evaluation retries it.
func (c *Coordinator) driveAlert(id echoguide.Side, est echoguide.StableEstimate, cmd echoguide.FeedbackCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.estimates[id] = est
	c.commands[id] = cmd

	on := c.commands[echoguide.SideLeft].Alert || c.commands[echoguide.SideRight].Alert
	if c.alertWritten && on == c.alertOn {
		return nil
	}

	if err := c.alert.SetAlert(on); err != nil {
		return err
	}
	c.alertOn = on
	c.alertWritten = true
	return nil
}

func (c *Coordinator) fault(id echoguide.Side, component string, err error) {
	monitoring.Logf("%s %s %s error: %v", c.ts(), id, component, err)
	c.telemetry.PublishFault(echoguide.Fault{
		Side:      id,
		Component: component,
		Err:       err,
		Timestamp: c.clock.Now(),
	})
}

// AlertActive returns the alert's last successfully commanded state
func (c *Coordinator) AlertActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alertOn
}

// State returns where a side is in its measurement cycle
func (c *Coordinator) State(id echoguide.Side) echoguide.CycleState {
	return echoguide.CycleState(c.sides[id].state.Load())
}

// Estimate returns the latest estimate for a side
func (c *Coordinator) Estimate(id echoguide.Side) echoguide.StableEstimate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimates[id]
}

// Command returns the latest command for a side
func (c *Coordinator) Command(id echoguide.Side) echoguide.FeedbackCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commands[id]
}

// Config returns the active config
func (c *Coordinator) Config() config.DeviceConfig {
	return c.config.Load()
}

// UpdateConfig installs a new config. It takes effect at the start of each side's next cycle.
func (c *Coordinator) UpdateConfig(cfg config.DeviceConfig) error {
	return c.config.Update(cfg)
}

// Debug describes the current state of both sides and the alert
func (c *Coordinator) Debug() string {
	d := c.ts()
	for _, id := range echoguide.Sides {
		est := c.Estimate(id)
		cmd := c.Command(id)
		dist := "-"
		if est.Valid {
			dist = fmt.Sprintf("%.1fcm", est.Distance)
		}
		d += fmt.Sprintf(" %s=%s/%s/%s", id.Short(), dist, cmd.Level, c.State(id))
	}

	alert := "off"
	if c.AlertActive() {
		alert = "on"
	}
	return d + " alert=" + alert
}

// Verbose enables per-cycle logging
func (c *Coordinator) Verbose() {
	c.verbose.Store(true)
	monitoring.Logf("%s Set Verbose Mode", c.ts())
}

// ts returns the duration timestamp for logging
func (c *Coordinator) ts() string {
	c.mu.Lock()
	start := c.startTime
	c.mu.Unlock()

	if start.IsZero() {
		return "[-]"
	}
	return "[" + c.clock.Since(start).Round(time.Millisecond).String() + "]"
}
