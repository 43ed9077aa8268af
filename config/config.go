// Package config holds the DeviceConfig that drives filtering, mapping and cycle timing. The active
// config lives in a Store so updates from the configuration channel land atomically between cycles.
package config

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/echoguide/internal/monitoring"
)

// ErrInvalidConfig is returned for configs that fail validation
var ErrInvalidConfig = errors.New("invalid config")

// DeviceConfig has the values that shape feedback. Distances are in centimeters.
type DeviceConfig struct {
	// Levels[i] is the distance at or below which IntensityLevel i+1 applies. Must be non-increasing.
	Levels       []float64
	Critical     float64
	CyclePeriod  time.Duration
	WindowSize   int
	DropoutLimit int
}

// Default returns the compiled-in configuration
func Default() DeviceConfig {
	return DeviceConfig{
		Levels:       []float64{300, 200, 100, 50},
		Critical:     150,
		CyclePeriod:  60 * time.Millisecond,
		WindowSize:   5,
		DropoutLimit: 5,
	}
}

// Validate checks that thresholds are monotonic and every value is positive
func (c DeviceConfig) Validate() error {
	if len(c.Levels) == 0 {
		return fmt.Errorf("%w: at least one level is required", ErrInvalidConfig)
	}
	if len(c.Levels) > 255 {
		return fmt.Errorf("%w: too many levels: %d", ErrInvalidConfig, len(c.Levels))
	}

	for i, d := range c.Levels {
		if d <= 0 {
			return fmt.Errorf("%w: level %d distance must be positive, got %v", ErrInvalidConfig, i+1, d)
		}
		if i > 0 && d > c.Levels[i-1] {
			return fmt.Errorf("%w: level %d distance %v exceeds level %d distance %v", ErrInvalidConfig, i+1, d, i, c.Levels[i-1])
		}
	}

	if c.Critical <= 0 {
		return fmt.Errorf("%w: critical distance must be positive, got %v", ErrInvalidConfig, c.Critical)
	}
	if c.CyclePeriod <= 0 {
		return fmt.Errorf("%w: cycle period must be positive, got %v", ErrInvalidConfig, c.CyclePeriod)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.DropoutLimit <= 0 {
		return fmt.Errorf("%w: dropout limit must be positive, got %d", ErrInvalidConfig, c.DropoutLimit)
	}

	return nil
}

// NumLevels is the number of non-off intensity levels
func (c DeviceConfig) NumLevels() int {
	return len(c.Levels)
}

// Clone returns a copy that shares no memory with c
func (c DeviceConfig) Clone() DeviceConfig {
	c.Levels = slices.Clone(c.Levels)
	return c
}

// Store holds the active DeviceConfig. Readers always see a complete config.
type Store struct {
	current atomic.Pointer[DeviceConfig]
}

// NewStore creates a Store from the initial config. An invalid initial config falls back to Default.
func NewStore(initial DeviceConfig) *Store {
	s := &Store{}
	if err := initial.Validate(); err != nil {
		monitoring.Logf("config: rejecting initial config, using defaults: %v", err)
		initial = Default()
	}
	cfg := initial.Clone()
	s.current.Store(&cfg)
	return s
}

// Load returns the active config. The returned value must be treated as read-only.
func (s *Store) Load() DeviceConfig {
	return *s.current.Load()
}

// Update validates and installs cfg. On error the last-known-good config stays active.
func (s *Store) Update(cfg DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		monitoring.Logf("config: keeping last-known-good config: %v", err)
		return err
	}
	cfg = cfg.Clone()
	s.current.Store(&cfg)
	return nil
}
