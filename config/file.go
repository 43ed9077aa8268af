package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File is the JSON form of a DeviceConfig. Omitted fields keep the value of the base config they are
// applied to, so partial files are safe.
type File struct {
	Levels       []float64 `json:"levels,omitempty"`
	Critical     *float64  `json:"critical,omitempty"`
	CyclePeriod  *string   `json:"cycle_period,omitempty"` // duration string like "60ms"
	WindowSize   *int      `json:"window_size,omitempty"`
	DropoutLimit *int      `json:"dropout_limit,omitempty"`
}

// LoadFile reads a File from a JSON file. It must have a .json extension and be under 1MB.
func LoadFile(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	f := &File{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return f, nil
}

// Validate checks the fields that can be checked without a base config
func (f *File) Validate() error {
	if f.CyclePeriod != nil && *f.CyclePeriod != "" {
		if _, err := time.ParseDuration(*f.CyclePeriod); err != nil {
			return fmt.Errorf("invalid cycle_period '%s': %w", *f.CyclePeriod, err)
		}
	}
	if f.WindowSize != nil && *f.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", *f.WindowSize)
	}
	if f.DropoutLimit != nil && *f.DropoutLimit <= 0 {
		return fmt.Errorf("dropout_limit must be positive, got %d", *f.DropoutLimit)
	}
	return nil
}

// Apply overlays the fields set in f onto base and validates the result
func (f *File) Apply(base DeviceConfig) (DeviceConfig, error) {
	cfg := base.Clone()

	if len(f.Levels) > 0 {
		cfg.Levels = append([]float64(nil), f.Levels...)
	}
	if f.Critical != nil {
		cfg.Critical = *f.Critical
	}
	if f.CyclePeriod != nil && *f.CyclePeriod != "" {
		d, err := time.ParseDuration(*f.CyclePeriod)
		if err != nil {
			return base, fmt.Errorf("invalid cycle_period '%s': %w", *f.CyclePeriod, err)
		}
		cfg.CyclePeriod = d
	}
	if f.WindowSize != nil {
		cfg.WindowSize = *f.WindowSize
	}
	if f.DropoutLimit != nil {
		cfg.DropoutLimit = *f.DropoutLimit
	}

	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// ToFile converts cfg to its JSON form with every field set
func ToFile(cfg DeviceConfig) File {
	period := cfg.CyclePeriod.String()
	return File{
		Levels:       append([]float64(nil), cfg.Levels...),
		Critical:     &cfg.Critical,
		CyclePeriod:  &period,
		WindowSize:   &cfg.WindowSize,
		DropoutLimit: &cfg.DropoutLimit,
	}
}
