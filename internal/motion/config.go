package motion

import (
	"errors"
	"fmt"
	"math"
)

// Defaults for Config.
const (
	DefaultSmoothingFactor     = 35.0
	DefaultPrecision           = 3
	DefaultStationaryThreshold = 0.013
	DefaultSlowWalkThreshold   = 0.05
	DefaultSampleInterval      = 0.1
	DefaultSamplesPerWindow    = 10
)

// MaxPrecision is the largest rounding precision accepted. A float64 carries
// about 15 significant decimal digits; beyond that Round overflows to NaN.
const MaxPrecision = 15

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid classifier config")

// Config holds the classifier parameters. Thresholds are in g².
type Config struct {
	// SmoothingFactor is the percentage weight (0-100) of the previous
	// filtered value in the low-pass filter.
	SmoothingFactor float64 `json:"smoothing_factor"`
	// Precision is the number of decimal digits kept after every arithmetic
	// step.
	Precision           int     `json:"precision"`
	StationaryThreshold float64 `json:"stationary_threshold"`
	SlowWalkThreshold   float64 `json:"slow_walk_threshold"`
	// SampleInterval is the nominal time between samples, in the same time
	// unit that one window spans.
	SampleInterval float64 `json:"sample_interval"`
	// SamplesPerWindow must equal round(1/SampleInterval). Zero derives it.
	SamplesPerWindow int `json:"samples_per_window"`
}

// DefaultConfig returns the stock pedestrian tuning.
func DefaultConfig() Config {
	return Config{
		SmoothingFactor:     DefaultSmoothingFactor,
		Precision:           DefaultPrecision,
		StationaryThreshold: DefaultStationaryThreshold,
		SlowWalkThreshold:   DefaultSlowWalkThreshold,
		SampleInterval:      DefaultSampleInterval,
		SamplesPerWindow:    DefaultSamplesPerWindow,
	}
}

// WindowSamples returns the number of samples one window is expected to hold
// for the given interval, never less than one.
func WindowSamples(interval float64) int {
	n := int(math.Round(windowSpan / interval))
	if n < 1 {
		n = 1
	}
	return n
}

// Normalize fills a zero SamplesPerWindow from the interval and validates the
// result.
func (c Config) Normalize() (Config, error) {
	out := c
	if err := out.validateInterval(); err != nil {
		return out, err
	}
	if out.SamplesPerWindow == 0 {
		out.SamplesPerWindow = WindowSamples(out.SampleInterval)
	}
	return out, out.Validate()
}

func (c Config) validateInterval() error {
	if !isFinite(c.SampleInterval) || c.SampleInterval <= 0 {
		return fmt.Errorf("%w: sample interval must be positive, got %v", ErrInvalidConfig, c.SampleInterval)
	}
	return nil
}

// Validate checks the configuration without applying defaults.
func (c Config) Validate() error {
	if err := c.validateInterval(); err != nil {
		return err
	}
	if want := WindowSamples(c.SampleInterval); c.SamplesPerWindow != want {
		return fmt.Errorf("%w: samples per window %d does not match interval %v (want %d)",
			ErrInvalidConfig, c.SamplesPerWindow, c.SampleInterval, want)
	}
	if c.Precision < 0 || c.Precision > MaxPrecision {
		return fmt.Errorf("%w: precision must be within [0, %d], got %d", ErrInvalidConfig, MaxPrecision, c.Precision)
	}
	if !isFinite(c.SmoothingFactor) {
		return fmt.Errorf("%w: smoothing factor must be finite", ErrInvalidConfig)
	}
	if !isFinite(c.StationaryThreshold) || !isFinite(c.SlowWalkThreshold) {
		return fmt.Errorf("%w: thresholds must be finite", ErrInvalidConfig)
	}
	if c.StationaryThreshold > c.SlowWalkThreshold {
		return fmt.Errorf("%w: stationary threshold %v exceeds slow walk threshold %v",
			ErrInvalidConfig, c.StationaryThreshold, c.SlowWalkThreshold)
	}
	return nil
}
