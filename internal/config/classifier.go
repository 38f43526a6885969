package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical classifier defaults file.
const DefaultConfigPath = "config/classifier.defaults.json"

// ClassifierConfig is the on-disk configuration for the motion service.
// Every field is optional: omitted values fall back to the Get* defaults, so
// partial files are safe.
type ClassifierConfig struct {
	// Classifier params
	SmoothingFactor     *float64 `json:"smoothing_factor,omitempty"`
	Precision           *int     `json:"precision,omitempty"`
	StationaryThreshold *float64 `json:"stationary_threshold,omitempty"`
	SlowWalkThreshold   *float64 `json:"slow_walk_threshold,omitempty"`
	SampleInterval      *string  `json:"sample_interval,omitempty"` // duration string like "100ms"
	SamplesPerWindow    *int     `json:"samples_per_window,omitempty"`
	StrictSamples       *bool    `json:"strict_samples,omitempty"`

	// Acquisition params
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty"`

	// Reporting params
	HistorySize  *int     `json:"history_size,omitempty"`
	KafkaBrokers []string `json:"kafka_brokers,omitempty"`
	KafkaTopic   *string  `json:"kafka_topic,omitempty"`
}

// WindowSpan is the wall-clock duration one classifier time unit maps to.
const WindowSpan = time.Second

// EmptyClassifierConfig returns a ClassifierConfig with all fields unset.
func EmptyClassifierConfig() *ClassifierConfig {
	return &ClassifierConfig{}
}

// LoadClassifierConfig loads a ClassifierConfig from a JSON file. The path must
// have a .json extension and the file must be under 1MB.
func LoadClassifierConfig(path string) (*ClassifierConfig, error) {
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

	cfg := EmptyClassifierConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. It panics if the file
// cannot be found and is intended for test setup.
func MustLoadDefaultConfig() *ClassifierConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadClassifierConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Cross-field classifier checks are
// left to motion.Config.Validate via MotionConfig.
func (c *ClassifierConfig) Validate() error {
	if c.SampleInterval != nil && *c.SampleInterval != "" {
		d, err := time.ParseDuration(*c.SampleInterval)
		if err != nil {
			return fmt.Errorf("invalid sample_interval '%s': %w", *c.SampleInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("sample_interval must be positive, got %s", d)
		}
	}
	if c.Precision != nil && (*c.Precision < 0 || *c.Precision > motion.MaxPrecision) {
		return fmt.Errorf("precision must be within [0, %d], got %d", motion.MaxPrecision, *c.Precision)
	}
	if c.SamplesPerWindow != nil && *c.SamplesPerWindow < 0 {
		return fmt.Errorf("samples_per_window must be non-negative, got %d", *c.SamplesPerWindow)
	}
	if c.HistorySize != nil && *c.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", *c.HistorySize)
	}
	if len(c.KafkaBrokers) > 0 && c.GetKafkaTopic() == "" {
		return fmt.Errorf("kafka_topic is required when kafka_brokers is set")
	}
	for _, b := range c.KafkaBrokers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("kafka_brokers contains an empty address")
		}
	}
	return nil
}

// MotionConfig converts the file values into a validated classifier config.
func (c *ClassifierConfig) MotionConfig() (motion.Config, error) {
	cfg := motion.Config{
		SmoothingFactor:     c.GetSmoothingFactor(),
		Precision:           c.GetPrecision(),
		StationaryThreshold: c.GetStationaryThreshold(),
		SlowWalkThreshold:   c.GetSlowWalkThreshold(),
		SampleInterval:      float64(c.GetSampleInterval()) / float64(WindowSpan),
		SamplesPerWindow:    c.GetSamplesPerWindow(),
	}
	return cfg.Normalize()
}

// GetSmoothingFactor returns the smoothing_factor value or the default.
func (c *ClassifierConfig) GetSmoothingFactor() float64 {
	if c.SmoothingFactor == nil {
		return motion.DefaultSmoothingFactor
	}
	return *c.SmoothingFactor
}

// GetPrecision returns the precision value or the default.
func (c *ClassifierConfig) GetPrecision() int {
	if c.Precision == nil {
		return motion.DefaultPrecision
	}
	return *c.Precision
}

// GetStationaryThreshold returns the stationary_threshold value or the default.
func (c *ClassifierConfig) GetStationaryThreshold() float64 {
	if c.StationaryThreshold == nil {
		return motion.DefaultStationaryThreshold
	}
	return *c.StationaryThreshold
}

// GetSlowWalkThreshold returns the slow_walk_threshold value or the default.
func (c *ClassifierConfig) GetSlowWalkThreshold() float64 {
	if c.SlowWalkThreshold == nil {
		return motion.DefaultSlowWalkThreshold
	}
	return *c.SlowWalkThreshold
}

// GetSampleInterval parses and returns the SampleInterval as a time.Duration.
func (c *ClassifierConfig) GetSampleInterval() time.Duration {
	const def = 100 * time.Millisecond
	if c.SampleInterval == nil || *c.SampleInterval == "" {
		return def
	}
	d, err := time.ParseDuration(*c.SampleInterval)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetSamplesPerWindow returns samples_per_window, or 0 to derive it from the
// interval.
func (c *ClassifierConfig) GetSamplesPerWindow() int {
	if c.SamplesPerWindow == nil {
		return 0
	}
	return *c.SamplesPerWindow
}

// GetStrictSamples reports whether non-finite samples are rejected.
func (c *ClassifierConfig) GetStrictSamples() bool {
	if c.StrictSamples == nil {
		return false
	}
	return *c.StrictSamples
}

// GetSerialPort returns the serial_port value or the default.
func (c *ClassifierConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetBaudRate returns baud_rate, or 0 to use the serial default.
func (c *ClassifierConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 0
	}
	return *c.BaudRate
}

// GetDataBits returns data_bits, or 0 to use the serial default.
func (c *ClassifierConfig) GetDataBits() int {
	if c.DataBits == nil {
		return 0
	}
	return *c.DataBits
}

// GetStopBits returns stop_bits, or 0 to use the serial default.
func (c *ClassifierConfig) GetStopBits() int {
	if c.StopBits == nil {
		return 0
	}
	return *c.StopBits
}

// GetParity returns parity, or "" to use the serial default.
func (c *ClassifierConfig) GetParity() string {
	if c.Parity == nil {
		return ""
	}
	return *c.Parity
}

// GetHistorySize returns the number of evaluations kept in memory.
func (c *ClassifierConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 600 // ten minutes of one-second windows
	}
	return *c.HistorySize
}

// GetKafkaTopic returns the kafka_topic value or "".
func (c *ClassifierConfig) GetKafkaTopic() string {
	if c.KafkaTopic == nil {
		return ""
	}
	return *c.KafkaTopic
}

// PortOptions returns the serial parameters for the accelerometer port.
func (c *ClassifierConfig) PortOptions() serialmux.PortOptions {
	return serialmux.PortOptions{
		BaudRate: c.GetBaudRate(),
		DataBits: c.GetDataBits(),
		StopBits: c.GetStopBits(),
		Parity:   c.GetParity(),
	}
}
