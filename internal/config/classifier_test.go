package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/motion"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyClassifierConfig()

	assert.Equal(t, 35.0, cfg.GetSmoothingFactor())
	assert.Equal(t, 3, cfg.GetPrecision())
	assert.Equal(t, 0.013, cfg.GetStationaryThreshold())
	assert.Equal(t, 0.05, cfg.GetSlowWalkThreshold())
	assert.Equal(t, 100*time.Millisecond, cfg.GetSampleInterval())
	assert.Equal(t, 0, cfg.GetSamplesPerWindow())
	assert.False(t, cfg.GetStrictSamples())
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetSerialPort())
	assert.Equal(t, 600, cfg.GetHistorySize())
	assert.Equal(t, "", cfg.GetKafkaTopic())

	mc, err := cfg.MotionConfig()
	require.NoError(t, err)
	if diff := cmp.Diff(motion.DefaultConfig(), mc); diff != "" {
		t.Errorf("motion config mismatch (-want +got):\n%s", diff)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	mc, err := cfg.MotionConfig()
	require.NoError(t, err)
	if diff := cmp.Diff(motion.DefaultConfig(), mc); diff != "" {
		t.Errorf("defaults file drifted from motion.DefaultConfig (-want +got):\n%s", diff)
	}
	assert.Equal(t, 115200, cfg.GetBaudRate())
	assert.Equal(t, "N", cfg.GetParity())
}

func TestLoadClassifierConfig_Partial(t *testing.T) {
	path := writeConfig(t, "motion.json", `{
  "stationary_threshold": 0.02,
  "sample_interval": "20ms",
  "strict_samples": true,
  "kafka_brokers": ["localhost:9092"],
  "kafka_topic": "motion.states"
}`)

	cfg, err := LoadClassifierConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.02, cfg.GetStationaryThreshold())
	assert.Equal(t, 0.05, cfg.GetSlowWalkThreshold(), "unset fields keep defaults")
	assert.True(t, cfg.GetStrictSamples())
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "motion.states", cfg.GetKafkaTopic())

	mc, err := cfg.MotionConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.02, mc.SampleInterval)
	assert.Equal(t, 50, mc.SamplesPerWindow, "derived from the interval")
}

func TestLoadClassifierConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "motion.yaml", `{}`, ".json extension"},
		{"bad json", "motion.json", `{"precision": }`, "failed to parse"},
		{"bad interval", "motion.json", `{"sample_interval": "fast"}`, "invalid sample_interval"},
		{"negative interval", "motion.json", `{"sample_interval": "-5ms"}`, "must be positive"},
		{"negative precision", "motion.json", `{"precision": -2}`, "precision"},
		{"precision overflowing scale", "motion.json", `{"precision": 400}`, "within [0, 15]"},
		{"zero history", "motion.json", `{"history_size": 0}`, "history_size"},
		{"brokers without topic", "motion.json", `{"kafka_brokers": ["b:9092"]}`, "kafka_topic"},
		{"blank broker", "motion.json", `{"kafka_brokers": [" "], "kafka_topic": "t"}`, "empty address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadClassifierConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadClassifierConfig_Missing(t *testing.T) {
	_, err := LoadClassifierConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat")
}

func TestLoadClassifierConfig_TooLarge(t *testing.T) {
	body := `{"kafka_topic": "` + strings.Repeat("x", 1024*1024) + `"}`
	_, err := LoadClassifierConfig(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMotionConfig_CrossFieldValidation(t *testing.T) {
	path := writeConfig(t, "motion.json", `{"stationary_threshold": 0.1, "slow_walk_threshold": 0.05}`)
	cfg, err := LoadClassifierConfig(path)
	require.NoError(t, err)

	_, err = cfg.MotionConfig()
	assert.ErrorIs(t, err, motion.ErrInvalidConfig)

	path = writeConfig(t, "motion.json", `{"samples_per_window": 7}`)
	cfg, err = LoadClassifierConfig(path)
	require.NoError(t, err)
	_, err = cfg.MotionConfig()
	assert.ErrorIs(t, err, motion.ErrInvalidConfig)
}

func TestPortOptions(t *testing.T) {
	assert.Equal(t, "115200 8N1", MustLoadDefaultConfig().PortOptions().String())

	path := writeConfig(t, "serial.json", `{"baud_rate": 9600, "parity": "even", "stop_bits": 2}`)
	cfg, err := LoadClassifierConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9600 8E2", cfg.PortOptions().String())
}
