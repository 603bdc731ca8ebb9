package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "PlantSensor", cfg.Peripheral.NameFilter)
	assert.Equal(t, "0000ffe0-0000-1000-8000-00805f9b34fb", cfg.Peripheral.ServiceUUID)
	assert.Equal(t, "0000ffe1-0000-1000-8000-00805f9b34fb", cfg.Peripheral.CharacteristicUUID)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 100, cfg.HistoryCapacity)
	assert.Equal(t, 100, cfg.AlertLogCapacity)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.Backoff)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, "plantmon", cfg.MQTT.TopicPrefix)
	assert.False(t, cfg.Capabilities.AssumeGranted)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "falls back to info on garbage", logLevel: "loud", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	raw := []byte(`
log_level: debug
peripheral:
  name_filter: Bench
scan_timeout: 3s
history_capacity: 1000
retry:
  max_attempts: 5
metrics:
  addr: ":9200"
mqtt:
  broker: tcp://localhost:1883
  topic_prefix: greenhouse/bench
capabilities:
  assume_granted: true
`)

	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, "Bench", cfg.Peripheral.NameFilter)
	assert.Equal(t, "0000ffe0-0000-1000-8000-00805f9b34fb", cfg.Peripheral.ServiceUUID, "unset keys MUST keep defaults")
	assert.Equal(t, 3*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 1000, cfg.HistoryCapacity)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.Backoff)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "plantmon", cfg.MQTT.ClientID)
	assert.Equal(t, "greenhouse/bench", cfg.MQTT.TopicPrefix)
	assert.True(t, cfg.Capabilities.AssumeGranted)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
		{name: "zero history", mutate: func(c *Config) { c.HistoryCapacity = 0 }, wantErr: "history_capacity"},
		{name: "zero alert log", mutate: func(c *Config) { c.AlertLogCapacity = 0 }, wantErr: "alert_log_capacity"},
		{name: "zero scan timeout", mutate: func(c *Config) { c.ScanTimeout = 0 }, wantErr: "scan_timeout"},
		{name: "negative connect timeout", mutate: func(c *Config) { c.ConnectTimeout = -time.Second }, wantErr: "connect_timeout"},
		{name: "no attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{
			name: "no peripheral selector",
			mutate: func(c *Config) {
				c.Peripheral.NameFilter = ""
				c.Peripheral.ServiceUUID = ""
			},
			wantErr: "name_filter or service_uuid",
		},
		{
			name: "broker without client id",
			mutate: func(c *Config) {
				c.MQTT.Broker = "tcp://localhost:1883"
				c.MQTT.ClientID = ""
			},
			wantErr: "mqtt.client_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plantmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history_capacity: 250\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.HistoryCapacity)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("history_capacity: [oops\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("history_capacity: -1\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "history_capacity")
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.NewLogger()
	}
}
