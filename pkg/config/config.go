package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel         string             `yaml:"log_level" default:"info"`
	Peripheral       PeripheralConfig   `yaml:"peripheral"`
	ScanTimeout      time.Duration      `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout   time.Duration      `yaml:"connect_timeout" default:"10s"`
	HistoryCapacity  int                `yaml:"history_capacity" default:"100"`
	AlertLogCapacity int                `yaml:"alert_log_capacity" default:"100"`
	Retry            RetryConfig        `yaml:"retry"`
	Metrics          MetricsConfig      `yaml:"metrics"`
	MQTT             MQTTConfig         `yaml:"mqtt"`
	Capabilities     CapabilitiesConfig `yaml:"capabilities"`
}

// PeripheralConfig selects the sensor and its GATT endpoints.
type PeripheralConfig struct {
	NameFilter         string `yaml:"name_filter" default:"PlantSensor"`
	ServiceUUID        string `yaml:"service_uuid" default:"0000ffe0-0000-1000-8000-00805f9b34fb"`
	CharacteristicUUID string `yaml:"characteristic_uuid" default:"0000ffe1-0000-1000-8000-00805f9b34fb"`
}

// RetryConfig bounds how often the monitor restarts a failed attempt.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3"`
	Backoff     time.Duration `yaml:"backoff" default:"2s"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig enables the MQTT sink when Broker is set.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id" default:"plantmon"`
	TopicPrefix    string        `yaml:"topic_prefix" default:"plantmon"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"5s"`
}

// CapabilitiesConfig lets the operator assert the radio grants on platforms
// where the process cannot query them.
type CapabilitiesConfig struct {
	AssumeGranted bool `yaml:"assume_granted"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Peripheral.NameFilter == "" && c.Peripheral.ServiceUUID == "" {
		errs = append(errs, errors.New("peripheral: name_filter or service_uuid is required"))
	}
	if c.Peripheral.CharacteristicUUID == "" {
		errs = append(errs, errors.New("peripheral.characteristic_uuid is required"))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, errors.New("scan_timeout must be > 0"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be > 0"))
	}
	if c.HistoryCapacity <= 0 {
		errs = append(errs, errors.New("history_capacity must be > 0"))
	}
	if c.AlertLogCapacity <= 0 {
		errs = append(errs, errors.New("alert_log_capacity must be > 0"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be >= 1"))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, errors.New("retry.backoff must not be negative"))
	}
	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		errs = append(errs, errors.New("mqtt.client_id is required with mqtt.broker"))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
