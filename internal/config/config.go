// Package config centralises configuration parsing for the vitals service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures runtime configuration values for the vitals service.
type Config struct {
	HTTPAddress         string        `mapstructure:"http_address"`
	MetricsAddress      string        `mapstructure:"metrics_address"`
	PostgresURL         string        `mapstructure:"postgres_url"`
	KafkaBrokers        []string      `mapstructure:"kafka_brokers"`
	SchemaRegistryURL   string        `mapstructure:"schema_registry_url"`
	OutboxPollInterval  time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize     int           `mapstructure:"outbox_batch_size"`
	DLQPollInterval     time.Duration `mapstructure:"dlq_poll_interval"`
	DLQMaxRetries       int           `mapstructure:"dlq_max_retries"`
	DLQBaseDelay        time.Duration `mapstructure:"dlq_base_delay"`
	JWTSecret           string        `mapstructure:"jwt_secret"`
	JWTIssuer           string        `mapstructure:"jwt_issuer"`
	SourceURL           string        `mapstructure:"source_url"`
	SourceTimeout       time.Duration `mapstructure:"source_timeout"`
	SourceRatePerSecond float64       `mapstructure:"source_rate_per_second"`
	SourceBurst         int           `mapstructure:"source_burst"`
	InterStepDelay      time.Duration `mapstructure:"inter_step_delay"`
	RetryMaxAttempts    int           `mapstructure:"retry_max_attempts"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
	RolloverSchedule    string        `mapstructure:"rollover_schedule"`
	Timezone            string        `mapstructure:"timezone"`
	TenantID            string        `mapstructure:"tenant_id"`
	UserID              string        `mapstructure:"user_id"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFormat           string        `mapstructure:"log_format"`
	CORSOrigin          string        `mapstructure:"cors_origin"`
}

var defaults = map[string]any{
	"http_address":           ":8080",
	"metrics_address":        ":9090",
	"postgres_url":           "",
	"kafka_brokers":          "kafka:9092",
	"schema_registry_url":    "http://schema-registry:8081",
	"outbox_poll_interval":   "2s",
	"outbox_batch_size":      25,
	"dlq_poll_interval":      "30s",
	"dlq_max_retries":        5,
	"dlq_base_delay":         "1m",
	"jwt_secret":             "dev-secret-change-me",
	"jwt_issuer":             "i5e.identity",
	"source_url":             "",
	"source_timeout":         "10s",
	"source_rate_per_second": 2.0,
	"source_burst":           1,
	"inter_step_delay":       "500ms",
	"retry_max_attempts":     3,
	"retry_base_delay":       "10s",
	"rollover_schedule":      "@midnight",
	"timezone":               "Local",
	"tenant_id":              "default",
	"user_id":                "local",
	"log_level":              "info",
	"log_format":             "json",
	"cors_origin":            "http://localhost:5173",
}

// Load reads config.yaml (when present) and environment variables into Config. Environment
// variables use the upper-cased key, e.g. HTTP_ADDRESS or RETRY_BASE_DELAY.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/vitals/")
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = splitAndTrim(cfg.KafkaBrokers)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry_max_attempts must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay < 0 || c.InterStepDelay < 0 {
		return errors.New("retry_base_delay and inter_step_delay must not be negative")
	}
	if c.OutboxPollInterval <= 0 || c.DLQPollInterval <= 0 {
		return errors.New("outbox_poll_interval and dlq_poll_interval must be positive")
	}
	if c.OutboxBatchSize < 1 {
		return fmt.Errorf("outbox_batch_size must be at least 1, got %d", c.OutboxBatchSize)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone; "Local" or empty means the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// splitAndTrim flattens comma separated entries and drops blanks.
func splitAndTrim(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
