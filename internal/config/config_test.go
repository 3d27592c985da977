package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, 30*time.Second, cfg.DLQPollInterval)
	require.Equal(t, 5, cfg.DLQMaxRetries)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)
	require.Equal(t, 500*time.Millisecond, cfg.InterStepDelay)
	require.Equal(t, 3, cfg.RetryMaxAttempts)
	require.Equal(t, 10*time.Second, cfg.RetryBaseDelay)
	require.Equal(t, "@midnight", cfg.RolloverSchedule)
	require.Empty(t, cfg.PostgresURL)
	require.Empty(t, cfg.SourceURL)
	require.Equal(t, "http://localhost:5173", cfg.CORSOrigin)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, time.Local, loc)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9999")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("SOURCE_RATE_PER_SECOND", "0.5")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	require.Equal(t, ":9999", cfg.HTTPAddress)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	require.Equal(t, 5, cfg.RetryMaxAttempts)
	require.Equal(t, 0.5, cfg.SourceRatePerSecond)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "UTC", loc.String())
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	contents := "source_url: http://bridge:7000\ninter_step_delay: 1s\nlog_format: text\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600))

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	cfg, err := load(v)
	require.NoError(t, err)
	require.Equal(t, "http://bridge:7000", cfg.SourceURL)
	require.Equal(t, time.Second, cfg.InterStepDelay)
	require.Equal(t, "text", cfg.LogFormat)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	_, err := load(viper.New())
	require.ErrorContains(t, err, "retry_max_attempts")

	t.Setenv("RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("TIMEZONE", "Not/AZone")
	_, err = load(viper.New())
	require.ErrorContains(t, err, "timezone")
}

func TestLoadRejectsNonPositivePollInterval(t *testing.T) {
	t.Setenv("DLQ_POLL_INTERVAL", "0s")
	_, err := load(viper.New())
	require.ErrorContains(t, err, "dlq_poll_interval")
}
