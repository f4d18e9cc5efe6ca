package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 5, c.TrailStop.FastLength)
	assert.Equal(t, 0.5, c.TrailStop.FastMultiplier)
	assert.Equal(t, 10, c.TrailStop.SlowLength)
	assert.Equal(t, 3.0, c.TrailStop.SlowMultiplier)
	assert.Equal(t, 30*time.Second, c.Logging.Collect.Interval)
	assert.Equal(t, "0 6 * * 6", c.Schedule.Cron)
	require.NoError(t, c.Validate())
}

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	c, err := Parse([]byte("trailstop:\n  slow_length: 20\n"))
	require.NoError(t, err)
	assert.Equal(t, 20, c.TrailStop.SlowLength)
	assert.Equal(t, 5, c.TrailStop.FastLength)
	assert.Equal(t, "trendscan", c.Redis.Prefix)
}

func TestValidateRejectsNonPositiveParams(t *testing.T) {
	c, err := Parse([]byte("trailstop:\n  fast_multiplier: 0\n"))
	require.NoError(t, err)
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TrailStop.FastMultiplier")
}

func TestValidateKafkaRequiresBrokers(t *testing.T) {
	c := Default()
	c.Kafka.Enabled = true
	require.Error(t, c.Validate())

	c.Kafka.Brokers = []string{"localhost:9092"}
	require.NoError(t, c.Validate())
}

func TestValidateCollectorNeedsKafka(t *testing.T) {
	c := Default()
	c.Logging.Collect.Enabled = true
	require.Error(t, c.Validate())
}

func TestValidateQueueNeedsRedis(t *testing.T) {
	c := Default()
	c.Queue.Enabled = true
	require.Error(t, c.Validate())

	c.Redis.Enabled = true
	require.NoError(t, c.Validate())
}

func TestAsOf(t *testing.T) {
	c := Default()
	assert.True(t, c.AsOf().IsZero())

	c.TrailStop.AsOf = "2024-03-08"
	require.NoError(t, c.Validate())
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), c.AsOf())

	c.TrailStop.AsOf = "next week"
	require.Error(t, c.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TRAILSTOP_FAST_LENGTH": "7",
		"TRAILSTOP_SLOW_MULT":   "2.5",
		"TRAILSTOP_WORKERS":     "bogus",
		"KAFKA_BROKERS":         "a:9092, b:9092",
		"SYMBOLS":               "AAPL,MSFT",
	}
	c := Default()
	c.TrailStop.Workers = 4
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, 7, c.TrailStop.FastLength)
	assert.Equal(t, 2.5, c.TrailStop.SlowMultiplier)
	assert.Equal(t, 4, c.TrailStop.Workers)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Universe.Symbols)
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\ntrailstop:\n  fast_length: 3\n"), 0o600))
	t.Setenv("TRAILSTOP_SLOW_LENGTH", "30")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 3, c.TrailStop.FastLength)
	assert.Equal(t, 30, c.TrailStop.SlowLength)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
