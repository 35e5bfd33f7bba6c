package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ResumeLens/pkg/errors"
)

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

const sampleConfig = `
log:
  level: debug
  format: console
normalization:
  mode: dehyphenate
corpus:
  workers: 8
  split:
    train: 0.8
    dev: 0.1
    test: 0.1
extraction:
  min_chars: 50
  cache_ttl: 1h
kafka:
  brokers: ["k1:9092", "k2:9092"]
  task_topic: tasks
`

func TestLoad_FromFile(t *testing.T) {
	path := createTempConfigFile(t, sampleConfig)

	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "dehyphenate", cfg.Normalization.Mode)
	assert.Equal(t, 8, cfg.Corpus.Workers)
	assert.InDelta(t, 0.8, cfg.Corpus.Split.Train, 1e-9)
	assert.Equal(t, 50, cfg.Extraction.MinChars)
	assert.Equal(t, time.Hour, cfg.Extraction.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "tasks", cfg.Kafka.TaskTopic)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(WithOverrides(map[string]interface{}{"normalization.mode": "soft_break"}))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.True(t, cfg.Corpus.RemapOffsets)
	assert.True(t, cfg.Resolver.AlignTokens)
	assert.Equal(t, DefaultModelTimeout, cfg.Extraction.ModelTimeout)
	assert.Equal(t, DefaultKafkaIdleTimeout, cfg.Kafka.IdleTimeout)
}

func TestLoad_ModeRequired(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestLoad_EnvOverride(t *testing.T) {
	path := createTempConfigFile(t, sampleConfig)
	setEnvVars(t, map[string]string{
		"RESUMELENS_LOG_LEVEL":             "warn",
		"RESUMELENS_CORPUS_WORKERS":        "2",
		"RESUMELENS_CORPUS_REMAP_OFFSETS": "false",
	})

	cfg, err := Load(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Corpus.Workers)
	assert.False(t, cfg.Corpus.RemapOffsets)
}

func TestLoadFromEnv(t *testing.T) {
	setEnvVars(t, map[string]string{
		"RESUMELENS_NORMALIZATION_MODE": "soft_break",
		"RESUMELENS_REDIS_ENABLED":      "true",
		"RESUMELENS_REDIS_ADDR":         "cache:6379",
	})

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "soft_break", cfg.Normalization.Mode)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoad_OverridesBeatEnv(t *testing.T) {
	setEnvVars(t, map[string]string{"RESUMELENS_NORMALIZATION_MODE": "soft_break"})

	cfg, err := Load(WithOverrides(map[string]interface{}{"normalization.mode": "dehyphenate"}))
	require.NoError(t, err)
	assert.Equal(t, "dehyphenate", cfg.Normalization.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := createTempConfigFile(t, "log: [unterminated")
	_, err := Load(WithConfigPath(path))
	assert.Error(t, err)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad() })
}

func TestWatch_RequiresPath(t *testing.T) {
	assert.Error(t, Watch("", nil, nil))
}
