package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMatcherTable = "regex_v1"

	DefaultCorpusWorkers = 4
	DefaultCorpusOutput  = "./corpus"

	DefaultMinChars     = 30
	DefaultModelTimeout = 10 * time.Second
	DefaultCacheTTL     = 24 * time.Hour

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "resumelens:"

	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"
	DefaultPostgresConns   = 4

	DefaultMinIORegion = "us-east-1"

	DefaultKafkaGroupID     = "resumelens"
	DefaultKafkaIdleTimeout = 5 * time.Second

	DefaultMetricsNamespace = "resumelens"
)

// setDefaults registers every key with viper. Keys without a meaningful
// default are registered empty so that RESUMELENS_* variables can set them
// without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("normalization.mode", "")

	v.SetDefault("matcher.table", DefaultMatcherTable)
	v.SetDefault("resolver.align_tokens", true)

	v.SetDefault("corpus.use_predictions", false)
	v.SetDefault("corpus.workers", DefaultCorpusWorkers)
	v.SetDefault("corpus.remap_offsets", true)
	v.SetDefault("corpus.split.train", 0.0)
	v.SetDefault("corpus.split.dev", 0.0)
	v.SetDefault("corpus.split.test", 0.0)
	v.SetDefault("corpus.output", DefaultCorpusOutput)

	v.SetDefault("extraction.min_chars", DefaultMinChars)
	v.SetDefault("extraction.recognizer", "")
	v.SetDefault("extraction.model_endpoint", "")
	v.SetDefault("extraction.model_version", "")
	v.SetDefault("extraction.model_timeout", DefaultModelTimeout)
	v.SetDefault("extraction.cache_ttl", DefaultCacheTTL)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", DefaultPostgresPort)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db_name", "")
	v.SetDefault("postgres.ssl_mode", DefaultPostgresSSLMode)
	v.SetDefault("postgres.max_open_conns", DefaultPostgresConns)

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.region", DefaultMinIORegion)
	v.SetDefault("minio.bucket", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("kafka.task_topic", "")
	v.SetDefault("kafka.prelabel_topic", "")
	v.SetDefault("kafka.idle_timeout", DefaultKafkaIdleTimeout)
	v.SetDefault("kafka.max_messages", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.textfile", "")
}

// ApplyDefaults fills zero-valued non-boolean fields of a programmatically
// built Config. Booleans cannot be told apart from an explicit false and are
// left as they are.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Matcher.Table == "" {
		cfg.Matcher.Table = DefaultMatcherTable
	}
	if cfg.Corpus.Workers == 0 {
		cfg.Corpus.Workers = DefaultCorpusWorkers
	}
	if cfg.Corpus.Output == "" {
		cfg.Corpus.Output = DefaultCorpusOutput
	}
	if cfg.Extraction.MinChars == 0 {
		cfg.Extraction.MinChars = DefaultMinChars
	}
	if cfg.Extraction.ModelTimeout == 0 {
		cfg.Extraction.ModelTimeout = DefaultModelTimeout
	}
	if cfg.Extraction.CacheTTL == 0 {
		cfg.Extraction.CacheTTL = DefaultCacheTTL
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = DefaultPostgresSSLMode
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = DefaultPostgresConns
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = DefaultMinIORegion
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.IdleTimeout == 0 {
		cfg.Kafka.IdleTimeout = DefaultKafkaIdleTimeout
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// NewDefaultConfig returns a Config with every default applied and the
// given normalization mode.
func NewDefaultConfig(mode string) *Config {
	cfg := &Config{}
	cfg.Normalization.Mode = mode
	cfg.Resolver.AlignTokens = true
	cfg.Corpus.RemapOffsets = true
	ApplyDefaults(cfg)
	return cfg
}
