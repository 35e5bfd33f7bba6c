// Package config defines the configuration of ResumeLens and the rules that
// make a configuration usable. Loading lives in loader.go, defaults in
// defaults.go.
package config

import (
	"math"
	"time"

	"github.com/turtacn/ResumeLens/internal/intelligence/normalize"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

// ---------------------------------------------------------------------------
// Sections
// ---------------------------------------------------------------------------

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// NormalizationConfig names the text normalization mode. There is no
// built-in default: spans produced under one mode are not valid offsets under
// the other, so every deployment must choose.
type NormalizationConfig struct {
	Mode string `mapstructure:"mode"`
}

// MatcherConfig selects the weak-labelling pattern table, either a built-in
// table name or a path to a YAML table.
type MatcherConfig struct {
	Table string `mapstructure:"table"`
}

// ResolverConfig tunes span resolution.
type ResolverConfig struct {
	AlignTokens bool `mapstructure:"align_tokens"`
}

// SplitConfig holds partition ratios for single-input corpus builds.
type SplitConfig struct {
	Train float64 `mapstructure:"train"`
	Dev   float64 `mapstructure:"dev"`
	Test  float64 `mapstructure:"test"`
}

// CorpusConfig tunes corpus construction.
type CorpusConfig struct {
	UsePredictions bool        `mapstructure:"use_predictions"`
	Workers        int         `mapstructure:"workers"`
	RemapOffsets   bool        `mapstructure:"remap_offsets"`
	Split          SplitConfig `mapstructure:"split"`
	// Output is a local directory or an s3://bucket/prefix location.
	Output string `mapstructure:"output"`
}

// ExtractionConfig tunes the inference path.
type ExtractionConfig struct {
	MinChars      int           `mapstructure:"min_chars"`
	Recognizer    string        `mapstructure:"recognizer"` // http | regex, no default
	ModelEndpoint string        `mapstructure:"model_endpoint"`
	ModelVersion  string        `mapstructure:"model_version"`
	ModelTimeout  time.Duration `mapstructure:"model_timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds the extraction cache connection.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PostgresConfig holds the build report store connection.
type PostgresConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"db_name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// MinIOConfig holds the object store used for s3:// sources and sinks.
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
}

// KafkaConfig holds the task stream used for kafka:// sources and the
// prelabel sink.
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	GroupID       string        `mapstructure:"group_id"`
	TaskTopic     string        `mapstructure:"task_topic"`
	PrelabelTopic string        `mapstructure:"prelabel_topic"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	MaxMessages   int           `mapstructure:"max_messages"`
}

// MetricsConfig controls the prometheus textfile export.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Textfile  string `mapstructure:"textfile"`
}

// Config is the root configuration.
type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	Normalization NormalizationConfig `mapstructure:"normalization"`
	Matcher       MatcherConfig       `mapstructure:"matcher"`
	Resolver      ResolverConfig      `mapstructure:"resolver"`
	Corpus        CorpusConfig        `mapstructure:"corpus"`
	Extraction    ExtractionConfig    `mapstructure:"extraction"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate returns the first problem found as a configuration error.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "expected debug|info|warn|error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format", "expected json|console, got %q", c.Log.Format)
	}

	if _, err := normalize.ParseMode(c.Normalization.Mode); err != nil {
		return err
	}

	if c.Matcher.Table == "" {
		return invalid("matcher.table", "a built-in table name or a YAML path is required")
	}

	if c.Corpus.Workers < 1 {
		return invalid("corpus.workers", "must be >= 1, got %d", c.Corpus.Workers)
	}
	if err := c.Corpus.Split.validate(); err != nil {
		return err
	}

	if c.Extraction.MinChars < 0 {
		return invalid("extraction.min_chars", "must be >= 0, got %d", c.Extraction.MinChars)
	}
	switch c.Extraction.Recognizer {
	case "", RecognizerRegex:
	case RecognizerHTTP:
		if c.Extraction.ModelEndpoint == "" {
			return invalid("extraction.model_endpoint", "required when recognizer is http")
		}
	default:
		return invalid("extraction.recognizer", "expected regex|http, got %q", c.Extraction.Recognizer)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return invalid("redis.addr", "required when redis is enabled")
	}
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" || c.Postgres.DBName == "" || c.Postgres.User == "" {
			return invalid("postgres", "host, db_name and user are required when postgres is enabled")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			return invalid("postgres.port", "%d is out of range", c.Postgres.Port)
		}
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return invalid("minio", "endpoint and bucket are required when minio is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return invalid("metrics.namespace", "required when metrics are enabled")
	}
	return nil
}

// Recognizer names.
const (
	RecognizerHTTP  = "http"
	RecognizerRegex = "regex"
)

// RequireRecognizer checks that an inference recognizer was chosen. Only the
// commands that run inference call it.
func (e ExtractionConfig) RequireRecognizer() error {
	if e.Recognizer == "" {
		return invalid("extraction.recognizer",
			"required for inference: use http for a trained model, or regex to run the weak-label term table as a stand-in")
	}
	return nil
}

// UsesStandIn reports whether inference runs on the weak-label term table.
func (e ExtractionConfig) UsesStandIn() bool { return e.Recognizer == RecognizerRegex }

// IsZero reports whether no ratio has been set.
func (s SplitConfig) IsZero() bool {
	return s.Train == 0 && s.Dev == 0 && s.Test == 0
}

func (s SplitConfig) validate() error {
	if s.IsZero() {
		return nil
	}
	if s.Train < 0 || s.Dev < 0 || s.Test < 0 {
		return invalid("corpus.split", "ratios must be non-negative")
	}
	if math.Abs(s.Train+s.Dev+s.Test-1) > 1e-6 {
		return invalid("corpus.split", "ratios must sum to 1, got %.4f", s.Train+s.Dev+s.Test)
	}
	return nil
}

func invalid(field, format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeConfiguration, "config: "+field+": "+format, args...)
}
