package cli

import (
	"context"
	"io"

	"github.com/turtacn/ResumeLens/internal/application/corpus"
	"github.com/turtacn/ResumeLens/internal/application/ingest"
	"github.com/turtacn/ResumeLens/internal/config"
	"github.com/turtacn/ResumeLens/internal/infrastructure/database/postgres"
	"github.com/turtacn/ResumeLens/internal/infrastructure/database/redis"
	"github.com/turtacn/ResumeLens/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/internal/infrastructure/storage/minio"
	"github.com/turtacn/ResumeLens/internal/intelligence/common"
	"github.com/turtacn/ResumeLens/internal/intelligence/normalize"
	"github.com/turtacn/ResumeLens/internal/intelligence/termmatch"
	"github.com/turtacn/ResumeLens/internal/intelligence/tokenize"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

// runtime builds the dependencies a command needs from the loaded config and
// closes them in reverse order when the command ends.
type runtime struct {
	cfg     *config.Config
	logger  logging.Logger
	closers []io.Closer

	objects *minio.MinIOClient
	redis   *redis.Client
}

func newRuntime(cliCtx *CLIContext) *runtime {
	return &runtime{cfg: cliCtx.Config, logger: cliCtx.Logger}
}

func (r *runtime) track(c io.Closer) {
	r.closers = append(r.closers, c)
}

// Close releases every tracked dependency. Close errors are logged, not
// returned, so they never mask the command's own error.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			r.logger.Warn("close dependency", logging.Err(err))
		}
	}
	r.closers = nil
}

func (r *runtime) normalizer() (*normalize.Normalizer, error) {
	mode, err := normalize.ParseMode(r.cfg.Normalization.Mode)
	if err != nil {
		return nil, err
	}
	return normalize.New(mode)
}

func (r *runtime) matcher() (*termmatch.Matcher, error) {
	table, err := termmatch.Open(r.cfg.Matcher.Table)
	if err != nil {
		return nil, err
	}
	return termmatch.Compile(table)
}

// aligner returns nil when token alignment is disabled.
func (r *runtime) aligner() corpus.Aligner {
	if !r.cfg.Resolver.AlignTokens {
		return nil
	}
	return tokenize.New()
}

func (r *runtime) recognizer() (common.Recognizer, error) {
	ec := r.cfg.Extraction
	if err := ec.RequireRecognizer(); err != nil {
		return nil, err
	}
	switch ec.Recognizer {
	case config.RecognizerHTTP:
		rec, err := common.NewHTTPRecognizer(ec.ModelEndpoint, ec.ModelVersion,
			common.WithTimeout(ec.ModelTimeout),
			common.WithLogger(r.logger),
		)
		if err != nil {
			return nil, err
		}
		r.track(rec)
		return rec, nil
	default:
		m, err := r.matcher()
		if err != nil {
			return nil, err
		}
		r.logger.Warn("inference runs on the weak-label term table",
			logging.String("table", m.Version()))
		return common.NewRegexRecognizer(m), nil
	}
}

// objectStore connects to MinIO once. It returns nil when MinIO is disabled.
func (r *runtime) objectStore(ctx context.Context) (*minio.MinIOClient, error) {
	if !r.cfg.MinIO.Enabled {
		return nil, nil
	}
	if r.objects != nil {
		return r.objects, nil
	}
	mc := r.cfg.MinIO
	client, err := minio.NewMinIOClient(ctx, &minio.MinIOConfig{
		Endpoint:        mc.Endpoint,
		AccessKeyID:     mc.AccessKeyID,
		SecretAccessKey: mc.SecretAccessKey,
		UseSSL:          mc.UseSSL,
		Region:          mc.Region,
		Bucket:          mc.Bucket,
	}, r.logger)
	if err != nil {
		return nil, err
	}
	r.track(client)
	r.objects = client
	return client, nil
}

// ingester wires the object store and the task stream when configured.
func (r *runtime) ingester(ctx context.Context, cliCtx *CLIContext) (*ingest.Ingester, error) {
	opts := []ingest.Option{ingest.WithLogger(r.logger), ingest.WithMetrics(cliCtx.Metrics)}

	store, err := r.objectStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, ingest.WithObjectSource(store))
	}

	if len(r.cfg.Kafka.Brokers) > 0 {
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:     r.cfg.Kafka.Brokers,
			GroupID:     r.cfg.Kafka.GroupID,
			IdleTimeout: r.cfg.Kafka.IdleTimeout,
			MaxMessages: r.cfg.Kafka.MaxMessages,
		}, r.logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ingest.WithStreamSource(consumer))
	}
	return ingest.New(opts...), nil
}

func (r *runtime) producer(topic string) (*kafka.Producer, error) {
	if len(r.cfg.Kafka.Brokers) == 0 {
		return nil, errors.Configuration("kafka destination requires kafka.brokers")
	}
	p, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: r.cfg.Kafka.Brokers,
		Topic:   topic,
	}, r.logger)
	if err != nil {
		return nil, err
	}
	r.track(p)
	return p, nil
}

// redisClient connects once. It returns nil when Redis is disabled.
func (r *runtime) redisClient(ctx context.Context) (*redis.Client, error) {
	if !r.cfg.Redis.Enabled {
		return nil, nil
	}
	if r.redis != nil {
		return r.redis, nil
	}
	rc := r.cfg.Redis
	client, err := redis.NewClient(ctx, &redis.RedisConfig{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	}, r.logger)
	if err != nil {
		return nil, err
	}
	r.track(client)
	r.redis = client
	return client, nil
}

func (r *runtime) cache(ctx context.Context) (*redis.Cache, error) {
	client, err := r.redisClient(ctx)
	if err != nil || client == nil {
		return nil, err
	}
	return redis.NewCache(client, r.logger,
		redis.WithPrefix(r.cfg.Redis.KeyPrefix),
		redis.WithDefaultTTL(r.cfg.Extraction.CacheTTL),
	), nil
}

// postgres connects to the build report store. Unlike the optional
// backends it fails when Postgres is disabled, since every caller needs it.
func (r *runtime) postgres(ctx context.Context) (*postgres.Connection, error) {
	if !r.cfg.Postgres.Enabled {
		return nil, errors.Configuration("postgres is not enabled")
	}
	pc := r.cfg.Postgres
	conn, err := postgres.NewConnection(ctx, postgres.PostgresConfig{
		Host:         pc.Host,
		Port:         pc.Port,
		Database:     pc.DBName,
		Username:     pc.User,
		Password:     pc.Password,
		SSLMode:      pc.SSLMode,
		MaxOpenConns: pc.MaxOpenConns,
	}, r.logger)
	if err != nil {
		return nil, err
	}
	r.track(conn)
	return conn, nil
}
