package di

import (
	"context"
	"fmt"
	"time"

	"TrendScan/internal/domain/models"
	"TrendScan/internal/domain/repository"
	"TrendScan/internal/handler/api"
	internalrepo "TrendScan/internal/repository"
	"TrendScan/internal/services/trailstop"
	"TrendScan/internal/usecase"
	"TrendScan/pkg/cache"
	pkgch "TrendScan/pkg/clickhouse"
	"TrendScan/pkg/config"
	pkgkafka "TrendScan/pkg/kafka"
	applogger "TrendScan/pkg/logger"
	"TrendScan/pkg/metrics"
	"TrendScan/pkg/queue"
	"TrendScan/pkg/server"
)

// memoryCacheSize bounds the in-process cache: one snapshot key plus one
// row key per symbol of a large universe.
const memoryCacheSize = 20_000

// ProvideLogger creates the application logger. When log collection is on,
// repeated warnings and errors are shipped to Kafka in batches.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.Collect.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collect.Interval,
			CountThreshold: cfg.Logging.Collect.Threshold,
			Topic:          cfg.Logging.Collect.Topic,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideClickHouseClient creates a ClickHouse client. ClickHouse holds the
// daily prices, so the batch cannot run without it.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, fmt.Errorf("clickhouse: disabled, but it is the only price source")
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvidePriceSource creates the weekly price loader.
func ProvidePriceSource(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.PriceSource {
	src := internalrepo.NewCHPriceSource(ch, cfg.ClickHouse.PricesTable)
	src.SetLogger(l)
	return src
}

// ProvideResultStore creates the result store and ensures its tables.
func ProvideResultStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.ResultStore, error) {
	store := internalrepo.NewCHResultStore(ch, cfg.ClickHouse.RunsTable, cfg.ClickHouse.ResultsTable)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithKeyOrdering(true),
		pkgkafka.WithAutoCreateTopics(cfg.Environment != "production"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher publishes crossovers to Kafka, or drops them.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	if producer == nil {
		return internalrepo.NopSignalPublisher{}
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalTopic)
}

// ProvideCache creates the Redis cache, or an in-process cache when Redis is off.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(memoryCacheSize),
			cache.WithMemoryCleanup(time.Minute),
		), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdle, cfg.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideSnapshotCache stores the latest snapshot in the cache.
func ProvideSnapshotCache(c cache.Service, cfg *config.Config) repository.SnapshotCache {
	return internalrepo.NewSnapshotCache(c, cfg.Redis.SnapshotTTL)
}

// ProvideRunLock guards batches with the cache's SETNX lock.
func ProvideRunLock(c cache.Service) repository.RunLock {
	return c
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEngine creates the trailing-stop engine from config.
func ProvideEngine(cfg *config.Config, l *applogger.Logger) (*trailstop.Engine, error) {
	e, err := trailstop.NewEngine(models.Params{
		FastLength:     cfg.TrailStop.FastLength,
		FastMultiplier: cfg.TrailStop.FastMultiplier,
		SlowLength:     cfg.TrailStop.SlowLength,
		SlowMultiplier: cfg.TrailStop.SlowMultiplier,
	}, cfg.TrailStop.Workers)
	if err != nil {
		return nil, err
	}
	e.SetLogger(l)
	return e, nil
}

// ProvideBatchRunner creates the batch use case.
func ProvideBatchRunner(
	prices repository.PriceSource,
	store repository.ResultStore,
	pub repository.SignalPublisher,
	snaps repository.SnapshotCache,
	lock repository.RunLock,
	m repository.Metrics,
	engine *trailstop.Engine,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.BatchRunner {
	return usecase.NewBatchRunner(prices, store, pub, snaps, lock, m, engine, l, usecase.BatchOptions{
		Symbols:      cfg.Universe.Symbols,
		HistoryWeeks: cfg.TrailStop.HistoryWeeks,
		LockTTL:      cfg.Schedule.LockTTL,
		Timeout:      cfg.TrailStop.Timeout,
		AsOf:         cfg.AsOf(),
	})
}

// ProvideQueue creates the manual-run queue, or nil when it is off. The
// queue needs Redis.
func ProvideQueue(cfg *config.Config, c cache.Service, runner *usecase.BatchRunner, l *applogger.Logger) *queue.RedisQueue {
	rc, ok := c.(*cache.RedisCache)
	if !cfg.Queue.Enabled || !ok {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Queue.Prefix))
	q.Register(usecase.NewRunJob(runner, l))
	return q
}

// ProvideHandler creates the read API handler.
func ProvideHandler(
	cfg *config.Config,
	l *applogger.Logger,
	snaps repository.SnapshotCache,
	store repository.ResultStore,
	q *queue.RedisQueue,
) *api.TrailStopEchoHandler {
	h := api.NewTrailStopEchoHandler(l, snaps, store, api.RateLimit{
		Capacity:     cfg.Server.RateLimit.Capacity,
		RefillPerSec: cfg.Server.RateLimit.RefillPerSec,
	})
	if q != nil {
		h.SetRunTrigger(internalrepo.NewQueueRunTrigger(q))
	}
	return h
}

// ProvideApp creates the application server and registers every closer.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.BatchRunner,
	handler *api.TrailStopEchoHandler,
	q *queue.RedisQueue,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	c cache.Service,
) *server.App {
	app := server.New(cfg, l, runner, handler)
	if q != nil {
		app.SetQueue(q)
	}
	app.AddCloser("clickhouse", ch.Close)
	app.AddCloser("cache", c.Close)
	if producer != nil {
		app.AddCloser("kafka", producer.Close)
	}
	app.AddCloser("log collector", func() error {
		l.RemoveCollector()
		return nil
	})
	return app
}
