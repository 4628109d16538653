package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nexops/internal/anomaly/detector"
	auditmemory "nexops/internal/audit/store/memory"
	auditpostgres "nexops/internal/audit/store/postgres"
	"nexops/internal/engine"
	"nexops/internal/feed"
	feedkafka "nexops/internal/feed/kafka"
	feedmemory "nexops/internal/feed/memory"
	"nexops/internal/feed/pgnotify"
	"nexops/internal/outbox"
	outboxpostgres "nexops/internal/outbox/store/postgres"
	"nexops/internal/platform/config"
	platformkafka "nexops/internal/platform/kafka"
	"nexops/internal/platform/metrics"
	"nexops/internal/platform/postgres"
	"nexops/internal/platform/redis"
	remotememory "nexops/internal/remote/memory"
	remotepostgres "nexops/internal/remote/postgres"
)

const healthTimeout = 2 * time.Second

// infra is everything the session runs on, chosen by configuration.
type infra struct {
	deps     engine.Deps
	db       *sql.DB
	cache    *redis.Client
	producer *platformkafka.Producer
	relay    *outbox.Worker
	locker   detector.ScanLocker
	closers  []func() error
}

// buildInfra picks the stores and the change feed. Without DATABASE_URL
// everything runs in memory; FEED_DRIVER selects how row changes reach the
// session when Postgres is the store.
func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (_ *infra, err error) {
	in := &infra{}
	defer func() {
		if err != nil {
			in.close()
		}
	}()

	if cfg.Engine.ScanLock {
		in.cache, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		in.closers = append(in.closers, in.cache.Close)
		in.locker = redis.NewLocker(in.cache.Client, cfg.Engine.ScanLockTTL)
	}

	if cfg.Postgres.DSN == "" {
		broker := feedmemory.NewBroker(feedmemory.WithLogger(log))
		store := remotememory.New(remotememory.WithPublisher(broker), remotememory.WithLogger(log))
		in.closers = append(in.closers, func() error { broker.Shutdown(); return nil })
		in.deps = engine.Deps{Anomalies: store, Shipments: store, Audit: auditmemory.New(), Feed: broker}
		log.Warn("DATABASE_URL not set, running on in-memory stores")
		return in, nil
	}

	in.db, err = postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	in.closers = append(in.closers, in.db.Close)
	if err := postgres.Migrate(ctx, in.db); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	var (
		changes   feed.Feed
		storeOpts []remotepostgres.Option
	)
	switch cfg.Engine.FeedDriver {
	case config.FeedMemory:
		broker := feedmemory.NewBroker(feedmemory.WithLogger(log))
		in.closers = append(in.closers, func() error { broker.Shutdown(); return nil })
		changes = broker
		storeOpts = append(storeOpts, remotepostgres.WithPublisher(broker))
	case config.FeedPGNotify:
		changes = pgnotify.New(cfg.Postgres.DSN, postgres.NotifyChannel, pgnotify.WithLogger(log))
	case config.FeedKafka:
		if err := in.startOutbox(ctx, cfg, log, m); err != nil {
			return nil, err
		}
		changes = feedkafka.New(cfg.Kafka, feedkafka.WithLogger(log))
		storeOpts = append(storeOpts, remotepostgres.WithPublisher(outbox.NewWriter(outboxpostgres.New(in.db))))
	default:
		return nil, fmt.Errorf("unknown feed driver %q", cfg.Engine.FeedDriver)
	}

	store := remotepostgres.New(in.db, storeOpts...)
	in.deps = engine.Deps{
		Anomalies: store,
		Shipments: store,
		Audit:     auditpostgres.New(in.db),
		Feed:      changes,
	}
	return in, nil
}

// startOutbox connects the producer, makes sure the change topic exists and
// prepares the relay worker; main runs it.
func (in *infra) startOutbox(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) error {
	producer, err := platformkafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	in.producer = producer
	in.closers = append(in.closers, func() error { producer.Close(); return nil })
	if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions); err != nil {
		return fmt.Errorf("ensure kafka topic: %w", err)
	}
	in.relay = outbox.NewWorker(outboxpostgres.New(in.db), producer,
		outbox.WithLogger(log),
		outbox.WithMetrics(m),
		outbox.WithInterval(cfg.Kafka.OutboxInterval),
		outbox.WithBatchSize(cfg.Kafka.OutboxBatch),
	)
	return nil
}

func (in *infra) health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	var errs []error
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if in.cache != nil {
		if err := in.cache.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if in.producer != nil {
		if err := in.producer.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	}
	return errors.Join(errs...)
}

// close releases resources in reverse order of acquisition.
func (in *infra) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			slog.Warn("closing infrastructure", "error", err)
		}
	}
}
