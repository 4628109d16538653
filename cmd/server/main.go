package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"nexops/internal/engine"
	"nexops/internal/platform/config"
	"nexops/internal/platform/httpserver"
	"nexops/internal/platform/logger"
	"nexops/internal/platform/metrics"
	"nexops/internal/syncstate"
	httptransport "nexops/internal/transport/http"
)

// main wires infrastructure, the anomaly session and the HTTP surface.
// Business logic lives in the internal packages.
func main() {
	if err := run(); err != nil {
		slog.Error("nexops stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	infra, err := buildInfra(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer infra.close()

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithWriteTimeout(cfg.Engine.WriteTimeout),
		engine.WithKPIRefresh(cfg.Engine.KPIRefresh),
		engine.WithFeedQueueSize(cfg.Engine.FeedQueueSize),
		engine.WithDetectionAudit(cfg.Engine.AuditDetection),
	}
	if infra.locker != nil {
		opts = append(opts, engine.WithScanLocker(infra.locker))
	}
	session, err := engine.New(infra.deps, opts...)
	if err != nil {
		return err
	}

	statuses := make([]string, 0, 4)
	for _, s := range syncstate.Statuses() {
		statuses = append(statuses, string(s))
	}
	session.OnSyncChange(func(st syncstate.State) {
		m.SetSyncState(string(st.Status), statuses, st.PendingOps)
	})

	if err := session.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("session close failed", "error", err)
		}
	}()

	hub := httptransport.NewHub(session, session, log)
	defer hub.Close()
	router := httptransport.NewRouter(httptransport.New(session, log), hub, httptransport.RouterConfig{
		Logger:  log,
		Latency: m,
		Metrics: promhttp.Handler(),
		Health:  func() error { return infra.health(ctx) },
	})
	srv := httpserver.New(cfg.Server, router)

	log.Info("starting nexops",
		"addr", cfg.Server.Addr,
		"feed_driver", cfg.Engine.FeedDriver,
		"postgres", infra.db != nil,
		"scan_lock", infra.locker != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	if infra.relay != nil {
		g.Go(func() error {
			if err := infra.relay.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
