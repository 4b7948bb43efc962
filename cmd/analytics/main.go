// Command analytics aggregates lookup events from every lookup replica.
//
// It consumes the lookup-events topic as one consumer group, keeps running
// statistics in memory, snapshots them to Postgres when enabled, and serves
// GET /api/v1/analytics and GET /api/v1/analytics/snapshots.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8081, "HTTP port")
	snapshotEvery := flag.Duration("snapshot-interval", time.Minute, "how often to persist statistics")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka.enabled")
		os.Exit(1)
	}
	slog.Info("starting lookup analytics service", "port", *port, "topic", cfg.Kafka.Topics.LookupEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.LookupEvents, analytics.HandleEvent(agg))
	go func() {
		if err := agg.Start(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("aggregator error", "error", err)
		}
	}()

	checker := health.NewChecker()
	var snapshots analytics.SnapshotLister
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store := aggregator.NewStore(pg)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create snapshot table", "error", err)
			os.Exit(1)
		}
		go store.Run(ctx, agg, *snapshotEvery)
		snapshots = store
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			return health.FromError(pg.Ping(ctx), false)
		})
	}

	h := analytics.NewHandler(agg, snapshots)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
