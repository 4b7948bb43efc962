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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/app"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/handler"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/rpc"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting gazetteer lookup service", "port", cfg.Server.Port, "cache", cfg.Cache.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	agg := analytics.NewAggregator()

	// The local aggregator covers this replica; with Kafka enabled events are
	// also published for the fleet-wide analytics service.
	sinks := []analytics.Sink{agg}
	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.LookupEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, 100, 2*time.Second)
		collector.Start(ctx)
		sinks = append(sinks, collector)
	}

	a, err := app.Build(ctx, cfg, app.WithMetrics(m), app.WithMonitor(analytics.NewMonitor(sinks...)))
	if err != nil {
		slog.Error("failed to build lookup service", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	if collector != nil {
		defer collector.Close()
	}

	if cfg.Kafka.Enabled {
		reloads := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexReloaded, cache.NewListener(a.Service).Handle, kafka.Broadcast())
		go func() {
			if err := reloads.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("reload listener error", "error", err)
			}
		}()
		slog.Info("listening for index reloads", "topic", cfg.Kafka.Topics.IndexReloaded)
	}

	checker := health.NewChecker()
	a.RegisterHealth(checker)

	mux := http.NewServeMux()
	handler.New(a.Service, cfg.Lookup.MaxRows, cfg.Lookup.MaxBatchSize).Register(mux)
	analyticsH := analytics.NewHandler(agg, nil)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", m.Handler())

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.Metrics(m)}
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(cfg.Server.CORSOrigins))
	}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.PerSecond(cfg.Server.RateLimit)
		go limiter.Run(ctx, 5*time.Minute)
		mws = append(mws, middleware.RateLimit(limiter))
		slog.Info("rate limiting enabled", "requests_per_second", cfg.Server.RateLimit)
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))
	chain := middleware.Chain(mux, mws...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var rpcServer *grpc.Server
	if cfg.RPC.Enabled {
		rpcServer = grpc.NewServer(grpc.WithCallTimeout(cfg.Server.WriteTimeout))
		rpc.Register(rpcServer, a.Service)
		go func() {
			if err := rpcServer.Serve(cfg.RPC.Addr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Port, cfg.Server.ShutdownTimeout); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("gazetteer lookup service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("gazetteer lookup service stopped")
}
