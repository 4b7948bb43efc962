// Package app assembles the lookup service from configuration: it opens the
// gazetteer indexes, validates their schemas, guards them and builds the
// cache. Both the server and the CLI's local mode start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/index"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/mapper"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher/guard"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher/pgsearch"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/resilience"
)

// Handle is one opened gazetteer.
type Handle struct {
	Source  gazetteer.Source
	Guard   *guard.Guarded
	Mapper  *mapper.Mapper
	OpenErr error
}

// Status reports the gazetteer's health. A gazetteer that failed to open or
// whose breaker is open is degraded: lookups still answer, just empty.
func (h *Handle) Status(context.Context) health.ComponentHealth {
	if h.OpenErr != nil {
		return health.FromError(h.OpenErr, true)
	}
	if state := h.Guard.State(); state != resilience.StateClosed {
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
	}
	return health.ComponentHealth{Status: health.StatusUp}
}

type App struct {
	Config   *config.Config
	Service  *lookup.Service
	Global   *Handle
	National *Handle
	Postgres *postgres.Client
	Redis    *pkgredis.Client

	closers []func() error
	logger  *slog.Logger
}

type options struct {
	metrics  *metrics.Metrics
	monitors []lookup.Monitor
}

type Option func(*options)

// WithMetrics records breaker state and lookup metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMonitor adds a lookup monitor.
func WithMonitor(m lookup.Monitor) Option {
	return func(o *options) { o.monitors = append(o.monitors, m) }
}

// Build opens everything cfg describes. Missing or unopenable indexes are
// logged and served as unavailable; schema mismatches and broken cache or
// database settings are errors.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Config: cfg, logger: slog.Default().With("component", "app")}
	for _, w := range cfg.Warnings() {
		a.logger.Warn(w)
	}

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var err error
	if a.Global, err = a.open(ctx, gazetteer.SourceGeonames, cfg.Gazetteers.Geonames, o.metrics); err != nil {
		a.Close()
		return nil, err
	}
	if a.National, err = a.open(ctx, gazetteer.SourceUSGS, cfg.Gazetteers.USGS, o.metrics); err != nil {
		a.Close()
		return nil, err
	}

	resultCache, closeCache, err := cache.FromConfig(cfg.Cache, a.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building cache: %w", err)
	}
	a.closers = append(a.closers, closeCache)

	monitors := o.monitors
	if o.metrics != nil {
		monitors = append(monitors, lookup.NewMetricsMonitor(o.metrics))
	}
	svc, err := lookup.New(
		lookup.Gazetteer{Searcher: a.Global.Guard, Mapper: a.Global.Mapper},
		lookup.Gazetteer{Searcher: a.National.Guard, Mapper: a.National.Mapper},
		lookup.WithCache(resultCache),
		lookup.WithCutoff(cfg.Lookup.ScoreCutoff),
		lookup.WithRowLimits(cfg.Lookup.DefaultRows, cfg.Lookup.MaxRows),
		lookup.WithPoolSize(cfg.Lookup.WorkerPoolSize),
		lookup.WithMonitor(lookup.Monitors(monitors...)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	a.closers = append(a.closers, func() error { svc.Close(); return nil })

	a.logger.Info("lookup service ready",
		"cache", cfg.Cache.Backend,
		"score_cutoff", cfg.Lookup.ScoreCutoff,
		"geonames_available", a.Global.OpenErr == nil,
		"usgs_available", a.National.OpenErr == nil,
	)
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		a.Postgres = pg
		a.closers = append(a.closers, pg.Close)
	}
	if cfg.Cache.Backend == config.CacheRedis {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.Redis = rc
		a.closers = append(a.closers, rc.Close)
	}
	return nil
}

func (a *App) open(ctx context.Context, source gazetteer.Source, gcfg config.GazetteerConfig, m *metrics.Metrics) (*Handle, error) {
	schema, err := mapper.FromConfig(source, gcfg)
	if err != nil {
		return nil, fmt.Errorf("%s schema: %w", source, err)
	}
	h := &Handle{Source: source, Mapper: mapper.New(schema)}

	inner, err := a.openSearcher(source, gcfg)
	if err != nil {
		a.logger.Warn("gazetteer unavailable, lookups will return no candidates",
			"source", source, "error", err)
		h.OpenErr = err
		inner = searcher.Unavailable(string(source), err.Error())
	} else if reporter, ok := inner.(searcher.SchemaReporter); ok {
		names, err := reporter.FieldNames(ctx)
		if err != nil {
			a.logger.Warn("could not read gazetteer schema", "source", source, "error", err)
		} else if err := schema.Validate(names); err != nil {
			return nil, err
		}
	}

	cb := resilience.CircuitBreakerConfig{}
	if m != nil {
		gauge := m.CircuitBreakerState
		cb.OnStateChange = func(name string, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
		gauge.WithLabelValues(string(source)).Set(0)
	}
	h.Guard = guard.Wrap(string(source), inner, a.Config.Lookup.SearchTimeout, cb)
	return h, nil
}

func (a *App) openSearcher(source gazetteer.Source, gcfg config.GazetteerConfig) (searcher.Searcher, error) {
	if !gcfg.Located() {
		return nil, errors.New("index location not configured")
	}
	switch gcfg.Backend {
	case config.BackendPostgres:
		if a.Postgres == nil {
			return nil, errors.New("postgres backend selected but postgres is disabled")
		}
		return pgsearch.New(a.Postgres.DB, gcfg.Table)
	default:
		engine, err := index.Open(gcfg.IndexPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, engine.Close)
		a.logger.Info("gazetteer index opened", "source", source, "path", gcfg.IndexPath, "documents", engine.DocCount())
		return engine, nil
	}
}

// RegisterHealth adds gazetteer and dependency checks to c.
func (a *App) RegisterHealth(c *health.Checker) {
	c.Register("gazetteer_geonames", a.Global.Status)
	c.Register("gazetteer_usgs", a.National.Status)
	if a.Redis != nil {
		c.Register("redis", func(ctx context.Context) health.ComponentHealth {
			return health.FromError(a.Redis.Ping(ctx), false)
		})
	}
	if a.Postgres != nil {
		c.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			return health.FromError(a.Postgres.Ping(ctx), false)
		})
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

var _ io.Closer = (*App)(nil)
