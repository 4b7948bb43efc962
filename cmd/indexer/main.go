// Command indexer loads a delimited gazetteer export into the backend the
// config names for that gazetteer: a segment directory or a Postgres table.
// It is meant for fixtures and development data; with Kafka enabled it
// announces the reload so running lookup services drop cached results.
//
// Usage:
//
//	go run ./cmd/indexer -source usgs -file NationalFile.txt [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/searcher/pgsearch"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	source := flag.String("source", "", "gazetteer to load: geonames or usgs")
	file := flag.String("file", "", "delimited export with a header row")
	delim := flag.String("delim", "", "field delimiter (default tab for geonames, | for usgs)")
	flushEvery := flag.Int("flush-every", 50000, "documents per segment")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, gazetteer.Source(*source), *file, *delim, *flushEvery); err != nil {
		slog.Error("load failed", "source", *source, "file", *file, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, source gazetteer.Source, file, delim string, flushEvery int) error {
	var gcfg config.GazetteerConfig
	sep := '\t'
	switch source {
	case gazetteer.SourceGeonames:
		gcfg = cfg.Gazetteers.Geonames
	case gazetteer.SourceUSGS:
		gcfg = cfg.Gazetteers.USGS
		sep = '|'
	default:
		return fmt.Errorf("unknown source %q", source)
	}
	if delim != "" {
		r, size := utf8.DecodeRuneInString(delim)
		if size != len(delim) {
			return fmt.Errorf("delimiter must be a single character, got %q", delim)
		}
		sep = r
	}
	if file == "" {
		return errors.New("-file is required")
	}
	if !gcfg.Located() {
		return fmt.Errorf("%s gazetteer has no index location configured", source)
	}

	dst, err := openSink(ctx, cfg, gcfg, flushEvery)
	if err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		dst.close()
		return err
	}
	defer f.Close()

	start := time.Now()
	n, err := load(ctx, f, sep, dst)
	if cerr := dst.close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	slog.Info("gazetteer loaded", "source", source, "records", n, "duration", time.Since(start))

	if cfg.Kafka.Enabled {
		return announce(ctx, cfg.Kafka, source, gcfg)
	}
	return nil
}

func openSink(ctx context.Context, cfg *config.Config, gcfg config.GazetteerConfig, flushEvery int) (sink, error) {
	if gcfg.Backend != config.BackendPostgres {
		return newSegmentSink(gcfg.IndexPath, flushEvery)
	}
	if !cfg.Postgres.Enabled {
		return nil, errors.New("postgres backend selected but postgres is disabled")
	}
	pg, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	table, err := pgsearch.New(pg.DB, gcfg.Table)
	if err != nil {
		pg.Close()
		return nil, err
	}
	if err := table.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return &pgSink{tableSink: tableSink{table: table}, pg: pg}, nil
}

type pgSink struct {
	tableSink
	pg *postgres.Client
}

func (s *pgSink) close() error { return s.pg.Close() }

func announce(ctx context.Context, kcfg config.KafkaConfig, source gazetteer.Source, gcfg config.GazetteerConfig) error {
	producer := kafka.NewProducer(kcfg, kcfg.Topics.IndexReloaded)
	defer producer.Close()
	notice := cache.ReloadNotice{Source: string(source), IndexPath: gcfg.IndexPath, ReloadedAt: time.Now().UTC()}
	if err := producer.Publish(ctx, kafka.Event{Key: string(source), Value: notice}); err != nil {
		return fmt.Errorf("announcing reload: %w", err)
	}
	slog.Info("reload announced", "topic", kcfg.Topics.IndexReloaded)
	return nil
}
