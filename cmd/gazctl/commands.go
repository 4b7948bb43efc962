package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/app"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/gazetteer"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/rpc"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
)

type op int

const (
	opFind op = iota
	opGlobal
	opNational
)

// backend is what the commands talk to: an RPC client or an in-process
// service. *rpc.Client satisfies it directly.
type backend interface {
	LookupGlobal(ctx context.Context, req rpc.LookupRequest) (lookup.Response, error)
	LookupNational(ctx context.Context, req rpc.LookupRequest) (lookup.Response, error)
	Find(ctx context.Context, req rpc.LookupRequest) (lookup.Response, error)
	InvalidateCache(ctx context.Context) error
	Close() error
}

var _ backend = (*rpc.Client)(nil)

// localBackend runs lookups against gazetteers opened in this process.
type localBackend struct {
	app *app.App
}

func (l *localBackend) run(req rpc.LookupRequest, fn func() []gazetteer.Entry) lookup.Response {
	start := time.Now()
	entries := fn()
	return lookup.NewResponse(req.Term, req.CountryCode, entries, time.Since(start))
}

func (l *localBackend) LookupGlobal(ctx context.Context, req rpc.LookupRequest) (lookup.Response, error) {
	return l.run(req, func() []gazetteer.Entry {
		return l.app.Service.LookupGlobal(ctx, req.Term, req.Rows, req.CountryCode)
	}), nil
}

func (l *localBackend) LookupNational(ctx context.Context, req rpc.LookupRequest) (lookup.Response, error) {
	return l.run(req, func() []gazetteer.Entry {
		return l.app.Service.LookupNational(ctx, req.Term, req.Rows)
	}), nil
}

func (l *localBackend) Find(ctx context.Context, req rpc.LookupRequest) (lookup.Response, error) {
	return l.run(req, func() []gazetteer.Entry {
		return l.app.Service.Find(ctx, req.Term, req.Rows, req.CountryCode)
	}), nil
}

func (l *localBackend) InvalidateCache(ctx context.Context) error {
	return l.app.Service.Invalidate(ctx)
}

func (l *localBackend) Close() error { return l.app.Close() }

// connect is swapped in tests.
var connect = func(c *cli.Context) (backend, error) {
	if c.Bool("local") {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return nil, err
		}
		logger.SetupWriter(c.App.ErrWriter, c.String("log-level"), "text")
		a, err := app.Build(c.Context, cfg)
		if err != nil {
			return nil, err
		}
		return &localBackend{app: a}, nil
	}
	client, err := rpc.Dial(c.Context, c.String("addr"))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.String("addr"), err)
	}
	return client, nil
}

func lookupCommand(o op) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Int("rows") < 0 {
			return fmt.Errorf("--rows must not be negative")
		}
		req := rpc.LookupRequest{Term: c.String("q"), CountryCode: c.String("cc"), Rows: c.Int("rows")}

		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()
		b, err := connect(c)
		if err != nil {
			return err
		}
		defer b.Close()

		var resp lookup.Response
		switch o {
		case opGlobal:
			resp, err = b.LookupGlobal(ctx, req)
		case opNational:
			resp, err = b.LookupNational(ctx, req)
		default:
			resp, err = b.Find(ctx, req)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
}

func invalidateCommand(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	b, err := connect(c)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.InvalidateCache(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "cache invalidated")
	return nil
}
