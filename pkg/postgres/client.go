// Package postgres opens the lib/pq connection pool shared by the Postgres
// gazetteer searcher, the gazetteer loader and the analytics snapshot store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/resilience"
)

type Client struct {
	DB *sql.DB
}

// New opens a pool and pings it, retrying while the database comes up. Bad
// credentials or a missing database fail at once.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	retry := resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, Retryable: transient}
	err = resilience.Retry(ctx, "postgres-connect", retry, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	return &Client{DB: db}, nil
}

// transient reports whether a connect error may clear up by waiting.
// Authorization failures (class 28) and unknown databases (3D000) will not.
func transient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return true
	}
	switch {
	case pqErr.Code.Class() == "28", pqErr.Code == "3D000":
		return false
	}
	return true
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}
