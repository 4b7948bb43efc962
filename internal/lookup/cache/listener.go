package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/kafka"
)

// ReloadNotice announces that a gazetteer index was rebuilt out of band.
type ReloadNotice struct {
	Source     string    `json:"source"`
	IndexPath  string    `json:"index_path,omitempty"`
	ReloadedAt time.Time `json:"reloaded_at"`
}

// Listener drops cached results whenever a reload notice arrives.
type Listener struct {
	inv    Invalidator
	logger *slog.Logger
}

func NewListener(inv Invalidator) *Listener {
	return &Listener{
		inv:    inv,
		logger: slog.Default().With("component", "cache-invalidation"),
	}
}

// Handle is a kafka.MessageHandler.
func (l *Listener) Handle(ctx context.Context, _ []byte, value []byte) error {
	notice, err := kafka.DecodeJSON[ReloadNotice](value)
	if err != nil {
		return err
	}
	if err := l.inv.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidating after %s reload: %w", notice.Source, err)
	}
	l.logger.Info("cache invalidated", "source", notice.Source, "reloaded_at", notice.ReloadedAt)
	return nil
}
