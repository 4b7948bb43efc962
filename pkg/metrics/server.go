package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Serve exposes /metrics on port until ctx is cancelled, then drains the
// listener for at most grace. It returns nil after a clean shutdown.
func (m *Metrics) Serve(ctx context.Context, port int, grace time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	slog.Info("metrics server listening", "addr", ln.Addr().String())

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-done; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
