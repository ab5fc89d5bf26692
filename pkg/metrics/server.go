package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/library-backend/pkg/logger"
)

// Serve exposes /metrics on addr until ctx is cancelled. Background workers
// call it when LIBRARY_METRICS_ADDR is set; an empty addr is a no-op.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logg *logger.Logger) {
	if addr == "" || reg == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logg.Info(logg.WithField(ctx, "addr", addr), "metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
}
