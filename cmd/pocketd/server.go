package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"pocketd/internal/health"
	"pocketd/internal/logging"
	"pocketd/internal/metrics"
)

// newMux serves /metrics and the health endpoints.
func newMux(m *metrics.ConsoleMetrics, checker *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	metricsHandler := m.Registry().HTTPHandler()
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.UpdateUptime()
		metricsHandler.ServeHTTP(w, r)
	}))
	checker.Routes(mux)
	return mux
}

func startServer(addr string, m *metrics.ConsoleMetrics, checker *health.Checker, logger *logging.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           newMux(m, checker),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", ln.Addr().String())
	return srv, nil
}

func shutdownServer(srv *http.Server, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown failed", "error", err)
	}
}
