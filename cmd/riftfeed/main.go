// Command riftfeed runs the telemetry fusion daemon: it polls the live
// client, follows the push session, fuses both feeds into one ordered
// event stream, and exposes the stream and its controls over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riftfeed/riftfeed/internal/adapters/http/api"
	"github.com/riftfeed/riftfeed/internal/app"
	"github.com/riftfeed/riftfeed/internal/config"
	"github.com/riftfeed/riftfeed/pkg/logger"
	"github.com/riftfeed/riftfeed/pkg/metrics"
)

const (
	readHeaderTimeout   = 5 * time.Second
	idleTimeout         = 60 * time.Second
	shutdownTimeout     = 30 * time.Second
	metricsSyncInterval = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.Named("main")

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn("invalid log level, using info",
			logger.String("log_level", cfg.LogLevel))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(append(app.FromConfig(cfg), app.WithLogger(logger.Named("app")))...)
	if err := svc.Start(ctx); err != nil {
		log.Error("failed to start service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Stop()

	go syncServiceMetrics(ctx, svc)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(mux)

	// No global read/write timeouts: /stream connections stay open for
	// the life of a subscriber.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("http server failed", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Error(err))
	}

	log.Info("daemon stopped")
}

// syncServiceMetrics refreshes the gauges that are cheaper to sample
// than to maintain on every state change.
func syncServiceMetrics(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metricsSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.Stats()
			metrics.UpdateQueueSize(stats.QueueLen)
		}
	}
}
