// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package main runs the reference beacon collector.
//
// The collector accepts beacons from player monitors, decodes them back to
// full field names, and keeps a running summary per view that can be read
// at /api/v1/views/{viewID}. Prometheus metrics are served at /metrics.
//
// # Configuration
//
// Configuration is loaded via koanf (highest priority wins):
//   - Environment variables prefixed VIEWBEACON_
//   - Config file (config.yaml, or VIEWBEACON_CONFIG)
//   - Built-in defaults
//
// Example:
//
//	export VIEWBEACON_COLLECTOR_LISTEN_ADDR=:8080
//	export VIEWBEACON_LOGGING_LEVEL=debug
//	./collector
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervisor tree. The HTTP server drains
// in-flight requests for up to collector.shutdown_timeout.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/viewbeacon/internal/collector"
	"github.com/tomtom215/viewbeacon/internal/config"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/supervisor"
	"github.com/tomtom215/viewbeacon/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("listen_addr", cfg.Collector.ListenAddr).
		Int("rate_limit_requests", cfg.Collector.RateLimitRequests).
		Dur("rate_limit_window", cfg.Collector.RateLimitWindow).
		Msg("Starting beacon collector")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := collector.New(cfg.Collector, logging.WithComponent("collector"), nil)
	defer func() {
		if err := c.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pub/sub")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Collector.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddIngestService(collector.NewConsumer(c, logging.WithComponent("consumer")))
	tree.AddIngestService(c.Live())

	server := &http.Server{
		Addr:              cfg.Collector.ListenAddr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Collector.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Int("views", c.Views().Len()).Msg("Collector stopped")
}
