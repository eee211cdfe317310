// rucat-state-monitor is the stateless reconcile loop for the engine
// control plane: it periodically scans the engine store for actionable
// records and drives each through the lifecycle state machine via the
// resource client. Unlike rucat-server, its config file path is fixed: it
// is a background service with no operator-facing CLI surface.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HaoYang670/rucat/internal/config"
	"github.com/HaoYang670/rucat/internal/monitor"
	"github.com/HaoYang670/rucat/internal/observability"
	"github.com/HaoYang670/rucat/internal/resourceclient/docker"
	"github.com/HaoYang670/rucat/internal/store"
)

// configFilePath is fixed the way the original state monitor's
// CONFIG_FILE_PATH constant is: this binary is deployed as a sidecar with
// its config mounted at a known location, not invoked interactively.
const configFilePath = "/rucat-state-monitor/config.json"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("rucat-state-monitor failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadMonitorConfig(configFilePath)
	if err != nil {
		return err
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	engineStore, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer engineStore.Close()

	resourceClient, err := docker.New(docker.Config{}, metrics)
	if err != nil {
		return err
	}
	defer resourceClient.Close()

	slog.Info("connected to Docker daemon")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	m := monitor.New(engineStore, resourceClient, metrics, cfg.FanOut)

	slog.Info("starting reconcile loop", "interval", interval, "fan_out", cfg.FanOut)
	m.Run(ctx, interval)

	// Let the current tick finish before shutting down auxiliary services.
	slog.Info("reconcile loop stopped, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		slog.Warn("metrics server shutdown error", "error", err)
	}

	return nil
}
