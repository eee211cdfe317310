// rucat-server is the stateless HTTP API for the engine control plane:
// it accepts REST requests and translates them into conditional edits on
// the engine store. Its handlers never touch the resource client; the
// server only pings the Docker daemon for its readiness probe.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HaoYang670/rucat/internal/api"
	"github.com/HaoYang670/rucat/internal/auth"
	"github.com/HaoYang670/rucat/internal/config"
	"github.com/HaoYang670/rucat/internal/health"
	"github.com/HaoYang670/rucat/internal/observability"
	"github.com/HaoYang670/rucat/internal/resourceclient/docker"
	"github.com/HaoYang670/rucat/internal/store"

	"github.com/spf13/cobra"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	var configPath string
	rootCmd := &cobra.Command{
		Use:     "rucat-server",
		Short:   "rucat-server is the REST API for the Rucat engine control plane",
		Version: "0.1.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config-path", "", "path to the server config file (required)")
	_ = rootCmd.MarkFlagRequired("config-path")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("rucat-server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	cfg, err := config.LoadServerConfig(configPath)
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

	var authProvider auth.Provider = auth.Disabled{}
	if cfg.AuthProvider != nil {
		authProvider = auth.NewStatic(cfg.AuthProvider.Token)
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no auth_provider configured")
	}

	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"store":          engineStore,
		"resourceclient": resourceClient,
	})

	router := api.NewRouter(api.RouterConfig{
		Store:         engineStore,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Auth:          authProvider,
	})

	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: mark unhealthy so load balancers stop routing new traffic.
	healthChecker.SetShuttingDown()

	if cfg.ShutdownDrainWait > 0 {
		slog.Info("waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: stop accepting new connections, finish in-flight requests.
	slog.Info("starting graceful shutdown")
	shutdown(25 * time.Second)

	slog.Info("shutdown complete")
	return nil
}
