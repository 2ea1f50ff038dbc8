package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"taskmux/internal/api"
	"taskmux/internal/config"
	"taskmux/internal/core"
	"taskmux/internal/logging"
	taskmuxmcp "taskmux/internal/mcp"
	"taskmux/internal/notify"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	var notifier core.Notifier
	if cfg.BarkEnabled && cfg.BarkURL != "" {
		bark, err := notify.NewBarkNotifier(cfg.BarkURL)
		if err != nil {
			logger.Error("create bark notifier", "err", err)
			os.Exit(1)
		}
		notifier = bark
	}

	registry := core.NewRegistry(logger, cfg.MaxLogBytes, notifier)

	switch cfg.Mode {
	case "mcp", "":
		runMCPMode(cfg, registry, logger)
	case "http":
		runHTTPMode(cfg, registry, logger)
	case "both":
		runBothMode(cfg, registry, logger)
	default:
		logger.Error("invalid mode", "mode", cfg.Mode, "valid", []string{"mcp", "http", "both"})
		os.Exit(1)
	}
}

// runMCPMode serves tools over stdio only.
func runMCPMode(cfg *config.Config, registry *core.Registry, logger *slog.Logger) {
	mcpServer := taskmuxmcp.NewMCPServer(registry, logger, cfg.StopTimeout)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		logger.Info("received signal, shutting down", "signal", sig.String())
		registry.TerminateAll()
		os.Exit(0)
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		registry.TerminateAll()
		os.Exit(1)
	}
	// stdio closed by the client: still give managed tasks their SIGTERM.
	registry.TerminateAll()
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, registry *core.Registry, logger *slog.Logger) {
	server := api.NewServer(cfg.Addr, cfg.AuthToken, registry, logger, cfg.StopTimeout)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	registry.TerminateAll()
}

// runBothMode serves tools over stdio and the HTTP API at once.
func runBothMode(cfg *config.Config, registry *core.Registry, logger *slog.Logger) {
	mcpServer := taskmuxmcp.NewMCPServer(registry, logger, cfg.StopTimeout)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg.Addr, cfg.AuthToken, registry, logger, cfg.StopTimeout)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	registry.TerminateAll()
	logger.Info("shutdown complete")
}
