// Package main provides the stdio entry point for the nku-screen core.
// It wires the screening pipeline behind an MCP tool surface; camera
// capture, rendering, and persistence of full reports live in the UI layer.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nku-health/nku-screen/internal/config"
	"github.com/nku-health/nku-screen/internal/fusion"
	"github.com/nku-health/nku-screen/internal/mcp"
	"github.com/nku-health/nku-screen/internal/model"
	"github.com/nku-health/nku-screen/internal/reason"
	"github.com/nku-health/nku-screen/internal/sanitize"
	"github.com/nku-health/nku-screen/internal/service"
	"github.com/nku-health/nku-screen/internal/store"
	"github.com/nku-health/nku-screen/internal/thermal"
)

const version = "v0.1.0"

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithField("version", version).Info("Starting nku-screen core")

	var monitor thermal.Monitor
	if cfg.Thermal.Mock {
		monitor = &thermal.StaticMonitor{Fixed: thermal.Status{
			Safe:         cfg.Thermal.MockTempC <= cfg.Thermal.ThrottleTempC,
			TemperatureC: cfg.Thermal.MockTempC,
			Message:      "Thermal monitor in mock mode",
		}}
		logger.Warn("Thermal monitor running in mock mode")
	} else {
		monitor = thermal.NewSysfsMonitor(
			cfg.Thermal.ThrottleTempC,
			cfg.Thermal.Cooldown,
			cfg.Thermal.SensorPaths,
			cfg.Thermal.MockTempC,
			logger,
		)
	}

	sanitizer := sanitize.New(cfg.Sanitize.MaxInputLen, cfg.Sanitize.MaxOutputLen)
	orchestrator := model.NewOrchestrator(cfg.Model, monitor, sanitizer, nil, logger)
	reasoner := reason.NewReasoner(cfg.Rules, sanitizer, logger)

	history, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		logger.Fatalf("Failed to open screening history store: %v", err)
	}
	defer history.Close()

	screener, err := service.NewScreener(
		fusion.NewAggregator(logger),
		reasoner,
		orchestrator,
		history,
		cfg.Screening.CacheSize,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create screener: %v", err)
	}

	server := mcp.NewServer(screener, monitor, version, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("MCP server failed: %v", err)
	}

	logger.Info("nku-screen core stopped")
}

// newLogger builds the process logger from configuration. Logs go to
// stderr; stdout belongs to the MCP transport.
func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
