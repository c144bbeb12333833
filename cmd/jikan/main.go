package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/jikanhq/jikan/internal/config"
	"github.com/jikanhq/jikan/internal/mcp"
	"github.com/jikanhq/jikan/internal/sla"
	"github.com/jikanhq/jikan/internal/telemetry"
	"github.com/jikanhq/jikan/internal/tracker"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("JIKAN_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	// Stdout carries the MCP protocol; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("jikan starting", "version", version, "tracker", cfg.TrackerBaseURL)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, false)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	client, err := tracker.NewClient(tracker.Config{
		BaseURL:  cfg.TrackerBaseURL,
		Email:    cfg.TrackerEmail,
		APIToken: cfg.TrackerToken,
		Timeout:  cfg.TrackerTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracker: %w", err)
	}

	classifier := sla.NewClassifier(client, logger)
	engine, err := sla.NewEngine(client, classifier, cfg.CalendarConfig(), cfg.DefaultMetrics, logger)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	srv := mcp.New(engine, logger, version)

	// ServeStdio blocks until stdin closes or the context is cancelled.
	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpserver.ServeStdio(srv.MCPServer())
	}()

	select {
	case <-ctx.Done():
		logger.Info("jikan shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp serve: %w", err)
		}
		return nil
	}
}
