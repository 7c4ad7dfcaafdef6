// streamer connects to the Alpaca real-time streams and prints routed
// messages to the console.
// Usage: go run ./cmd/streamer --config configs/streamer.local.yaml
//
// Credentials come from the config file or the standard environment
// variables:
//
//	APCA_API_KEY_ID     - API key ID
//	APCA_API_SECRET_KEY - API secret key
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jstrand/alpaca-stream/internal/auth"
	"github.com/jstrand/alpaca-stream/internal/config"
	"github.com/jstrand/alpaca-stream/internal/dispatch"
	"github.com/jstrand/alpaca-stream/internal/entity"
	"github.com/jstrand/alpaca-stream/internal/metrics"
	"github.com/jstrand/alpaca-stream/internal/stream"
	"github.com/jstrand/alpaca-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Resolve credentials
	creds, err := auth.Resolve(cfg.API.KeyID, cfg.API.SecretKey)
	if err != nil {
		logger.Error("failed to resolve credentials", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation on shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics and health endpoint
	metricsSrv := metrics.Serve(cfg.Metrics.Port, cfg.Metrics.Path)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics server started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)

	// Build the router and log every routed message
	router := stream.New(
		stream.Endpoints{
			BaseURL:     cfg.API.BaseURL,
			DataURL:     cfg.API.DataURL,
			FeedServers: cfg.API.FeedServers,
		},
		creds,
		stream.WithLogger(logger),
	)

	logEntity := func(channel string, ent entity.Entity) error {
		if acct, ok := ent.(*entity.Account); ok {
			logger.Info("account update",
				"channel", channel,
				"status", acct.Status(),
				"cash", acct.Cash(),
			)
			return nil
		}
		logger.Info("message", "channel", channel, "data", ent.Raw())
		return nil
	}
	if _, err := router.On(".*", dispatch.Handler(logEntity)); err != nil {
		logger.Error("failed to register handler", "error", err)
		os.Exit(1)
	}

	logger.Info("subscribing", "channels", cfg.Channels)
	if err := router.Run(ctx, cfg.Channels); err != nil {
		logger.Error("streamer failed", "error", err)
		os.Exit(1)
	}

	logger.Info("streamer stopped")
}

// logLevel maps the config value to a slog level. Validation already
// constrained it to the known names.
func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
