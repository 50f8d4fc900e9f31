package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wabridge/internal/channel"
	"wabridge/internal/config"
	"wabridge/internal/dedupe"
	"wabridge/internal/dialogue"
	"wabridge/internal/dispatch"
	"wabridge/internal/metrics"

	"github.com/spf13/cobra"
)

const pruneInterval = time.Hour

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long:  "Serves the health, webhook verification and notification routes. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.RequireWebhook(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	turns, err := openTurnLog(cfg)
	if err != nil {
		return err
	}
	defer turns.Close()
	turns.prune(ctx, cfg)
	go pruneLoop(ctx, turns, cfg)

	model := newModel(cfg)
	if err := model.Healthy(ctx); err != nil {
		logger.Warn("model endpoint unhealthy at startup", "api_base", cfg.Model.APIBase, "err", err)
	} else {
		logger.Info("model endpoint healthy", "model", cfg.Model.Name)
	}

	pool := dispatch.New(dispatch.Config{
		MaxConcurrent: cfg.Dispatch.MaxConcurrent,
		TaskTimeout:   cfg.Dispatch.Timeout(),
		Logger:        logger,
	})

	var seen *dedupe.Cache
	if cfg.Dedupe.TTLSeconds > 0 {
		seen = dedupe.New(cfg.Dedupe.TTL(), cfg.Dedupe.MaxSize)
		defer seen.Close()
	}

	pipeline := dialogue.New(dialogue.Config{
		Store:   turns,
		Gen:     newGenerator(cfg, model),
		Limiter: dialogue.NewRateLimiter(0, cfg.Model.RatePerMinute),
		Logger:  logger,
	})

	gateway := channel.NewWhatsApp(channel.WhatsAppChannelConfig{
		Config:   cfg.WhatsApp,
		Pipeline: pipeline,
		Pool:     pool,
		Sink:     newSender(cfg),
		Dedupe:   seen,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, metrics.Collector.Handler())
	}
	mux.Handle("/", gateway.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case serveErr = <-errCh:
		logger.Error("webhook server failed", "err", serveErr)
	}

	// Stop taking requests first, then let in-flight dispatch tasks finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatch.ShutdownGrace())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatch tasks cancelled at shutdown", "pending", pool.Pending(), "err", err)
	} else {
		logger.Info("shutdown complete")
	}

	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}

func pruneLoop(ctx context.Context, turns *turnLog, cfg *config.Config) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			turns.prune(ctx, cfg)
		}
	}
}
