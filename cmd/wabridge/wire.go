package main

import (
	"context"
	"fmt"

	"wabridge/internal/channel"
	"wabridge/internal/config"
	"wabridge/internal/domain"
	"wabridge/internal/memory"
	"wabridge/internal/provider"
	"wabridge/internal/reply"
)

// turnLog is the store handed to the dialogue pipeline plus its cleanup.
type turnLog struct {
	domain.TurnStore
	sqlite *memory.SQLiteStore // nil when memory is disabled
}

func (t *turnLog) Close() error {
	if t.sqlite == nil {
		return nil
	}
	return t.sqlite.Close()
}

// prune removes turns past the retention window. It is a no-op for the
// in-process log or when retention is disabled.
func (t *turnLog) prune(ctx context.Context, cfg *config.Config) {
	if t.sqlite == nil || cfg.Memory.RetentionDays <= 0 {
		return
	}
	n, err := t.sqlite.Prune(ctx, cfg.Memory.Retention())
	if err != nil {
		logger.Warn("turn log prune failed", "err", err)
		return
	}
	if n > 0 {
		logger.Info("turn log pruned", "removed", n, "retention_days", cfg.Memory.RetentionDays)
	}
}

func openTurnLog(cfg *config.Config) (*turnLog, error) {
	if !cfg.Memory.Enabled {
		logger.Info("turn log kept in memory only")
		return &turnLog{TurnStore: memory.NewInMemoryStore(cfg.Memory.MaxTurns)}, nil
	}
	store, err := memory.NewSQLiteStore(cfg.Memory.DBPath, cfg.Memory.MaxTurns, logger)
	if err != nil {
		return nil, fmt.Errorf("turn log: %w", err)
	}
	return &turnLog{TurnStore: store, sqlite: store}, nil
}

func newModel(cfg *config.Config) *provider.Ollama {
	return provider.NewOllama(provider.OllamaConfig{
		APIBase:      cfg.Model.APIBase,
		DefaultModel: cfg.Model.Name,
		Timeout:      cfg.Model.Timeout(),
		MaxRetries:   cfg.Model.MaxRetries,
		Logger:       logger,
	})
}

func newGenerator(cfg *config.Config, model domain.ChatModel) *reply.Generator {
	return reply.New(model, reply.Config{
		Model:        cfg.Model.Name,
		Temperature:  cfg.Model.Temperature,
		TopP:         cfg.Model.TopP,
		MaxPairs:     cfg.Model.MaxPairs,
		SystemPrompt: cfg.Model.SystemPrompt,
		Logger:       logger,
	})
}

func newSender(cfg *config.Config) *channel.Sender {
	return channel.NewSender(channel.SenderConfig{
		AuthToken:     cfg.WhatsApp.AuthToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		APIBase:       cfg.WhatsApp.APIBase,
		APIVersion:    cfg.WhatsApp.APIVersion,
		Timeout:       cfg.WhatsApp.SendTimeout(),
		Logger:        logger,
	})
}
