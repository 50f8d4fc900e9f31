// Package reply generates free-form answers with the local language model.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wabridge/internal/domain"
	"wabridge/internal/history"
)

const (
	DefaultSystemPrompt = "You are a brief and precise assistant. Answer clearly in one to three sentences, " +
		"in the language the user writes in. If the question depends on earlier context, use the conversation history. " +
		"If you do not have the information, say so without inventing anything and suggest how to obtain it."

	// NoAnswerFallback is returned when the model answers with empty content.
	NoAnswerFallback = "I don't have a reliable answer right now."

	unreachableFallback = "I couldn't reach the local model. Detail: %v"

	defaultMaxPairs = 6
)

type Config struct {
	Model        string
	Temperature  float64
	TopP         float64
	MaxPairs     int
	SystemPrompt string
	Logger       *slog.Logger
}

// Generator builds the model prompt from a turn log and returns the reply
// text. It never fails: errors become fallback sentences.
type Generator struct {
	model  domain.ChatModel
	cfg    Config
	logger *slog.Logger
}

func New(model domain.ChatModel, cfg Config) *Generator {
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = defaultMaxPairs
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{model: model, cfg: cfg, logger: cfg.Logger}
}

// Messages returns the full message list sent to the model: the system
// prompt, then the bounded history, then userText unless the history
// already ends with it.
func (g *Generator) Messages(userText string, turns []domain.Turn) []domain.ChatMessage {
	userText = strings.TrimSpace(userText)

	hist := history.Extract(turns, g.cfg.MaxPairs)
	if len(hist) == 0 || hist[len(hist)-1].Content != userText {
		hist = append(hist, domain.ChatMessage{Role: domain.RoleUser, Content: userText})
	}

	msgs := make([]domain.ChatMessage, 0, len(hist)+1)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: g.cfg.SystemPrompt})
	return append(msgs, hist...)
}

// Generate asks the model for a reply to userText given the sender's turn log.
func (g *Generator) Generate(ctx context.Context, userText string, turns []domain.Turn) string {
	msgs := g.Messages(userText, turns)

	resp, err := g.model.Chat(ctx, domain.ChatRequest{
		Messages:    msgs,
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
	})
	if err != nil {
		g.logger.Error("model call failed", "model", g.model.Name(), "err", err)
		return fmt.Sprintf(unreachableFallback, err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		g.logger.Warn("model returned empty content", "model", g.model.Name())
		return NoAnswerFallback
	}
	return text
}
