// Package dialogue is the in-process dialogue pipeline: it records each
// user turn, asks the reply generator for an answer, and sends it back
// through the replier bound to the sender.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wabridge/internal/domain"
)

// ErrNotDelivered is returned when the reply could not be sent.
var ErrNotDelivered = errors.New("reply not delivered")

// Generator produces a reply for userText given the sender's prior turns.
type Generator interface {
	Generate(ctx context.Context, userText string, turns []domain.Turn) string
}

var _ domain.Pipeline = (*Pipeline)(nil)

type Pipeline struct {
	store   domain.TurnStore
	gen     Generator
	limiter *RateLimiter
	logger  *slog.Logger
	now     func() time.Time
}

type Config struct {
	Store   domain.TurnStore
	Gen     Generator
	Limiter *RateLimiter // optional
	Logger  *slog.Logger
}

func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:   cfg.Store,
		gen:     cfg.Gen,
		limiter: cfg.Limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// DeliverTurn implements domain.Pipeline. Turns without text are dropped.
// The assistant turn is recorded only once the reply has been delivered.
func (p *Pipeline) DeliverTurn(ctx context.Context, turn domain.UserTurn, out domain.Replier) error {
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		p.logger.Info("ignoring turn without text", "from", turn.SenderID, "id", turn.MessageID)
		return nil
	}

	at := turn.ReceivedAt
	if at.IsZero() {
		at = p.now()
	}
	if err := p.store.AppendTurn(ctx, turn.SenderID, domain.Turn{Role: domain.RoleUser, Text: text, CreatedAt: at}); err != nil {
		return fmt.Errorf("record user turn: %w", err)
	}

	turns, err := p.store.Turns(ctx, turn.SenderID)
	if err != nil {
		return fmt.Errorf("read turns: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	start := p.now()
	reply := p.gen.Generate(ctx, text, turns)
	p.logger.Debug("reply generated", "from", turn.SenderID, "reply_len", len(reply), "took", p.now().Sub(start))

	res := out.Reply(ctx, reply)
	if !res.Delivered {
		return fmt.Errorf("%w to %s: %s", ErrNotDelivered, out.Recipient(), res.Reason)
	}

	if err := p.store.AppendTurn(ctx, turn.SenderID, domain.Turn{Role: domain.RoleAssistant, Text: reply, CreatedAt: p.now()}); err != nil {
		return fmt.Errorf("record assistant turn: %w", err)
	}
	return nil
}
