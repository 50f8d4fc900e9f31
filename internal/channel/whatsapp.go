package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"wabridge/internal/config"
	"wabridge/internal/dedupe"
	"wabridge/internal/domain"
	"wabridge/internal/metrics"
)

const (
	whatsappChannelID = "whatsapp"
	maxWebhookBody    = 1 << 20
)

var _ domain.InboundAdapter = (*WhatsApp)(nil)

// Dispatcher runs pipeline work off the request goroutine. Submit must not block.
type Dispatcher interface {
	Submit(name string, fn func(ctx context.Context) error) (string, error)
}

// WhatsApp is the Cloud API webhook gateway. It implements domain.InboundAdapter
// and serves the health, verification and notification routes.
type WhatsApp struct {
	cfg      config.WhatsAppConfig
	pipeline domain.Pipeline
	pool     Dispatcher
	sink     domain.MessageSink
	seen     *dedupe.Cache
	logger   *slog.Logger
	now      func() time.Time
}

type WhatsAppChannelConfig struct {
	Config   config.WhatsAppConfig
	Pipeline domain.Pipeline
	Pool     Dispatcher
	Sink     domain.MessageSink
	Dedupe   *dedupe.Cache // optional
	Logger   *slog.Logger
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{
		cfg:      cfg.Config,
		pipeline: cfg.Pipeline,
		pool:     cfg.Pool,
		sink:     cfg.Sink,
		seen:     cfg.Dedupe,
		logger:   logger,
		now:      time.Now,
	}
}

func (w *WhatsApp) Name() string { return whatsappChannelID }

// Handler returns the gateway routes. The caller mounts it on the server mux.
func (w *WhatsApp) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", w.handleHealth)
	mux.HandleFunc("GET /webhook", w.handleVerification)
	mux.HandleFunc("POST /webhook", w.handleIncoming)
	return mux
}

func (w *WhatsApp) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
}

// --- Webhook handlers ---

// Verify checks a subscription handshake. On success it returns the
// challenge exactly as received.
func (w *WhatsApp) Verify(params url.Values) (string, bool) {
	mode := params.Get("hub.mode")
	token := params.Get("hub.verify_token")
	if mode != "subscribe" || !tokensEqual(token, w.cfg.VerifyToken) {
		return "", false
	}
	return params.Get("hub.challenge"), true
}

func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	challenge, ok := w.Verify(r.URL.Query())
	if !ok {
		w.logger.Warn("whatsapp webhook verification failed", "mode", r.URL.Query().Get("hub.mode"))
		metrics.WebhookErrors.Inc()
		http.Error(rw, "invalid token", http.StatusForbidden)
		return
	}
	w.logger.Info("whatsapp webhook verified")
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	io.WriteString(rw, challenge)
}

func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		w.logger.Warn("whatsapp read body failed", "err", err)
		metrics.WebhookErrors.Inc()
		http.Error(rw, "error", http.StatusInternalServerError)
		return
	}

	if w.cfg.AppSecret != "" && !w.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		w.logger.Warn("whatsapp invalid signature")
		metrics.WebhookErrors.Inc()
		http.Error(rw, "invalid signature", http.StatusForbidden)
		return
	}

	turn, err := w.ParseMessage(body)
	if err != nil {
		w.logger.Error("whatsapp webhook processing failed", "err", err)
		metrics.WebhookErrors.Inc()
		http.Error(rw, "error", http.StatusInternalServerError)
		return
	}
	if turn != nil {
		w.dispatch(turn)
	}

	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	io.WriteString(rw, "ok")
}

// ParseMessage extracts the first message of the first change. Payloads
// without entries, status notifications and empty message lists yield a nil
// turn so the caller acknowledges them without dispatch.
func (w *WhatsApp) ParseMessage(body []byte) (*domain.UserTurn, error) {
	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	value, ok := payload.firstValue()
	if !ok {
		metrics.WebhookEvents("ignored").Inc()
		return nil, nil
	}

	switch value.Kind {
	case valueStatuses:
		metrics.WebhookEvents("status").Inc()
		for _, st := range value.Statuses {
			w.logger.Info("whatsapp status", "status", st.Status, "id", st.ID, "recipient", st.RecipientID)
		}
		return nil, nil
	case valueMessages:
		if len(value.Messages) == 0 {
			metrics.WebhookEvents("ignored").Inc()
			return nil, nil
		}
	default:
		metrics.WebhookEvents("ignored").Inc()
		return nil, nil
	}

	msg := value.Messages[0]
	metrics.WebhookEvents("message").Inc()
	w.logger.Info("whatsapp message received", "from", msg.From, "id", msg.ID, "type", msg.Type)

	return &domain.UserTurn{
		SenderID:    msg.From,
		Text:        msg.Body(),
		MessageID:   msg.ID,
		RawMetadata: json.RawMessage(bytes.Clone(body)),
		ChannelID:   whatsappChannelID,
		ReceivedAt:  w.now(),
	}, nil
}

// dispatch hands the turn to the pool. Failures past this point are logged
// by the pool and never reach the provider.
func (w *WhatsApp) dispatch(turn *domain.UserTurn) {
	if w.seen != nil && turn.MessageID != "" && w.seen.Seen(turn.MessageID) {
		metrics.WebhookEvents("duplicate").Inc()
		w.logger.Info("whatsapp duplicate delivery dropped", "id", turn.MessageID)
		return
	}

	t := *turn
	out := domain.Bind(w.sink, t.SenderID)
	id, err := w.pool.Submit("whatsapp:"+t.SenderID, func(ctx context.Context) error {
		return w.pipeline.DeliverTurn(ctx, t, out)
	})
	if err != nil {
		w.logger.Error("whatsapp dispatch rejected", "from", t.SenderID, "err", err)
		return
	}
	w.logger.Debug("whatsapp turn dispatched", "task", id, "from", t.SenderID)
}

// verifySignature checks the X-Hub-Signature-256 header.
func (w *WhatsApp) verifySignature(body []byte, signature string) bool {
	if len(signature) < 7 || signature[:7] != "sha256=" {
		return false
	}
	expected := signature[7:]

	mac := hmac.New(sha256.New, []byte(w.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// tokensEqual compares in constant time. Hashing first keeps the comparison
// independent of the token lengths. An unset expected token never matches.
func tokensEqual(got, want string) bool {
	if want == "" {
		return false
	}
	a := sha256.Sum256([]byte(got))
	b := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
