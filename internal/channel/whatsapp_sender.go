package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wabridge/internal/domain"
	"wabridge/internal/metrics"
	"wabridge/internal/provider"
)

const (
	whatsappDefaultAPIBase    = "https://graph.facebook.com"
	whatsappDefaultAPIVersion = "v19.0"
	whatsappSendTimeout       = 20 * time.Second
)

var _ domain.MessageSink = (*Sender)(nil)

// Sender posts text replies to the WhatsApp Cloud API. It implements
// domain.MessageSink and does not retry.
type Sender struct {
	endpoint  string
	authToken string
	client    *http.Client
	logger    *slog.Logger
}

type SenderConfig struct {
	AuthToken     string
	PhoneNumberID string
	APIBase       string
	APIVersion    string
	Timeout       time.Duration
	Logger        *slog.Logger
}

func NewSender(cfg SenderConfig) *Sender {
	if cfg.APIBase == "" {
		cfg.APIBase = whatsappDefaultAPIBase
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = whatsappDefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = whatsappSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sender{
		endpoint:  fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(cfg.APIBase, "/"), cfg.APIVersion, cfg.PhoneNumberID),
		authToken: cfg.AuthToken,
		client:    provider.SharedHTTPClient(cfg.Timeout),
		logger:    cfg.Logger,
	}
}

// Send delivers text to recipientID. Every failure is logged and reported
// in the result; Send never panics or returns an error.
func (s *Sender) Send(ctx context.Context, recipientID, text string) domain.DeliveryResult {
	s.logger.Info("sending whatsapp message", "to", recipientID, "text_len", len(text))

	res := s.send(ctx, recipientID, text)
	if res.Delivered {
		metrics.Sends("delivered").Inc()
		s.logger.Info("whatsapp message sent", "to", recipientID)
	} else {
		metrics.Sends("failed").Inc()
		s.logger.Error("whatsapp send failed", "to", recipientID, "reason", res.Reason)
	}
	return res
}

func (s *Sender) send(ctx context.Context, to, text string) domain.DeliveryResult {
	body, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: text},
	})
	if err != nil {
		return domain.Failed(fmt.Sprintf("marshal: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Failed(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Failed(fmt.Sprintf("send: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Failed(fmt.Sprintf("whatsapp API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	io.Copy(io.Discard, resp.Body)
	return domain.Delivered()
}
