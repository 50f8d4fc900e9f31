package domain

import (
	"context"
	"net/url"
)

// MessageSink transmits a text reply to a recipient. Implementations never
// return errors: every failure is folded into the DeliveryResult.
type MessageSink interface {
	Send(ctx context.Context, recipientID, text string) DeliveryResult
}

// InboundAdapter is the provider-facing half of a channel.
type InboundAdapter interface {
	Name() string
	// Verify answers the provider's subscription handshake. It returns the
	// body to echo back and whether the handshake is accepted.
	Verify(params url.Values) (string, bool)
	// ParseMessage extracts a user turn from a webhook body. A nil turn with
	// a nil error means the payload is acknowledged without dispatch.
	ParseMessage(body []byte) (*UserTurn, error)
}

// Replier is a MessageSink bound to a single recipient.
type Replier interface {
	Recipient() string
	Reply(ctx context.Context, text string) DeliveryResult
}

type boundSink struct {
	sink      MessageSink
	recipient string
}

// Bind returns a Replier that sends every reply to recipient through sink.
func Bind(sink MessageSink, recipient string) Replier {
	return &boundSink{sink: sink, recipient: recipient}
}

func (b *boundSink) Recipient() string { return b.recipient }

func (b *boundSink) Reply(ctx context.Context, text string) DeliveryResult {
	return b.sink.Send(ctx, b.recipient, text)
}
