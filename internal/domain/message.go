package domain

import (
	"encoding/json"
	"time"
)

// Role tags a conversation turn or a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// UserTurn is a normalized inbound message handed to the dialogue pipeline.
type UserTurn struct {
	SenderID    string
	Text        string
	MessageID   string          // provider message id, empty if absent
	RawMetadata json.RawMessage // full provider payload the turn was taken from
	ChannelID   string
	ReceivedAt  time.Time
}

// Turn is one entry of a sender's conversation log.
type Turn struct {
	Role      Role
	Text      string
	CreatedAt time.Time
}

// ChatMessage is the wire unit exchanged with the language model.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DeliveryResult is the outcome of an outbound send. It is logged, never persisted.
type DeliveryResult struct {
	Delivered bool
	Reason    string
}

func Delivered() DeliveryResult { return DeliveryResult{Delivered: true} }

func Failed(reason string) DeliveryResult { return DeliveryResult{Reason: reason} }

func (r DeliveryResult) String() string {
	if r.Delivered {
		return "delivered"
	}
	return "failed(" + r.Reason + ")"
}
