package channel

import (
	"encoding/json"
	"fmt"
)

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Field string  `json:"field"`
	Value waValue `json:"value"`
}

// valueKind tells which variant a change value carries.
type valueKind int

const (
	valueEmpty valueKind = iota
	valueMessages
	valueStatuses
)

func (k valueKind) String() string {
	switch k {
	case valueMessages:
		return "messages"
	case valueStatuses:
		return "statuses"
	}
	return "empty"
}

// waValue is either a messages or a statuses notification, picked by which
// key is present. A payload carrying both is treated as messages.
type waValue struct {
	Kind             valueKind
	MessagingProduct string
	Messages         []waMessage
	Statuses         []waStatus
}

func (v *waValue) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("change value: %w", err)
	}
	*v = waValue{}
	if p, ok := raw["messaging_product"]; ok {
		_ = json.Unmarshal(p, &v.MessagingProduct)
	}

	if m, ok := raw["messages"]; ok {
		v.Kind = valueMessages
		if err := json.Unmarshal(m, &v.Messages); err != nil {
			return fmt.Errorf("messages: %w", err)
		}
		return nil
	}
	if s, ok := raw["statuses"]; ok {
		v.Kind = valueStatuses
		if err := json.Unmarshal(s, &v.Statuses); err != nil {
			return fmt.Errorf("statuses: %w", err)
		}
	}
	return nil
}

type waMessage struct {
	From      string  `json:"from"`
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
	Text      *waText `json:"text,omitempty"`
}

// Body returns the text body, or "" when the message has no text part.
func (m waMessage) Body() string {
	if m.Text == nil {
		return ""
	}
	return m.Text.Body
}

type waText struct {
	Body string `json:"body"`
}

type waStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // sent | delivered | read | failed
	RecipientID string `json:"recipient_id"`
	Timestamp   string `json:"timestamp"`
}

// firstValue returns entry[0].changes[0].value, or false when either list
// is missing or empty.
func (p *waPayload) firstValue() (waValue, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return waValue{}, false
	}
	return p.Entry[0].Changes[0].Value, true
}

// sendRequest is the Cloud API envelope for a plain text message.
type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}
