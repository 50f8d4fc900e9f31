// Package history turns a sender's turn log into the role-tagged message
// list sent to the language model.
package history

import (
	"strings"

	"wabridge/internal/domain"
)

// Extract keeps user and assistant turns in order, trims their text, drops
// blank ones and returns at most the last 2*maxPairs messages.
//
// The bound is an element count rather than a pairing: an irregular log can
// leave two consecutive messages with the same role at the head of the result.
func Extract(turns []domain.Turn, maxPairs int) []domain.ChatMessage {
	limit := 2 * maxPairs
	if limit <= 0 {
		return []domain.ChatMessage{}
	}

	msgs := make([]domain.ChatMessage, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleUser, domain.RoleAssistant:
		default:
			continue
		}
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		msgs = append(msgs, domain.ChatMessage{Role: t.Role, Content: text})
	}

	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}
