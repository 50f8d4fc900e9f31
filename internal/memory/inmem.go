package memory

import (
	"context"
	"sync"
	"time"

	"wabridge/internal/domain"
)

// InMemoryStore is a process-local domain.TurnStore used when the sqlite
// turn log is disabled. Each sender keeps at most maxTurns entries.
type InMemoryStore struct {
	mu       sync.RWMutex
	turns    map[string][]domain.Turn
	maxTurns int
}

func NewInMemoryStore(maxTurns int) *InMemoryStore {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &InMemoryStore{turns: make(map[string][]domain.Turn), maxTurns: maxTurns}
}

func (s *InMemoryStore) AppendTurn(_ context.Context, senderID string, turn domain.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := append(s.turns[senderID], turn)
	if len(log) > s.maxTurns {
		log = append([]domain.Turn(nil), log[len(log)-s.maxTurns:]...)
	}
	s.turns[senderID] = log
	return nil
}

// Turns returns a copy of the sender's log.
func (s *InMemoryStore) Turns(_ context.Context, senderID string) ([]domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Turn(nil), s.turns[senderID]...), nil
}
