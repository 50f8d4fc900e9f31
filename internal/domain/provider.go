package domain

import "context"

// ChatModel is a text-completion endpoint that takes a role-tagged message list.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

type ChatRequest struct {
	Messages    []ChatMessage
	Model       string
	Temperature float64
	TopP        float64
}

type ChatResponse struct {
	Role       Role
	Content    string
	DoneReason string
	LatencyMs  int64
}
