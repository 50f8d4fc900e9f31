package domain

import "context"

// Pipeline is the dialogue engine entry point: it receives a parsed user turn
// together with the replier bound to the turn's sender.
type Pipeline interface {
	DeliverTurn(ctx context.Context, turn UserTurn, out Replier) error
}

// TurnReader reads a sender's prior turns in chronological order.
type TurnReader interface {
	Turns(ctx context.Context, senderID string) ([]Turn, error)
}

// TurnStore is a TurnReader that can also record new turns.
type TurnStore interface {
	TurnReader
	AppendTurn(ctx context.Context, senderID string, turn Turn) error
}
