package llm

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("llm unavailable")

// Completer is a single-turn chat completion call. Implementations may fail
// with ErrUnavailable when not configured; callers are expected to degrade.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}
