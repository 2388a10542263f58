package core

import (
	"context"

	"github.com/safemindhq/safemind/internal/store"
)

// StreamToken is one unit of a streaming generation. A token with a non-nil
// Err terminates the stream.
type StreamToken struct {
	Content string
	Err     error
}

// Generator produces a streamed response. The returned channel is closed
// when generation finishes; callers may stop consuming early by cancelling
// the context.
type Generator interface {
	Stream(ctx context.Context, systemPrompt string, history []store.Message, message string) (<-chan StreamToken, error)
}

// Labeler assigns a raw intent label to a message given recent context.
type Labeler interface {
	Label(ctx context.Context, message string, recent []store.Message) (string, error)
}

// Embedder generates a vector embedding for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TitleGenerator produces a short chat title from its opening content.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, basis string) (string, error)
}
