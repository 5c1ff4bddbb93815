// Package llm holds the narrow interfaces through which the rest of the
// system consumes generation and embedding backends, plus the Gemini
// implementation.
package llm

import (
	"context"
	"fmt"
)

// Generator produces text completions.
type Generator interface {
	Complete(ctx context.Context, prompt string, temperature float32, maxOutputTokens int) (string, error)
}

// Embedder converts text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenerationError wraps a model-call failure or timeout. Callers retry with
// backoff up to a small bounded count; exhaustion must never yield a
// fabricated answer.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation call failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
