package llm

import (
	"context"
	"time"
)

// RetryingGenerator decorates a Generator with bounded retry and backoff.
// Exhaustion surfaces the last GenerationError; it never fabricates output.
type RetryingGenerator struct {
	inner     Generator
	attempts  int
	baseDelay time.Duration
}

func NewRetryingGenerator(inner Generator, attempts int, baseDelay time.Duration) *RetryingGenerator {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingGenerator{inner: inner, attempts: attempts, baseDelay: baseDelay}
}

func (g *RetryingGenerator) Complete(ctx context.Context, prompt string, temperature float32, maxOutputTokens int) (string, error) {
	var out string
	err := WithRetry(ctx, g.attempts, g.baseDelay, func() error {
		var err error
		out, err = g.inner.Complete(ctx, prompt, temperature, maxOutputTokens)
		return err
	})
	return out, err
}

// WithRetry runs fn up to attempts times, doubling the delay between tries.
// It returns the last error once attempts are exhausted or the context ends.
func WithRetry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
