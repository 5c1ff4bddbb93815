// Package chunking splits source documents into retrievable units. Strategies
// vary in boundary selection: fixed token windows, structural separators, or
// topic-shift detection.
package chunking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/llm"
)

// Chunk is one retrievable unit of a document.
type Chunk struct {
	DocID   string
	ChunkID int
	Text    string
}

// Chunker splits a document into chunks. Implementations assign sequential
// chunk ids starting at 0.
type Chunker interface {
	Name() Kind
	Chunk(ctx context.Context, docID, content string) ([]Chunk, error)
}

// Kind names a chunking strategy.
type Kind string

const (
	KindFixedSize Kind = "fixed_size"
	KindRecursive Kind = "recursive"
	KindSemantic  Kind = "semantic"
)

// Kinds lists all chunking strategies, in evaluation order.
func Kinds() []Kind {
	return []Kind{KindFixedSize, KindRecursive, KindSemantic}
}

// Config sizes chunks in tokens. Too small chunks lose surrounding context,
// too large chunks dilute topical focus; overlap keeps a fact spanning two
// chunks retrievable from either.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewChunker constructs the named strategy. The semantic strategy needs an
// embedder; the others don't.
func NewChunker(kind Kind, cfg Config, counter TokenCounter, embedder llm.Embedder, logger *zap.Logger) (Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	switch kind {
	case KindFixedSize:
		return &fixedSizeChunker{cfg: cfg, counter: counter}, nil
	case KindRecursive:
		return &recursiveChunker{cfg: cfg, counter: counter}, nil
	case KindSemantic:
		if embedder == nil {
			return nil, fmt.Errorf("semantic chunking requires an embedder")
		}
		return &semanticChunker{cfg: cfg, counter: counter, embedder: embedder, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", kind)
	}
}
