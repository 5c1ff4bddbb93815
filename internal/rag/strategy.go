package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/llm"
)

// ScoredChunk is one retrieved context chunk with its similarity score.
type ScoredChunk struct {
	DocID   string
	ChunkID int
	Text    string
	Score   float64
}

// Strategy turns a query into an ordered list of context chunks, descending
// by score. Variants are substitutable: the responder holds the interface and
// never branches on which one is active.
type Strategy interface {
	Name() StrategyKind
	Retrieve(ctx context.Context, query, namespace string, topK int) ([]ScoredChunk, error)
}

// StrategyKind names a retrieval strategy variant.
type StrategyKind string

const (
	// StrategyDirect embeds the query verbatim and searches.
	StrategyDirect StrategyKind = "direct"
	// StrategyHypothesis generates a hypothetical answer, embeds that, and
	// searches with it. One extra generation call buys a smaller vocabulary
	// gap between colloquial queries and document terminology.
	StrategyHypothesis StrategyKind = "hypothesis"
	// StrategyMultiPhrase generates 3 paraphrases, retrieves for each, and
	// merges by chunk id keeping the maximum score.
	StrategyMultiPhrase StrategyKind = "multiphrase"
)

// Kinds lists all strategy variants, in evaluation order.
func Kinds() []StrategyKind {
	return []StrategyKind{StrategyDirect, StrategyHypothesis, StrategyMultiPhrase}
}

// NewStrategy constructs the named variant. The choice is made once here, not
// per call site.
func NewStrategy(kind StrategyKind, embedder llm.Embedder, generator llm.Generator, store VectorStore, logger *zap.Logger) (Strategy, error) {
	switch kind {
	case StrategyDirect:
		return &directStrategy{embedder: embedder, store: store}, nil
	case StrategyHypothesis:
		return &hypothesisStrategy{embedder: embedder, generator: generator, store: store, logger: logger}, nil
	case StrategyMultiPhrase:
		return &multiPhraseStrategy{embedder: embedder, generator: generator, store: store, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", kind)
	}
}

func searchEmbedding(ctx context.Context, embedder llm.Embedder, store VectorStore, text, namespace string, topK int) ([]ScoredChunk, error) {
	embedding, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, &RetrievalError{Namespace: namespace, Err: err}
	}
	matches, err := store.Query(ctx, namespace, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	chunks := make([]ScoredChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, ScoredChunk{
			DocID:   m.Metadata.DocID,
			ChunkID: m.Metadata.ChunkID,
			Text:    m.Metadata.Text,
			Score:   m.Score,
		})
	}
	return chunks, nil
}

// ====== direct ======

type directStrategy struct {
	embedder llm.Embedder
	store    VectorStore
}

func (s *directStrategy) Name() StrategyKind { return StrategyDirect }

func (s *directStrategy) Retrieve(ctx context.Context, query, namespace string, topK int) ([]ScoredChunk, error) {
	return searchEmbedding(ctx, s.embedder, s.store, query, namespace, topK)
}

// ====== hypothesis-expanded ======

const hypothesisPrompt = "You are a telecom billing expert. Write a concise hypothetical answer " +
	"to the following question. Maximum 3 sentences.\n\nQuestion: %s"

type hypothesisStrategy struct {
	embedder  llm.Embedder
	generator llm.Generator
	store     VectorStore
	logger    *zap.Logger
}

func (s *hypothesisStrategy) Name() StrategyKind { return StrategyHypothesis }

func (s *hypothesisStrategy) Retrieve(ctx context.Context, query, namespace string, topK int) ([]ScoredChunk, error) {
	hypothesis, err := s.generator.Complete(ctx, fmt.Sprintf(hypothesisPrompt, query), 0.3, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to generate hypothesis: %w", err)
	}
	s.logger.Debug("hypothesis generated", zap.String("hypothesis", hypothesis))
	return searchEmbedding(ctx, s.embedder, s.store, hypothesis, namespace, topK)
}

// ====== multi-phrasing ======

const paraphrasePrompt = "Generate 3 different phrasings of the following user query for a telecom " +
	"billing system. Return only the 3 queries, one per line, nothing else.\n\nQuery: %s"

type multiPhraseStrategy struct {
	embedder  llm.Embedder
	generator llm.Generator
	store     VectorStore
	logger    *zap.Logger
}

func (s *multiPhraseStrategy) Name() StrategyKind { return StrategyMultiPhrase }

func (s *multiPhraseStrategy) Retrieve(ctx context.Context, query, namespace string, topK int) ([]ScoredChunk, error) {
	raw, err := s.generator.Complete(ctx, fmt.Sprintf(paraphrasePrompt, query), 0.5, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to generate paraphrases: %w", err)
	}

	queries := []string{query}
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" && len(queries) < 4 {
			queries = append(queries, line)
		}
	}

	// Merge by chunk id, keeping the maximum score per id.
	best := make(map[string]ScoredChunk)
	for _, q := range queries {
		chunks, err := searchEmbedding(ctx, s.embedder, s.store, q, namespace, topK)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			key := fmt.Sprintf("%s__%d", c.DocID, c.ChunkID)
			if existing, ok := best[key]; !ok || c.Score > existing.Score {
				best[key] = c
			}
		}
	}

	merged := make([]ScoredChunk, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].DocID != merged[j].DocID {
			return merged[i].DocID < merged[j].DocID
		}
		return merged[i].ChunkID < merged[j].ChunkID
	})
	if topK < len(merged) {
		merged = merged[:topK]
	}
	return merged, nil
}
