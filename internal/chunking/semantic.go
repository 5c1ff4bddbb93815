package chunking

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/rag"
)

// Below this similarity between consecutive sentences a topic shift is assumed.
const topicShiftThreshold = 0.78

var sentenceSplit = regexp.MustCompile(`(?:[.!?])\s+|\n\s*\n|\n`)

// semanticChunker embeds each sentence and starts a new chunk where the
// similarity between consecutive sentences drops, i.e. the topic shifts.
// One embedding call per sentence makes this the most expensive strategy.
type semanticChunker struct {
	cfg      Config
	counter  TokenCounter
	embedder llm.Embedder
	logger   *zap.Logger
}

func (c *semanticChunker) Name() Kind { return KindSemantic }

func (c *semanticChunker) Chunk(ctx context.Context, docID, content string) ([]Chunk, error) {
	sentences := splitSentences(content)
	if len(sentences) <= 1 {
		return []Chunk{{DocID: docID, ChunkID: 0, Text: strings.TrimSpace(content)}}, nil
	}

	embeddings := make([][]float32, len(sentences))
	for i, sentence := range sentences {
		embedding, err := c.embedder.Embed(ctx, sentence)
		if err != nil {
			return nil, fmt.Errorf("failed to embed sentence %d: %w", i, err)
		}
		embeddings[i] = embedding
	}

	var chunks []Chunk
	chunkID := 0
	current := []string{sentences[0]}

	emit := func() {
		text := strings.TrimSpace(strings.Join(current, " "))
		if text != "" {
			chunks = append(chunks, Chunk{DocID: docID, ChunkID: chunkID, Text: text})
			chunkID++
		}
		current = nil
	}

	for i := 1; i < len(sentences); i++ {
		similarity := rag.CosineSimilarity(embeddings[i-1], embeddings[i])
		if similarity < topicShiftThreshold {
			c.logger.Debug("topic shift detected",
				zap.String("doc_id", docID), zap.Int("sentence", i), zap.Float64("similarity", similarity))
			emit()
			current = []string{sentences[i]}
			continue
		}

		current = append(current, sentences[i])
		if c.counter.Count(strings.Join(current, " ")) > c.cfg.ChunkSize {
			emit()
		}
	}
	emit()

	if len(chunks) == 0 {
		chunks = []Chunk{{DocID: docID, ChunkID: 0, Text: strings.TrimSpace(content)}}
	}
	return chunks, nil
}

func splitSentences(text string) []string {
	var sentences []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
