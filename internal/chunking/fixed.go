package chunking

import (
	"context"
	"regexp"
	"strings"
)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// fixedSizeChunker packs whole paragraphs into fixed token windows, carrying
// a tail of the previous chunk forward as overlap.
type fixedSizeChunker struct {
	cfg     Config
	counter TokenCounter
}

func (c *fixedSizeChunker) Name() Kind { return KindFixedSize }

func (c *fixedSizeChunker) Chunk(ctx context.Context, docID, content string) ([]Chunk, error) {
	var chunks []Chunk
	var current string
	chunkID := 0

	flush := func(next string) {
		chunks = append(chunks, Chunk{DocID: docID, ChunkID: chunkID, Text: strings.TrimSpace(current)})
		chunkID++
		if c.cfg.ChunkOverlap > 0 {
			words := strings.Fields(current)
			// Overlap is in tokens; words run a bit under one token each.
			overlapWords := c.cfg.ChunkOverlap / 4
			if len(words) > overlapWords {
				words = words[len(words)-overlapWords:]
			}
			current = strings.Join(words, " ") + "\n\n" + next
		} else {
			current = next
		}
	}

	for _, para := range paragraphSplit.Split(content, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		combined := para
		if current != "" {
			combined = current + "\n\n" + para
		}
		if c.counter.Count(combined) <= c.cfg.ChunkSize || current == "" {
			current = combined
		} else {
			flush(para)
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, Chunk{DocID: docID, ChunkID: chunkID, Text: strings.TrimSpace(current)})
	}
	return chunks, nil
}
