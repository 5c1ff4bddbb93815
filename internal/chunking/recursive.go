package chunking

import (
	"context"
	"strings"
)

// recursiveChunker splits on paragraph breaks first, then newlines, then
// sentences, then words, descending only when a piece is still too large.
// Adjacent small pieces are merged back up to the chunk size with overlap.
type recursiveChunker struct {
	cfg     Config
	counter TokenCounter
}

var recursiveSeparators = []string{"\n\n", "\n", ". ", " "}

func (c *recursiveChunker) Name() Kind { return KindRecursive }

func (c *recursiveChunker) Chunk(ctx context.Context, docID, content string) ([]Chunk, error) {
	pieces := c.split(content, recursiveSeparators)
	merged := c.merge(pieces)

	chunks := make([]Chunk, 0, len(merged))
	for i, text := range merged {
		chunks = append(chunks, Chunk{DocID: docID, ChunkID: i, Text: text})
	}
	return chunks, nil
}

func (c *recursiveChunker) split(text string, separators []string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.counter.Count(text) <= c.cfg.ChunkSize || len(separators) == 0 {
		return []string{text}
	}

	sep := separators[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return c.split(text, separators[1:])
	}

	var out []string
	for _, part := range parts {
		// A sentence split eats the terminator; put it back.
		if sep == ". " && !strings.HasSuffix(part, ".") && part != "" {
			part += "."
		}
		if c.counter.Count(part) > c.cfg.ChunkSize {
			out = append(out, c.split(part, separators[1:])...)
		} else if strings.TrimSpace(part) != "" {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

func (c *recursiveChunker) merge(pieces []string) []string {
	var merged []string
	var current string

	for _, piece := range pieces {
		combined := piece
		if current != "" {
			combined = current + "\n" + piece
		}
		if c.counter.Count(combined) <= c.cfg.ChunkSize || current == "" {
			current = combined
			continue
		}

		merged = append(merged, current)
		if c.cfg.ChunkOverlap > 0 {
			words := strings.Fields(current)
			overlapWords := c.cfg.ChunkOverlap / 4
			if len(words) > overlapWords {
				current = strings.Join(words[len(words)-overlapWords:], " ") + "\n" + piece
			} else {
				current = piece
			}
		} else {
			current = piece
		}
	}
	if strings.TrimSpace(current) != "" {
		merged = append(merged, current)
	}
	return merged
}
