// Package ingest loads documents from disk into the vector store: each file
// is chunked, embedded, and upserted under a namespace.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/chunking"
	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/rag"
)

// Ingestor turns documents into searchable vectors.
type Ingestor struct {
	chunker  chunking.Chunker
	embedder llm.Embedder
	store    rag.VectorStore
	logger   *zap.Logger
}

func New(chunker chunking.Chunker, embedder llm.Embedder, store rag.VectorStore, logger *zap.Logger) *Ingestor {
	return &Ingestor{chunker: chunker, embedder: embedder, store: store, logger: logger}
}

// IngestDir loads every .md and .txt file under dir into namespace. It
// returns the number of chunks written.
func (in *Ingestor) IngestDir(ctx context.Context, dir, namespace string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read docs dir %s: %w", dir, err)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !isDocFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		n, err := in.IngestFile(ctx, path, namespace)
		if err != nil {
			return total, err
		}
		total += n
	}
	in.logger.Info("ingestion complete",
		zap.String("dir", dir),
		zap.String("namespace", namespace),
		zap.Int("chunks", total))
	return total, nil
}

// IngestFile loads one document. The doc id is the filename without its
// extension, so re-ingesting a changed file overwrites its old chunks.
func (in *Ingestor) IngestFile(ctx context.Context, path, namespace string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	docID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return in.IngestDocument(ctx, namespace, docID, string(content))
}

// IngestDocument chunks, embeds, and upserts a single document.
func (in *Ingestor) IngestDocument(ctx context.Context, namespace, docID, content string) (int, error) {
	chunks, err := in.chunker.Chunk(ctx, docID, content)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk %s: %w", docID, err)
	}

	vectors := make([]rag.Vector, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := in.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return 0, fmt.Errorf("failed to embed %s chunk %d: %w", docID, chunk.ChunkID, err)
		}
		vectors = append(vectors, rag.Vector{
			ID:     fmt.Sprintf("%s__%d", chunk.DocID, chunk.ChunkID),
			Values: embedding,
			Metadata: rag.Metadata{
				DocID:   chunk.DocID,
				ChunkID: chunk.ChunkID,
				Text:    chunk.Text,
			},
		})
	}
	if len(vectors) == 0 {
		in.logger.Warn("document produced no chunks", zap.String("doc_id", docID))
		return 0, nil
	}
	if err := in.store.Upsert(ctx, namespace, vectors); err != nil {
		return 0, fmt.Errorf("failed to upsert %s: %w", docID, err)
	}
	in.logger.Debug("document ingested",
		zap.String("doc_id", docID),
		zap.String("namespace", namespace),
		zap.Int("chunks", len(vectors)))
	return len(vectors), nil
}

func isDocFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".txt":
		return true
	}
	return false
}
