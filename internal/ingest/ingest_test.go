package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/chunking"
	"telcomax.com/billing-assistant/internal/rag"
)

type constantEmbedder struct{}

func (constantEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r % 7)
	}
	v[0] += 1
	return v, nil
}

func newTestIngestor(t *testing.T) (*Ingestor, *rag.InMemoryVectorStore) {
	t.Helper()
	chunker, err := chunking.NewChunker(chunking.KindFixedSize, chunking.Config{ChunkSize: 40}, chunking.ApproxTokenCounter{}, nil, zap.NewNop())
	require.NoError(t, err)
	vectors := rag.NewInMemoryVectorStore()
	return New(chunker, constantEmbedder{}, vectors, zap.NewNop()), vectors
}

func TestIngestDirLoadsMarkdownAndText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies.md"), []byte("Late fees are $7.50.\n\nRoaming costs $5.00 per day."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("Plans can change anytime."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.json"), []byte(`{"not": "a doc"}`), 0o644))

	ingestor, vectors := newTestIngestor(t)
	n, err := ingestor.IngestDir(context.Background(), dir, "customer-docs")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	matches, err := vectors.Query(context.Background(), "customer-docs", []float32{1, 0, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, matches, n)

	docIDs := make(map[string]bool)
	for _, m := range matches {
		docIDs[m.Metadata.DocID] = true
	}
	assert.True(t, docIDs["policies"])
	assert.True(t, docIDs["notes"])
	assert.False(t, docIDs["ignored"])
}

func TestIngestDocumentAssignsStableIDs(t *testing.T) {
	ingestor, vectors := newTestIngestor(t)
	ctx := context.Background()

	_, err := ingestor.IngestDocument(ctx, "ns", "invoice", "Total due $137.14.")
	require.NoError(t, err)

	matches, err := vectors.Query(ctx, "ns", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "invoice__0", matches[0].ID)
	assert.Equal(t, "Total due $137.14.", matches[0].Metadata.Text)
}

func TestReIngestOverwritesPreviousChunks(t *testing.T) {
	ingestor, vectors := newTestIngestor(t)
	ctx := context.Background()

	_, err := ingestor.IngestDocument(ctx, "ns", "invoice", "old text")
	require.NoError(t, err)
	_, err = ingestor.IngestDocument(ctx, "ns", "invoice", "new text")
	require.NoError(t, err)

	matches, err := vectors.Query(ctx, "ns", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new text", matches[0].Metadata.Text)
}

func TestIngestDirMissingDirectory(t *testing.T) {
	ingestor, _ := newTestIngestor(t)
	_, err := ingestor.IngestDir(context.Background(), filepath.Join(t.TempDir(), "missing"), "ns")
	assert.Error(t, err)
}

func TestIngestEmptyDocumentProducesNothing(t *testing.T) {
	ingestor, _ := newTestIngestor(t)
	n, err := ingestor.IngestDocument(context.Background(), "ns", "empty", "   \n\n  ")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
