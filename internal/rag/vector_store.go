// Package rag provides the vector-store abstraction and the interchangeable
// retrieval strategies built on top of it.
package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Metadata is the payload stored with each vector.
type Metadata struct {
	DocID   string `json:"doc_id"`
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
}

// Vector is an embedding plus its payload, ready to upsert.
type Vector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is one query result, score in [0,1] with higher meaning more similar.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// VectorStore is the narrow interface to the vector database. Namespaces are
// logically isolated partitions; evaluation runs get their own and never
// alias the production ones.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
}

// RetrievalError wraps a vector-store backend failure. It is surfaced as a
// degraded low-confidence response, never silently upgraded.
type RetrievalError struct {
	Namespace string
	Err       error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed in namespace %q: %v", e.Namespace, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// CosineSimilarity computes similarity between two vectors of equal length.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortByScore(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}
