package rag

import (
	"context"
	"sync"
)

// InMemoryVectorStore keeps vectors per namespace in process. Used by tests
// and small corpora.
type InMemoryVectorStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Vector
}

func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{namespaces: make(map[string]map[string]Vector)}
}

func (s *InMemoryVectorStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Vector)
		s.namespaces[namespace] = ns
	}
	for _, v := range vectors {
		ns[v.ID] = v
	}
	return nil
}

func (s *InMemoryVectorStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[namespace]
	matches := make([]Match, 0, len(ns))
	for id, v := range ns {
		matches = append(matches, Match{
			ID:       id,
			Score:    CosineSimilarity(vector, v.Values),
			Metadata: v.Metadata,
		})
	}
	sortByScore(matches)
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}
