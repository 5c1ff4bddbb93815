package store

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a Repository for tests. It mirrors SQLiteStore behavior
// without durability.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

func (s *InMemoryStore) GetOrCreateSession(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		session = &Session{
			ID:        id,
			CreatedAt: time.Now().UTC(),
			Entities:  make(map[EntityType]Entity),
		}
		s.sessions[id] = session
	}
	return copySession(session), nil
}

func (s *InMemoryStore) AppendTurn(ctx context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.ensureSession(sessionID)
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	session.Turns = append(session.Turns, turn)
	return nil
}

func (s *InMemoryStore) SetEntity(ctx context.Context, sessionID string, entity Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.ensureSession(sessionID)
	session.Entities[entity.Type] = entity
	return nil
}

func (s *InMemoryStore) ensureSession(id string) *Session {
	session, ok := s.sessions[id]
	if !ok {
		session = &Session{
			ID:        id,
			CreatedAt: time.Now().UTC(),
			Entities:  make(map[EntityType]Entity),
		}
		s.sessions[id] = session
	}
	return session
}

func copySession(in *Session) *Session {
	out := &Session{
		ID:        in.ID,
		CreatedAt: in.CreatedAt,
		Turns:     make([]Turn, len(in.Turns)),
		Entities:  make(map[EntityType]Entity, len(in.Entities)),
	}
	copy(out.Turns, in.Turns)
	for k, v := range in.Entities {
		out.Entities[k] = v
	}
	return out
}
