// Package memory provides per-session conversation memory: a durable
// append-only turn log plus extracted entities merged by confidence.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/store"
)

// SessionMemory serializes all operations for a given session id; operations
// on different session ids proceed independently.
type SessionMemory struct {
	repo   store.Repository
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionMemory(repo store.Repository, logger *zap.Logger) *SessionMemory {
	return &SessionMemory{
		repo:   repo,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (m *SessionMemory) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}

// GetOrCreate returns the session, creating it on first reference.
func (m *SessionMemory) GetOrCreate(ctx context.Context, sessionID string) (*store.Session, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.repo.GetOrCreateSession(ctx, sessionID)
}

// AppendTurn appends a turn to the session's conversation log.
func (m *SessionMemory) AppendTurn(ctx context.Context, sessionID string, turn store.Turn) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return m.repo.AppendTurn(ctx, sessionID, turn)
}

// MergeEntities applies the overwrite rule: a newly extracted entity of the
// same type overwrites the stored one unless its confidence is strictly
// lower, in which case the existing value is kept.
func (m *SessionMemory) MergeEntities(ctx context.Context, sessionID string, extracted []store.Entity) error {
	if len(extracted) == 0 {
		return nil
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.repo.GetOrCreateSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session for entity merge: %w", err)
	}

	for _, entity := range extracted {
		if existing, ok := session.Entities[entity.Type]; ok && entity.Confidence < existing.Confidence {
			m.logger.Debug("keeping existing entity",
				zap.String("session_id", sessionID),
				zap.String("type", string(entity.Type)),
				zap.Float64("incoming_confidence", entity.Confidence),
				zap.Float64("existing_confidence", existing.Confidence))
			continue
		}
		if err := m.repo.SetEntity(ctx, sessionID, entity); err != nil {
			return fmt.Errorf("failed to store entity %s: %w", entity.Type, err)
		}
	}
	return nil
}
