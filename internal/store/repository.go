package store

import "context"

// Repository is the durable session store consumed by the memory service.
// Implementations must preserve turn order per session. The repository does
// not apply the entity merge rule; callers decide what to write.
type Repository interface {
	// GetOrCreateSession returns the session for id, creating an empty one on
	// first reference.
	GetOrCreateSession(ctx context.Context, id string) (*Session, error)

	// AppendTurn appends a turn to the session's conversation log.
	AppendTurn(ctx context.Context, sessionID string, turn Turn) error

	// SetEntity stores an entity for the session, replacing any existing
	// entity of the same type.
	SetEntity(ctx context.Context, sessionID string, entity Entity) error
}
