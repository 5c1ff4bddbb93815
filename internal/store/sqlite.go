package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore is the durable Repository implementation. Session state
// survives process restart, keyed by session id.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so other components (the vector store)
// can share the same database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS turns (
        session_id TEXT NOT NULL,
        turn_idx INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'system')),
        text TEXT NOT NULL,
        responder TEXT NOT NULL DEFAULT '',
        timestamp DATETIME NOT NULL,
        PRIMARY KEY (session_id, turn_idx),
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );

    CREATE TABLE IF NOT EXISTS entities (
        session_id TEXT NOT NULL,
        entity_type TEXT NOT NULL,
        value TEXT NOT NULL,
        confidence REAL NOT NULL,
        PRIMARY KEY (session_id, entity_type),
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, id string) (*Session, error) {
	session := &Session{ID: id, Entities: make(map[EntityType]Entity)}

	err := s.db.QueryRowContext(ctx, "SELECT created_at FROM sessions WHERE id = ?", id).Scan(&session.CreatedAt)
	if err == sql.ErrNoRows {
		session.CreatedAt = time.Now().UTC()
		if _, err := s.db.ExecContext(ctx, "INSERT INTO sessions (id, created_at) VALUES (?, ?)", id, session.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		return session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if session.Turns, err = s.getTurns(ctx, id); err != nil {
		return nil, err
	}
	if session.Entities, err = s.getEntities(ctx, id); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) getTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, text, responder, timestamp FROM turns WHERE session_id = ? ORDER BY turn_idx ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.Responder, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) getEntities(ctx context.Context, sessionID string) (map[EntityType]Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT entity_type, value, confidence FROM entities WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	entities := make(map[EntityType]Entity)
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Type, &e.Value, &e.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		entities[e.Type] = e
	}
	return entities, rows.Err()
}

// AppendTurn appends a turn at the next index for the session. The index is
// assigned inside a transaction so concurrent appends cannot collide.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin turn append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)", sessionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	var nextIdx int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(turn_idx) + 1, 0) FROM turns WHERE session_id = ?", sessionID).Scan(&nextIdx); err != nil {
		return fmt.Errorf("failed to compute turn index: %w", err)
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO turns (session_id, turn_idx, role, text, responder, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		sessionID, nextIdx, turn.Role, turn.Text, turn.Responder, turn.Timestamp); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) SetEntity(ctx context.Context, sessionID string, entity Entity) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)", sessionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO entities (session_id, entity_type, value, confidence) VALUES (?, ?, ?, ?)
        ON CONFLICT (session_id, entity_type) DO UPDATE SET value = excluded.value, confidence = excluded.confidence`,
		sessionID, entity.Type, entity.Value, entity.Confidence)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}
