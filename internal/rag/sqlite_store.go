package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// SQLiteVectorStore persists vectors in the shared SQLite database, one row
// per (namespace, id). Similarity is computed in process, the same approach
// the rest of the store takes: the corpus is small enough that a brute-force
// scan per query beats operating an external index.
type SQLiteVectorStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteVectorStore(db *sql.DB, logger *zap.Logger) (*SQLiteVectorStore, error) {
	schema := `
    CREATE TABLE IF NOT EXISTS vectors (
        namespace TEXT NOT NULL,
        id TEXT NOT NULL,
        embedding_json TEXT NOT NULL,
        doc_id TEXT NOT NULL,
        chunk_id INTEGER NOT NULL,
        text TEXT NOT NULL,
        PRIMARY KEY (namespace, id)
    );
    `
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize vectors schema: %w", err)
	}
	return &SQLiteVectorStore{db: db, logger: logger}, nil
}

func (s *SQLiteVectorStore) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin vector upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO vectors (namespace, id, embedding_json, doc_id, chunk_id, text) VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (namespace, id) DO UPDATE SET
            embedding_json = excluded.embedding_json,
            doc_id = excluded.doc_id,
            chunk_id = excluded.chunk_id,
            text = excluded.text`)
	if err != nil {
		return fmt.Errorf("failed to prepare vector upsert: %w", err)
	}
	defer stmt.Close()

	for _, v := range vectors {
		embeddingJSON, err := json.Marshal(v.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for %s: %w", v.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, namespace, v.ID, string(embeddingJSON), v.Metadata.DocID, v.Metadata.ChunkID, v.Metadata.Text); err != nil {
			return fmt.Errorf("failed to upsert vector %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vector upsert: %w", err)
	}
	s.logger.Debug("vectors upserted", zap.String("namespace", namespace), zap.Int("count", len(vectors)))
	return nil
}

func (s *SQLiteVectorStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, embedding_json, doc_id, chunk_id, text FROM vectors WHERE namespace = ?", namespace)
	if err != nil {
		return nil, &RetrievalError{Namespace: namespace, Err: err}
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m             Match
			embeddingJSON string
		)
		if err := rows.Scan(&m.ID, &embeddingJSON, &m.Metadata.DocID, &m.Metadata.ChunkID, &m.Metadata.Text); err != nil {
			return nil, &RetrievalError{Namespace: namespace, Err: err}
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &embedding); err != nil {
			s.logger.Warn("skipping vector with bad embedding",
				zap.String("namespace", namespace), zap.String("id", m.ID), zap.Error(err))
			continue
		}
		m.Score = CosineSimilarity(vector, embedding)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &RetrievalError{Namespace: namespace, Err: err}
	}

	sortByScore(matches)
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}
