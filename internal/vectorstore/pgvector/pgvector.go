package pgvector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sightline/internal/models"
	"sightline/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pool is the slice of pgxpool.Pool the store uses. Tests substitute a mock.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store keeps per-paper collections in Postgres with the pgvector extension.
// Schema:
//
//	CREATE EXTENSION IF NOT EXISTS vector;
//	CREATE TABLE collections (
//	    collection_key TEXT PRIMARY KEY,
//	    ready          BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE TABLE chunks (
//	    chunk_id       TEXT PRIMARY KEY,
//	    collection_key TEXT NOT NULL REFERENCES collections(collection_key) ON DELETE CASCADE,
//	    chunk_index    INT NOT NULL,
//	    text           TEXT NOT NULL,
//	    start_pos      INT NOT NULL,
//	    end_pos        INT NOT NULL,
//	    embedding      VECTOR
//	);
type Store struct {
	pool pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

func newStoreWithPool(p pool) *Store {
	return &Store{pool: p}
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ready(ctx context.Context, key string) (bool, error) {
	var ready bool
	err := s.pool.QueryRow(ctx, `SELECT ready FROM collections WHERE collection_key=$1`, key).Scan(&ready)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check collection ready: %w", err)
	}
	return ready, nil
}

func (s *Store) Upsert(ctx context.Context, key string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
INSERT INTO collections (collection_key, ready)
VALUES ($1, FALSE)
ON CONFLICT (collection_key) DO NOTHING`, key)
	if err != nil {
		return fmt.Errorf("upsert collection %s: %w", key, err)
	}

	for i, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, collection_key, chunk_index, text, start_pos, end_pos, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
ON CONFLICT (chunk_id)
DO UPDATE SET
  text = EXCLUDED.text,
  embedding = EXCLUDED.embedding`,
			c.ChunkID, key, c.ChunkIndex, util.SanitizeText(c.Text), c.Start, c.End, ToLiteral(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (s *Store) MarkReady(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE collections SET ready=TRUE WHERE collection_key=$1`, key)
	if err != nil {
		return fmt.Errorf("mark collection ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", util.ErrCollectionNotFound, key)
	}
	return nil
}

func (s *Store) Drop(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM collections WHERE collection_key=$1`, key)
	if err != nil {
		return fmt.Errorf("drop collection %s: %w", key, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, key string, vector []float32, k int) ([]models.ChunkResult, error) {
	if k <= 0 {
		k = 4
	}
	ready, err := s.Ready(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, fmt.Errorf("%w: %s", util.ErrCollectionNotFound, key)
	}

	rows, err := s.pool.Query(ctx, `
SELECT c.chunk_id,
       c.collection_key,
       c.chunk_index,
       c.text,
       1 - (c.embedding <=> $2::vector) AS score
FROM chunks c
WHERE c.collection_key = $1
  AND c.embedding IS NOT NULL
ORDER BY c.embedding <=> $2::vector
LIMIT $3`, key, ToLiteral(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ChunkResult, 0, k)
	for rows.Next() {
		var r models.ChunkResult
		if err := rows.Scan(&r.ChunkID, &r.PaperID, &r.ChunkIndex, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
