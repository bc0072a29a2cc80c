package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"sightline/internal/models"
	"sightline/internal/util"
)

// Store is an in-memory vector store using brute-force cosine similarity.
// Good enough for single-process deployments and tests; the pgvector backend
// covers everything else.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	ready   bool
	chunks  []models.Chunk
	vectors [][]float32
}

func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) Ready(ctx context.Context, key string) (bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[key]
	return ok && col.ready, nil
}

func (s *Store) Upsert(ctx context.Context, key string, chunks []models.Chunk, vectors [][]float32) error {
	_ = ctx
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[key]
	if !ok {
		col = &collection{}
		s.collections[key] = col
	}
	col.chunks = append(col.chunks, chunks...)
	col.vectors = append(col.vectors, vectors...)
	return nil
}

func (s *Store) MarkReady(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[key]
	if !ok {
		return fmt.Errorf("%w: %s", util.ErrCollectionNotFound, key)
	}
	col.ready = true
	return nil
}

func (s *Store) Drop(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, key)
	return nil
}

func (s *Store) Query(ctx context.Context, key string, vector []float32, k int) ([]models.ChunkResult, error) {
	_ = ctx
	if k <= 0 {
		k = 4
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[key]
	if !ok || !col.ready {
		return nil, fmt.Errorf("%w: %s", util.ErrCollectionNotFound, key)
	}

	results := make([]models.ChunkResult, 0, len(col.chunks))
	for i, c := range col.chunks {
		results = append(results, models.ChunkResult{
			ChunkID:    c.ChunkID,
			PaperID:    c.PaperID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Score:      cosine(col.vectors[i], vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
