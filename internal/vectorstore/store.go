package vectorstore

import (
	"context"

	"sightline/internal/models"
)

// Store is the vector storage capability the pipeline depends on. Collections
// are keyed by paper identifier. A collection only becomes visible to Ready
// and Query after MarkReady; a build that dies partway leaves a collection
// that readers treat as absent, and Drop removes the partial state.
type Store interface {
	Ready(ctx context.Context, key string) (bool, error)
	Upsert(ctx context.Context, key string, chunks []models.Chunk, vectors [][]float32) error
	MarkReady(ctx context.Context, key string) error
	Drop(ctx context.Context, key string) error
	Query(ctx context.Context, key string, vector []float32, k int) ([]models.ChunkResult, error)
}
