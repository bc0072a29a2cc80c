package retrieval

import (
	"context"

	"sightline/internal/models"
)

// simpleStrategy embeds the question as asked and returns the nearest
// chunks by cosine similarity.
type simpleStrategy struct {
	deps Deps
}

func (s *simpleStrategy) Name() string { return "simple" }

func (s *simpleStrategy) Retrieve(ctx context.Context, paperID, question string, k int) ([]models.ChunkResult, error) {
	return retrieveFor(ctx, s.deps, "ask_query_embed", paperID, question, k)
}
