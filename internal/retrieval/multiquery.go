package retrieval

import (
	"context"
	"sort"

	"sightline/internal/models"
)

// multiQueryStrategy rewrites the question into several alternative
// phrasings, retrieves for each, and returns the unique union of chunks.
// A chunk seen under several phrasings keeps its best score.
type multiQueryStrategy struct {
	deps Deps
}

func (s *multiQueryStrategy) Name() string { return "multi_query" }

func (s *multiQueryStrategy) Retrieve(ctx context.Context, paperID, question string, k int) ([]models.ChunkResult, error) {
	variants, err := expandQuestion(ctx, s.deps, question)
	if err != nil {
		return nil, err
	}

	best := make(map[string]models.ChunkResult)
	for _, variant := range variants {
		results, err := retrieveFor(ctx, s.deps, "ask_query_embed", paperID, variant, k)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if prev, ok := best[r.ChunkID]; !ok || r.Score > prev.Score {
				best[r.ChunkID] = r
			}
		}
	}

	merged := make([]models.ChunkResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}
