package retrieval

import (
	"context"
	"sort"

	"sightline/internal/models"
)

// rrfK dampens the contribution of lower-ranked chunks in reciprocal
// rank fusion.
const rrfK = 60

// fusionStrategy retrieves with several alternative phrasings and merges
// the ranked lists with reciprocal rank fusion: each appearance of a chunk
// adds 1/(rank+rrfK) to its fused score.
type fusionStrategy struct {
	deps Deps
}

func (s *fusionStrategy) Name() string { return "rag_fusion" }

func (s *fusionStrategy) Retrieve(ctx context.Context, paperID, question string, k int) ([]models.ChunkResult, error) {
	variants, err := expandQuestion(ctx, s.deps, question)
	if err != nil {
		return nil, err
	}

	fused := make(map[string]float64)
	chunks := make(map[string]models.ChunkResult)
	for _, variant := range variants {
		results, err := retrieveFor(ctx, s.deps, "ask_query_embed", paperID, variant, k)
		if err != nil {
			return nil, err
		}
		for rank, r := range results {
			fused[r.ChunkID] += 1.0 / float64(rank+rrfK)
			if _, ok := chunks[r.ChunkID]; !ok {
				chunks[r.ChunkID] = r
			}
		}
	}

	merged := make([]models.ChunkResult, 0, len(fused))
	for id, score := range fused {
		r := chunks[id]
		r.Score = score
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}
