package retrieval

import (
	"context"
	"testing"

	"sightline/internal/models"
	"sightline/internal/providers"
	"sightline/internal/vectorstore/memory"

	"github.com/stretchr/testify/require"
)

// scriptedEmbedder maps exact input strings to fixed vectors so tests can
// steer which chunks a query lands on.
type scriptedEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	embedded []string
}

func (s *scriptedEmbedder) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	out := make([][]float32, len(req.Inputs))
	for i, in := range req.Inputs {
		s.embedded = append(s.embedded, in)
		if v, ok := s.vectors[in]; ok {
			out[i] = v
		} else {
			out[i] = s.fallback
		}
	}
	return out, providers.ProviderInfo{Name: "scripted"}, nil
}

type scriptedLLM struct {
	text string
}

func (s *scriptedLLM) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	return providers.GenerateResponse{Text: s.text}, providers.ProviderInfo{Name: "scripted"}, nil
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	chunks := []models.Chunk{
		{ChunkID: "a", PaperID: "p1", ChunkIndex: 0, Text: "alpha chunk"},
		{ChunkID: "b", PaperID: "p1", ChunkIndex: 1, Text: "beta chunk"},
		{ChunkID: "c", PaperID: "p1", ChunkIndex: 2, Text: "gamma chunk"},
	}
	vectors := [][]float32{{1, 0}, {0, 1}, {0.7, 0.7}}
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, "p1", chunks, vectors))
	require.NoError(t, store.MarkReady(ctx, "p1"))
	return store
}

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New("galaxy", Deps{})
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestNewDefaultsToSimple(t *testing.T) {
	s, err := New("", Deps{})
	require.NoError(t, err)
	require.Equal(t, "simple", s.Name())
}

func TestSimpleRetrievesNearest(t *testing.T) {
	store := seedStore(t)
	emb := &scriptedEmbedder{
		vectors:  map[string][]float32{"what is alpha?": {1, 0}},
		fallback: []float32{0, 0},
	}
	s, err := New("simple", Deps{Store: store, Embed: emb})
	require.NoError(t, err)

	results, err := s.Retrieve(context.Background(), "p1", "what is alpha?", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].ChunkID)
	require.Equal(t, "c", results[1].ChunkID)
}

func TestMultiQueryUnionKeepsBestScore(t *testing.T) {
	store := seedStore(t)
	emb := &scriptedEmbedder{
		vectors: map[string][]float32{
			"variant one": {1, 0},
			"variant two": {0, 1},
		},
		fallback: []float32{0, 0},
	}
	llm := &scriptedLLM{text: "variant one\nvariant two"}
	s, err := New("multi_query", Deps{Store: store, Embed: emb, LLM: llm})
	require.NoError(t, err)

	results, err := s.Retrieve(context.Background(), "p1", "anything", 1)
	require.NoError(t, err)
	// k=1 per variant hits chunk a and chunk b; the union is capped at k
	// after deduplication, keeping the single best-scored chunk.
	require.Len(t, results, 1)
	require.Contains(t, []string{"a", "b"}, results[0].ChunkID)
}

func TestFusionRanksRecurringChunksFirst(t *testing.T) {
	store := seedStore(t)
	// Both variants rank chunk c highly; each also surfaces one chunk the
	// other does not. RRF should put c first.
	emb := &scriptedEmbedder{
		vectors: map[string][]float32{
			"variant one": {0.8, 0.6},
			"variant two": {0.6, 0.8},
		},
		fallback: []float32{0, 0},
	}
	llm := &scriptedLLM{text: "variant one\nvariant two"}
	s, err := New("rag_fusion", Deps{Store: store, Embed: emb, LLM: llm})
	require.NoError(t, err)

	results, err := s.Retrieve(context.Background(), "p1", "anything", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "c", results[0].ChunkID)
	require.InDelta(t, 2.0/float64(rrfK), results[0].Score, 1e-9)
}

func TestHydeSearchesWithPassage(t *testing.T) {
	store := seedStore(t)
	emb := &scriptedEmbedder{
		vectors:  map[string][]float32{"hypothetical passage": {0, 1}},
		fallback: []float32{0, 0},
	}
	llm := &scriptedLLM{text: "hypothetical passage"}
	s, err := New("hyde", Deps{Store: store, Embed: emb, LLM: llm})
	require.NoError(t, err)

	results, err := s.Retrieve(context.Background(), "p1", "what is beta?", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].ChunkID)
	require.Equal(t, []string{"hypothetical passage"}, emb.embedded)
}
