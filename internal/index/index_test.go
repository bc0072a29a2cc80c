package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"sightline/internal/models"
	"sightline/internal/providers"
	"sightline/internal/util"
	"sightline/internal/vectorstore/memory"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	inner providers.EmbeddingProvider
	calls atomic.Int64
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, providers.ProviderInfo{}, errors.New("embedder unavailable")
	}
	return c.inner.Embed(ctx, req)
}

func testChunks(paperID string, n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ChunkID:    fmt.Sprintf("%s-%d", paperID, i),
			PaperID:    paperID,
			ChunkIndex: i,
			Text:       fmt.Sprintf("chunk %d body text", i),
		}
	}
	return chunks
}

func TestEnsureIdempotent(t *testing.T) {
	store := memory.NewStore()
	emb := &countingEmbedder{inner: providers.NewMockProvider(8)}
	ix := New(store, emb, nil)
	ctx := context.Background()

	chunks := testChunks("2301.00001", 3)
	require.NoError(t, ix.Ensure(ctx, "2301.00001", chunks))
	require.NoError(t, ix.Ensure(ctx, "2301.00001", chunks))

	require.Equal(t, int64(1), emb.calls.Load())

	ready, err := store.Ready(ctx, "2301.00001")
	require.NoError(t, err)
	require.True(t, ready)
}

func TestEnsureConcurrentSingleBuild(t *testing.T) {
	store := memory.NewStore()
	emb := &countingEmbedder{inner: providers.NewMockProvider(8)}
	ix := New(store, emb, nil)
	chunks := testChunks("2301.00002", 4)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ix.Ensure(context.Background(), "2301.00002", chunks)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), emb.calls.Load())
}

func TestEnsureRollbackOnFailure(t *testing.T) {
	store := memory.NewStore()
	emb := &countingEmbedder{inner: providers.NewMockProvider(8), fail: true}
	ix := New(store, emb, nil)
	ctx := context.Background()

	err := ix.Ensure(ctx, "2301.00003", testChunks("2301.00003", 2))
	require.ErrorIs(t, err, util.ErrIndexBuild)

	ready, rerr := store.Ready(ctx, "2301.00003")
	require.NoError(t, rerr)
	require.False(t, ready)

	// A later attempt with a healthy embedder rebuilds from scratch.
	emb.fail = false
	require.NoError(t, ix.Ensure(ctx, "2301.00003", testChunks("2301.00003", 2)))
}

func TestEnsureEmptyChunks(t *testing.T) {
	store := memory.NewStore()
	ix := New(store, providers.NewMockProvider(8), nil)
	err := ix.Ensure(context.Background(), "2301.00004", nil)
	require.ErrorIs(t, err, util.ErrIndexBuild)
}
