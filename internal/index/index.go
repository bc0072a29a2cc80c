package index

import (
	"context"
	"fmt"
	"log/slog"

	"sightline/internal/models"
	"sightline/internal/providers"
	"sightline/internal/util"
	"sightline/internal/vectorstore"

	"golang.org/x/sync/singleflight"
)

// Indexer builds and reuses per-paper vector collections. A collection is
// keyed by the paper identifier and only visible to readers once it has
// been marked ready; a failed build drops the partial collection so a
// later request can rebuild from scratch.
type Indexer struct {
	store vectorstore.Store
	embed providers.EmbeddingProvider
	log   *slog.Logger
	group singleflight.Group
}

func New(store vectorstore.Store, embed providers.EmbeddingProvider, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{store: store, embed: embed, log: log}
}

// Ensure makes the collection for paperID ready, building it from chunks if
// needed. Concurrent calls for the same paper collapse into a single build;
// every caller observes the same outcome.
func (ix *Indexer) Ensure(ctx context.Context, paperID string, chunks []models.Chunk) error {
	ready, err := ix.store.Ready(ctx, paperID)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %v", util.ErrIndexBuild, paperID, err)
	}
	if ready {
		return nil
	}

	_, err, shared := ix.group.Do(paperID, func() (interface{}, error) {
		return nil, ix.build(ctx, paperID, chunks)
	})
	if err != nil {
		return err
	}
	if shared {
		ix.log.Debug("index build shared with concurrent caller", "paper_id", paperID)
	}
	return nil
}

func (ix *Indexer) build(ctx context.Context, paperID string, chunks []models.Chunk) error {
	// A concurrent caller may have finished the build between our first
	// readiness check and winning the singleflight slot.
	ready, err := ix.store.Ready(ctx, paperID)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %v", util.ErrIndexBuild, paperID, err)
	}
	if ready {
		return nil
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks for paper %s", util.ErrIndexBuild, paperID)
	}

	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = c.Text
	}
	vectors, _, err := ix.embed.Embed(ctx, providers.EmbedRequest{
		Operation: "index_embed",
		Inputs:    inputs,
	})
	if err != nil {
		return ix.fail(ctx, paperID, fmt.Errorf("embed %d chunks: %w", len(chunks), err))
	}
	if len(vectors) != len(chunks) {
		return ix.fail(ctx, paperID, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	if err := ix.store.Upsert(ctx, paperID, chunks, vectors); err != nil {
		return ix.fail(ctx, paperID, fmt.Errorf("store chunks: %w", err))
	}
	if err := ix.store.MarkReady(ctx, paperID); err != nil {
		return ix.fail(ctx, paperID, fmt.Errorf("mark ready: %w", err))
	}

	ix.log.Info("index built", "paper_id", paperID, "chunks", len(chunks))
	return nil
}

// fail rolls back whatever the partial build wrote so the collection never
// lingers in a half-built, unready state.
func (ix *Indexer) fail(ctx context.Context, paperID string, cause error) error {
	if derr := ix.store.Drop(ctx, paperID); derr != nil {
		ix.log.Warn("rollback of partial index failed", "paper_id", paperID, "error", derr)
	}
	return fmt.Errorf("%w: paper %s: %v", util.ErrIndexBuild, paperID, cause)
}
