package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sightline/internal/chunker"
	"sightline/internal/config"
	"sightline/internal/index"
	"sightline/internal/models"
	"sightline/internal/providers"
	"sightline/internal/retrieval"
	"sightline/internal/synthesis"
	"sightline/internal/util"
	"sightline/internal/vectorstore"

	"github.com/cenkalti/backoff/v4"
)

// Stage names used in logs and wrapped errors.
const (
	stageFetching     = "fetching"
	stageIndexing     = "indexing"
	stageRetrieving   = "retrieving"
	stageSynthesizing = "synthesizing"
	stageDone         = "done"
)

// Fetcher resolves a raw source URL into a normalized paper.
type Fetcher interface {
	Fetch(ctx context.Context, raw string) (models.Paper, error)
}

// Pipeline runs the full request flow: fetch the paper, ensure its index,
// retrieve relevant chunks, and synthesize the response. Each request moves
// through the stages in order; a failed stage decides between retrying and
// surfacing based on the error class.
type Pipeline struct {
	cfg        config.Config
	fetcher    Fetcher
	indexer    *index.Indexer
	store      vectorstore.Store
	llm        providers.LLMProvider
	embed      providers.EmbeddingProvider
	summarizer *synthesis.Summarizer
	answerer   *synthesis.Answerer
	log        *slog.Logger
}

func New(cfg config.Config, fetcher Fetcher, store vectorstore.Store, llm providers.LLMProvider, embed providers.EmbeddingProvider, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		fetcher:    fetcher,
		indexer:    index.New(store, embed, log),
		store:      store,
		llm:        llm,
		embed:      embed,
		summarizer: synthesis.NewSummarizer(llm, time.Duration(cfg.ProviderTimeoutSecs)*time.Second, log),
		answerer:   synthesis.NewAnswerer(llm, log),
		log:        log,
	}
}

// Summarize fetches, indexes, and summarizes the paper behind paperURL.
// Section summaries use their own coarse chunking: the fine-grained chunks
// that feed retrieval would mean one model call per retrieval chunk, an
// order of magnitude more than the section pass needs.
func (p *Pipeline) Summarize(ctx context.Context, paperURL string) (models.Summary, error) {
	paper, _, err := p.prepare(ctx, paperURL)
	if err != nil {
		return models.Summary{}, err
	}

	sections, err := chunker.Split(paper.PaperID, paper.Text, p.cfg.SummaryChunkSize, p.cfg.SummaryChunkOverlap, p.cfg.BoundaryTolerance)
	if err != nil {
		return models.Summary{}, err
	}

	// The summarizer bounds each model call itself; a stage-wide deadline
	// here would cap the whole section loop at one call's budget.
	var summary models.Summary
	err = p.retry(ctx, stageSynthesizing, func() error {
		var serr error
		summary, serr = p.summarizer.Summarize(ctx, paper, sections)
		return serr
	})
	if err != nil {
		return models.Summary{}, err
	}

	p.log.Info("summarize complete", "paper_id", paper.PaperID, "stage", stageDone, "sections", len(sections))
	return summary, nil
}

// Ask answers a question about the paper behind paperURL using the named
// retrieval strategy. An empty strategy name means "simple".
func (p *Pipeline) Ask(ctx context.Context, paperURL, question, strategyName string) (models.Answer, error) {
	strategy, err := retrieval.New(strategyName, retrieval.Deps{
		Store: p.store,
		Embed: p.embed,
		LLM:   p.llm,
		Log:   p.log,
	})
	if err != nil {
		return models.Answer{}, err
	}

	paper, _, err := p.prepare(ctx, paperURL)
	if err != nil {
		return models.Answer{}, err
	}

	var results []models.ChunkResult
	err = p.retry(ctx, stageRetrieving, func() error {
		rctx, cancel := p.providerContext(ctx)
		defer cancel()
		var rerr error
		results, rerr = strategy.Retrieve(rctx, paper.PaperID, question, p.topK())
		return rerr
	})
	if err != nil {
		return models.Answer{}, err
	}

	var answer models.Answer
	err = p.retry(ctx, stageSynthesizing, func() error {
		actx, cancel := p.providerContext(ctx)
		defer cancel()
		var aerr error
		answer, aerr = p.answerer.Answer(actx, question, results)
		return aerr
	})
	if err != nil {
		return models.Answer{}, err
	}

	p.log.Info("ask complete", "paper_id", paper.PaperID, "stage", stageDone,
		"strategy", strategy.Name(), "retrieved", len(results))
	return answer, nil
}

// prepare runs the fetch and index stages shared by both operations.
func (p *Pipeline) prepare(ctx context.Context, paperURL string) (models.Paper, []models.Chunk, error) {
	var paper models.Paper
	err := p.retry(ctx, stageFetching, func() error {
		fctx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.FetchTimeoutSecs)*time.Second)
		defer cancel()
		var ferr error
		paper, ferr = p.fetcher.Fetch(fctx, paperURL)
		return ferr
	})
	if err != nil {
		return models.Paper{}, nil, err
	}

	chunks, err := chunker.Split(paper.PaperID, paper.Text, p.cfg.ChunkSize, p.cfg.ChunkOverlap, p.cfg.BoundaryTolerance)
	if err != nil {
		return models.Paper{}, nil, err
	}

	// A failed build drops its claim and partial state, so a single retry
	// rebuilds from scratch.
	err = p.retryN(ctx, stageIndexing, 1, func() error {
		return p.indexer.Ensure(ctx, paper.PaperID, chunks)
	})
	if err != nil {
		return models.Paper{}, nil, err
	}
	return paper, chunks, nil
}

// retry runs op with exponential backoff. Errors that no retry can fix,
// bad input and misconfiguration, surface immediately.
func (p *Pipeline) retry(ctx context.Context, stage string, op func() error) error {
	return p.retryN(ctx, stage, p.cfg.MaxRetries, op)
}

func (p *Pipeline) retryN(ctx context.Context, stage string, maxRetries int, op func() error) error {
	attempt := 0
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries)), ctx)

	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(fmt.Errorf("%s: %w", stage, err))
		}
		p.log.Warn("stage failed, may retry", "stage", stage, "attempt", attempt, "error", err)
		return fmt.Errorf("%s: %w", stage, err)
	}, policy)
}

func isPermanent(err error) bool {
	if errors.Is(err, util.ErrInvalidSource) ||
		errors.Is(err, util.ErrConfiguration) ||
		errors.Is(err, util.ErrNoExtractableText) ||
		errors.Is(err, util.ErrCollectionNotFound) ||
		errors.Is(err, retrieval.ErrUnknownStrategy) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	// Provider failures from exhausted quotas or oversized prompts do not
	// improve on a second attempt. The default permanent class covers
	// unrecognized messages, and those (empty output among them) still get
	// the bounded retry.
	if errors.Is(err, util.ErrSynthesis) || errors.Is(err, util.ErrIndexBuild) {
		t := providers.ClassifyError(err)
		if !providers.Retryable(t) && t != providers.ErrorPermanent {
			return true
		}
	}
	return false
}

func (p *Pipeline) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(p.cfg.ProviderTimeoutSecs)*time.Second)
}

func (p *Pipeline) topK() int {
	k := p.cfg.TopK
	if k <= 0 {
		k = 4
	}
	if p.cfg.MaxTopK > 0 && k > p.cfg.MaxTopK {
		k = p.cfg.MaxTopK
	}
	return k
}
