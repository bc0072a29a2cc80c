package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sightline/internal/models"
	"sightline/internal/providers"
	"sightline/internal/vectorstore"
)

// ErrUnknownStrategy reports a strategy name with no registered
// implementation. Callers treat it as a bad request, not a server fault.
var ErrUnknownStrategy = errors.New("unknown retrieval strategy")

// Strategy selects the chunks most relevant to a question from a ready
// collection. Implementations differ in how the question is turned into
// one or more query vectors and how multiple result lists are merged.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, paperID, question string, k int) ([]models.ChunkResult, error)
}

type Deps struct {
	Store vectorstore.Store
	Embed providers.EmbeddingProvider
	LLM   providers.LLMProvider
	Log   *slog.Logger
}

// New returns the strategy registered under name. Names are snake_case.
func New(name string, deps Deps) (Strategy, error) {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	switch name {
	case "", "simple":
		return &simpleStrategy{deps: deps}, nil
	case "multi_query":
		return &multiQueryStrategy{deps: deps}, nil
	case "rag_fusion":
		return &fusionStrategy{deps: deps}, nil
	case "hyde":
		return &hydeStrategy{deps: deps}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Names lists the registered strategy names in a stable order.
func Names() []string {
	return []string{"simple", "multi_query", "rag_fusion", "hyde"}
}

func embedOne(ctx context.Context, deps Deps, operation, text string) ([]float32, error) {
	vectors, _, err := deps.Embed.Embed(ctx, providers.EmbedRequest{
		Operation: operation,
		Inputs:    []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one input", len(vectors))
	}
	return vectors[0], nil
}

const expansionPrompt = `You are an AI language model assistant.
Your task is to generate five different versions of the given user question to retrieve relevant documents from a vector database.
By generating multiple perspectives on the user question, your goal is to help the user overcome some of the limitations of the distance-based similarity search.
Provide these alternative questions separated by newlines.
Original question: %s`

// expandQuestion asks the model for alternative phrasings of the question,
// one per line. Falls back to the original question when the model returns
// nothing usable.
func expandQuestion(ctx context.Context, deps Deps, question string) ([]string, error) {
	resp, _, err := deps.LLM.Generate(ctx, providers.GenerateRequest{
		Operation: "ask_query_expansion",
		Prompt:    fmt.Sprintf(expansionPrompt, question),
	})
	if err != nil {
		return nil, fmt.Errorf("expand question: %w", err)
	}
	var variants []string
	for _, line := range strings.Split(resp.Text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			variants = append(variants, line)
		}
	}
	if len(variants) == 0 {
		variants = []string{question}
	}
	return variants, nil
}

func retrieveFor(ctx context.Context, deps Deps, operation, paperID, query string, k int) ([]models.ChunkResult, error) {
	vector, err := embedOne(ctx, deps, operation, query)
	if err != nil {
		return nil, err
	}
	return deps.Store.Query(ctx, paperID, vector, k)
}
