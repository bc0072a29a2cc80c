package retrieval

import (
	"context"
	"fmt"
	"strings"

	"sightline/internal/models"
	"sightline/internal/providers"
)

const hydePrompt = `You are an AI academic research assistant.
Please write an academic passage to answer the following question.
Question: %s`

// hydeStrategy writes a hypothetical passage that would answer the
// question and searches with the passage's embedding instead of the
// question's. The passage tends to land closer to real answer chunks
// than the question itself.
type hydeStrategy struct {
	deps Deps
}

func (s *hydeStrategy) Name() string { return "hyde" }

func (s *hydeStrategy) Retrieve(ctx context.Context, paperID, question string, k int) ([]models.ChunkResult, error) {
	resp, _, err := s.deps.LLM.Generate(ctx, providers.GenerateRequest{
		Operation: "hyde_passage",
		Prompt:    fmt.Sprintf(hydePrompt, question),
	})
	if err != nil {
		return nil, fmt.Errorf("generate hypothetical passage: %w", err)
	}
	passage := strings.TrimSpace(resp.Text)
	if passage == "" {
		passage = question
	}
	return retrieveFor(ctx, s.deps, "hyde_passage_embed", paperID, passage, k)
}
