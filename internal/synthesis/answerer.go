package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sightline/internal/models"
	"sightline/internal/providers"
	"sightline/internal/util"
)

const answerPrompt = `You are an expert at answering questions about academic papers.
Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
If the question is not related to the paper, say that the question is not relevant to this paper.

Context:
%s

Question: %s

Answer:`

// maxContextRunes caps how much of each retrieved chunk goes into the
// prompt.
const maxContextRunes = 1200

// Answerer turns retrieved chunks and a question into a grounded answer.
type Answerer struct {
	llm providers.LLMProvider
	log *slog.Logger
}

func NewAnswerer(llm providers.LLMProvider, log *slog.Logger) *Answerer {
	if log == nil {
		log = slog.Default()
	}
	return &Answerer{llm: llm, log: log}
}

func (a *Answerer) Answer(ctx context.Context, question string, results []models.ChunkResult) (models.Answer, error) {
	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("[C%d] %s", i+1, util.Snippet(r.Text, maxContextRunes)))
	}

	resp, info, err := a.llm.Generate(ctx, providers.GenerateRequest{
		Operation: "ask_answer",
		Prompt:    fmt.Sprintf(answerPrompt, strings.Join(lines, "\n"), question),
		Context:   lines,
	})
	if err != nil {
		return models.Answer{}, fmt.Errorf("%w: answer generation: %v", util.ErrSynthesis, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return models.Answer{}, fmt.Errorf("%w: provider %s returned empty answer", util.ErrSynthesis, info.Name)
	}
	return models.Answer{Answer: text}, nil
}
