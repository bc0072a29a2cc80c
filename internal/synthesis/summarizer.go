package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sightline/internal/models"
	"sightline/internal/providers"
	"sightline/internal/util"
)

const sectionPrompt = `You are an expert at analyzing sections of academic papers. Your task is to analyze a specific section of a paper and create a focused summary that captures the key information from that section.

Please analyze the following section of the paper and create a focused summary.

Paper Title: %s
Section Content:
%s

Please provide a brief summary of this section, focusing on:
1. Main ideas and arguments presented
2. Key findings or methodological details
3. How this section contributes to the overall paper
4. Any significant equations, results, or conclusions

Make the summary clear and concise while preserving all important technical details.`

const overallPrompt = `You are an expert at summarizing academic papers. Your task is to analyze academic papers and create comprehensive, well-structured summaries that capture the key aspects of the research.

Please analyze the following paper and create a comprehensive summary.

Paper Title: %s
Authors: %s
Abstract: %s

Summaries of All Sections:
%s

Please provide a detailed summary following this structure:
%s

Focus on:
1. Capturing the main contributions and findings
2. Explaining the methodology clearly
3. Highlighting key results and their significance
4. Discussing the implications of the research

Make the summary clear, concise, and well-structured.`

const summarySchemaHint = `Respond with a single JSON object with exactly these keys: "title" (string), "authors" (array of strings), "abstract" (string), "key_points" (array of strings), "methodology" (string), "results" (string), "implications" (string). Do not include any text outside the JSON object.`

// Summarizer produces the structured seven-field summary of a paper. Long
// papers are summarized map-reduce style: each section gets a focused
// summary, then the section summaries feed one structured overall pass.
// callTimeout bounds each model call individually; the section loop makes
// one call per section, so a stage-wide deadline would starve long papers.
type Summarizer struct {
	llm         providers.LLMProvider
	callTimeout time.Duration
	log         *slog.Logger
}

func NewSummarizer(llm providers.LLMProvider, callTimeout time.Duration, log *slog.Logger) *Summarizer {
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{llm: llm, callTimeout: callTimeout, log: log}
}

func (s *Summarizer) generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	return s.llm.Generate(ctx, req)
}

func (s *Summarizer) Summarize(ctx context.Context, paper models.Paper, chunks []models.Chunk) (models.Summary, error) {
	sections, err := s.sectionSummaries(ctx, paper, chunks)
	if err != nil {
		return models.Summary{}, err
	}

	prompt := fmt.Sprintf(overallPrompt,
		paper.Title,
		strings.Join(paper.Authors, ", "),
		paper.Abstract,
		strings.Join(sections, "\n\n"),
		summarySchemaHint,
	)
	resp, info, err := s.generate(ctx, providers.GenerateRequest{
		Operation:  "summary_overall",
		Prompt:     prompt,
		SchemaHint: summarySchemaHint,
	})
	if err != nil {
		return models.Summary{}, fmt.Errorf("%w: overall summary: %v", util.ErrSynthesis, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return models.Summary{}, fmt.Errorf("%w: provider %s returned empty summary", util.ErrSynthesis, info.Name)
	}

	summary, perr := parseSummary(resp.Text)
	if perr != nil {
		s.log.Warn("summary output not parseable, falling back to paper metadata",
			"paper_id", paper.PaperID, "provider", info.Name, "error", perr)
		summary = models.Summary{}
	}
	fillDefaults(&summary, paper)
	return summary, nil
}

func (s *Summarizer) sectionSummaries(ctx context.Context, paper models.Paper, chunks []models.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{util.Snippet(paper.Text, 4000)}, nil
	}
	if len(chunks) == 1 {
		return []string{chunks[0].Text}, nil
	}
	sections := make([]string, 0, len(chunks))
	for _, c := range chunks {
		resp, _, err := s.generate(ctx, providers.GenerateRequest{
			Operation: "summary_section",
			Prompt:    fmt.Sprintf(sectionPrompt, paper.Title, c.Text),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: section %d: %v", util.ErrSynthesis, c.ChunkIndex, err)
		}
		if text := strings.TrimSpace(resp.Text); text != "" {
			sections = append(sections, text)
		}
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: all section summaries empty", util.ErrSynthesis)
	}
	return sections, nil
}

// rawSummary tolerates the shapes models actually emit: authors and
// key_points arrive as either arrays or comma-joined strings.
type rawSummary struct {
	Title        string          `json:"title"`
	Authors      json.RawMessage `json:"authors"`
	Abstract     string          `json:"abstract"`
	KeyPoints    json.RawMessage `json:"key_points"`
	Methodology  string          `json:"methodology"`
	Results      string          `json:"results"`
	Implications string          `json:"implications"`
}

func parseSummary(text string) (models.Summary, error) {
	body := extractJSON(text)
	if body == "" {
		return models.Summary{}, fmt.Errorf("no JSON object in output")
	}
	var raw rawSummary
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	return models.Summary{
		Title:        strings.TrimSpace(raw.Title),
		Authors:      stringList(raw.Authors),
		Abstract:     strings.TrimSpace(raw.Abstract),
		KeyPoints:    stringList(raw.KeyPoints),
		Methodology:  strings.TrimSpace(raw.Methodology),
		Results:      strings.TrimSpace(raw.Results),
		Implications: strings.TrimSpace(raw.Implications),
	}, nil
}

// extractJSON strips markdown code fences and surrounding prose, returning
// the text between the first '{' and the last '}'.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		out := []string{}
		for _, s := range strings.Split(single, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

// fillDefaults backfills identity fields from the fetched metadata so the
// response always carries every field, empty rather than absent.
func fillDefaults(s *models.Summary, paper models.Paper) {
	if s.Title == "" {
		s.Title = paper.Title
	}
	if len(s.Authors) == 0 {
		s.Authors = append([]string{}, paper.Authors...)
	}
	if s.Abstract == "" {
		s.Abstract = paper.Abstract
	}
	if s.Authors == nil {
		s.Authors = []string{}
	}
	if s.KeyPoints == nil {
		s.KeyPoints = []string{}
	}
}
