package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	genai "github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const (
	geminiModel      = "gemini-2.0-flash"
	geminiEmbedModel = "text-embedding-004"
)

// GeminiProvider serves both generation and embeddings through the Google
// Generative AI SDK. The free tier is aggressively rate limited, so every
// call waits on an RPM limiter before reaching the API.
type GeminiProvider struct {
	alias   string
	apiKey  string
	limiter *rate.Limiter

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiProvider(alias string) *GeminiProvider {
	rpm := 10.0
	return &GeminiProvider{
		alias:   alias,
		apiKey:  resolveGeminiKey(alias),
		limiter: rate.NewLimiter(rate.Limit(rpm*0.9/60.0), 2),
	}
}

func (g *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: geminiModel, Key: g.alias}
	client, err := g.connect(ctx)
	if err != nil {
		return GenerateResponse{}, info, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return GenerateResponse{}, info, err
	}

	model := client.GenerativeModel(geminiModel)
	model.SetTemperature(0.3)
	if req.SchemaHint != "" {
		model.ResponseMIMEType = "application/json"
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("gemini generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return GenerateResponse{}, info, fmt.Errorf("gemini returned no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return GenerateResponse{Text: b.String()}, info, nil
}

func (g *GeminiProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: geminiEmbedModel, Key: g.alias}
	client, err := g.connect(ctx)
	if err != nil {
		return nil, info, err
	}
	em := client.EmbeddingModel(geminiEmbedModel)
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, info, err
		}
		resp, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, info, fmt.Errorf("gemini embed failed: %w", err)
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, info, fmt.Errorf("gemini returned empty embedding")
		}
		out = append(out, resp.Embedding.Values)
	}
	return out, info, nil
}

func (g *GeminiProvider) connect(ctx context.Context) (*genai.Client, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini key missing for alias %q", g.alias)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}
	g.client = client
	return client, nil
}

func resolveGeminiKey(alias string) string {
	if alias != "" {
		if k := os.Getenv("SIGHTLINE_GEMINI_KEY_" + strings.ToUpper(alias)); k != "" {
			return k
		}
	}
	return os.Getenv("GEMINI_API_KEY")
}
