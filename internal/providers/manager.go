package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sightline/internal/config"

	"github.com/sony/gobreaker"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager fronts the configured providers and is itself an LLMProvider and
// EmbeddingProvider: each call walks the providers in preferred order (real
// providers before mock) behind a per-provider circuit breaker, returning the
// first usable response.
type Manager struct {
	llm   []NamedLLMProvider
	embed []NamedEmbedProvider
	dim   int

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{breakers: map[string]*gobreaker.CircuitBreaker{}, dim: cfg.EmbedDim}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llm = append(m.llm, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embed = append(m.embed, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	if len(m.llm) == 0 {
		m.llm = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	if len(m.embed) == 0 {
		m.embed = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	return m, nil
}

// NewManagerWith builds a manager from explicit providers. Tests use this to
// inject counting or scripted providers.
func NewManagerWith(llm []NamedLLMProvider, embed []NamedEmbedProvider, dim int) *Manager {
	return &Manager{llm: llm, embed: embed, breakers: map[string]*gobreaker.CircuitBreaker{}, dim: dim}
}

func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var (
		resp GenerateResponse
		info ProviderInfo
		err  error
	)
	for _, idx := range preferredOrder(len(m.llm), func(i int) string { return strings.ToLower(m.llm[i].Ref.Name) }) {
		p := m.llm[idx]
		out, execErr := m.breaker(p.Ref).Execute(func() (any, error) {
			r, i, e := p.Provider.Generate(ctx, req)
			return generateResult{r, i}, e
		})
		// Execute returns nil output when the breaker is open.
		res, _ := out.(generateResult)
		resp, info, err = res.resp, res.info, execErr
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return resp, info, nil
		}
		if ctx.Err() != nil {
			return GenerateResponse{}, info, ctx.Err()
		}
	}
	if err == nil {
		err = fmt.Errorf("all llm providers returned empty output")
	}
	return GenerateResponse{}, info, err
}

func (m *Manager) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if req.Dimension <= 0 {
		req.Dimension = m.dim
	}
	var (
		vectors [][]float32
		info    ProviderInfo
		err     error
	)
	for _, idx := range preferredOrder(len(m.embed), func(i int) string { return strings.ToLower(m.embed[i].Ref.Name) }) {
		p := m.embed[idx]
		out, execErr := m.breaker(p.Ref).Execute(func() (any, error) {
			v, i, e := p.Provider.Embed(ctx, req)
			return embedResult{v, i}, e
		})
		res, _ := out.(embedResult)
		vectors, info, err = res.vectors, res.info, execErr
		if err == nil && len(vectors) == len(req.Inputs) {
			return vectors, info, nil
		}
		if ctx.Err() != nil {
			return nil, info, ctx.Err()
		}
	}
	if err == nil {
		err = fmt.Errorf("embedding providers unavailable")
	}
	return nil, info, err
}

type generateResult struct {
	resp GenerateResponse
	info ProviderInfo
}

type embedResult struct {
	vectors [][]float32
	info    ProviderInfo
}

func (m *Manager) breaker(ref ProviderRef) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[ref.Raw]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        ref.Raw,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("provider circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	m.breakers[ref.Raw] = cb
	return cb
}

// preferredOrder puts real providers before the mock fallback.
func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "gemini":
		return NewGeminiProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
