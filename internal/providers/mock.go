package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MockProvider answers deterministically with no network access. Embeddings
// hash the input text so identical text always maps to the same vector.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	op := strings.ToLower(req.Operation)
	text := "Mock response."
	switch {
	case strings.Contains(op, "overall"):
		text = `{"title":"Mock Paper Title","authors":["Mock Author"],"abstract":"Deterministic abstract.","key_points":["Deterministic key point."],"methodology":"Deterministic methodology.","results":"Deterministic results.","implications":"Deterministic implications."}`
	case strings.Contains(op, "section"):
		text = "Deterministic section summary."
	case strings.Contains(op, "expansion"):
		text = "mock variant one\nmock variant two\nmock variant three\nmock variant four\nmock variant five"
	case strings.Contains(op, "hyde"):
		text = "A deterministic hypothetical academic passage addressing the question."
	case strings.Contains(op, "answer"):
		builder := strings.Builder{}
		builder.WriteString("Deterministic answer grounded in retrieved context.")
		for i := range req.Context {
			builder.WriteString(" [C")
			builder.WriteString(strconv.Itoa(i + 1))
			builder.WriteString("]")
		}
		if len(req.Context) == 0 {
			builder.WriteString(" I don't know based on the provided context.")
		}
		text = builder.String()
	}
	return GenerateResponse{Text: text}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return Normalize(vec)
}

// Normalize scales v to unit length so dot products behave as cosine scores.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / (math.Sqrt(sum) + 1e-9))
	for i := range v {
		v[i] *= inv
	}
	return v
}
