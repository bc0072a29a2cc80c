package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedLLM struct {
	text  string
	err   error
	calls int
}

func (s *scriptedLLM) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	s.calls++
	return GenerateResponse{Text: s.text}, ProviderInfo{Name: "scripted"}, s.err
}

func TestManagerGenerateFailsOverToNextProvider(t *testing.T) {
	broken := &scriptedLLM{err: errors.New("service unavailable")}
	working := &scriptedLLM{text: "grounded answer"}
	m := NewManagerWith([]NamedLLMProvider{
		{Ref: ProviderRef{Raw: "a", Name: "a"}, Provider: broken},
		{Ref: ProviderRef{Raw: "b", Name: "b"}, Provider: working},
	}, nil, 8)

	resp, info, err := m.Generate(context.Background(), GenerateRequest{Operation: "rag_answer", Prompt: "q"})
	require.NoError(t, err)
	require.Equal(t, "grounded answer", resp.Text)
	require.Equal(t, "scripted", info.Name)
	require.Equal(t, 1, broken.calls)
	require.Equal(t, 1, working.calls)
}

func TestManagerPrefersRealProvidersOverMock(t *testing.T) {
	real := &scriptedLLM{text: "real"}
	m := NewManagerWith([]NamedLLMProvider{
		{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(8)},
		{Ref: ProviderRef{Raw: "groq", Name: "groq"}, Provider: real},
	}, nil, 8)

	resp, _, err := m.Generate(context.Background(), GenerateRequest{Operation: "rag_answer", Prompt: "q"})
	require.NoError(t, err)
	require.Equal(t, "real", resp.Text)
}

func TestManagerEmbedUsesMockDeterministically(t *testing.T) {
	m := NewManagerWith(nil, []NamedEmbedProvider{
		{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(16)},
	}, 16)

	a, _, err := m.Embed(context.Background(), EmbedRequest{Operation: "index_embed", Inputs: []string{"chunk text"}})
	require.NoError(t, err)
	b, _, err := m.Embed(context.Background(), EmbedRequest{Operation: "index_embed", Inputs: []string{"chunk text"}})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 1)
	require.Len(t, a[0], 16)
}
