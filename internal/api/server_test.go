package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"sightline/internal/config"
	"sightline/internal/models"
	"sightline/internal/retrieval"
	"sightline/internal/util"

	"github.com/stretchr/testify/require"
)

type stubOrchestrator struct {
	summary models.Summary
	answer  models.Answer
	err     error

	lastURL      string
	lastQuestion string
	lastStrategy string
}

func (s *stubOrchestrator) Summarize(ctx context.Context, paperURL string) (models.Summary, error) {
	s.lastURL = paperURL
	return s.summary, s.err
}

func (s *stubOrchestrator) Ask(ctx context.Context, paperURL, question, strategy string) (models.Answer, error) {
	s.lastURL, s.lastQuestion, s.lastStrategy = paperURL, question, strategy
	return s.answer, s.err
}

func newTestServer(stub *stubOrchestrator) http.Handler {
	return NewServer(config.Config{}, stub, nil).Routes()
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealthz(t *testing.T) {
	h := newTestServer(&stubOrchestrator{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSummarizeOK(t *testing.T) {
	stub := &stubOrchestrator{summary: models.Summary{
		Title:     "T",
		Authors:   []string{"A"},
		KeyPoints: []string{"k"},
	}}
	h := newTestServer(stub)

	rec := postJSON(t, h, "/summarize", map[string]string{"paper_url": "https://arxiv.org/abs/1706.03762"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://arxiv.org/abs/1706.03762", stub.lastURL)

	var got models.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "T", got.Title)
	require.Equal(t, []string{"A"}, got.Authors)
}

func TestSummarizeMissingURL(t *testing.T) {
	h := newTestServer(&stubOrchestrator{})
	rec := postJSON(t, h, "/summarize", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "SL-API-4001", errCode(t, rec))
}

func TestAskDefaultsStrategy(t *testing.T) {
	stub := &stubOrchestrator{answer: models.Answer{Answer: "because"}}
	h := newTestServer(stub)

	rec := postJSON(t, h, "/ask", map[string]string{
		"paper_url": "https://arxiv.org/abs/1706.03762",
		"question":  "why?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "simple", stub.lastStrategy)

	var got models.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "because", got.Answer)
}

func TestAskMissingFields(t *testing.T) {
	h := newTestServer(&stubOrchestrator{})
	rec := postJSON(t, h, "/ask", map[string]string{"paper_url": "https://arxiv.org/abs/1706.03762"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid source", fmt.Errorf("%w: nope", util.ErrInvalidSource), http.StatusBadRequest, "SL-API-4001"},
		{"unknown strategy", fmt.Errorf("%w: %q", retrieval.ErrUnknownStrategy, "x"), http.StatusBadRequest, "SL-API-4001"},
		{"fetch timeout", fmt.Errorf("%w: slow", util.ErrFetchTimeout), http.StatusBadGateway, "SL-API-5020"},
		{"collection missing", fmt.Errorf("%w: p1", util.ErrCollectionNotFound), http.StatusInternalServerError, "SL-RET-5004"},
		{"index build", fmt.Errorf("%w: boom", util.ErrIndexBuild), http.StatusInternalServerError, "SL-IDX-5001"},
		{"synthesis", fmt.Errorf("%w: empty", util.ErrSynthesis), http.StatusInternalServerError, "SL-SYN-5002"},
		{"configuration", fmt.Errorf("%w: overlap", util.ErrConfiguration), http.StatusInternalServerError, "SL-CFG-5003"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(&stubOrchestrator{err: tc.err})
			rec := postJSON(t, h, "/summarize", map[string]string{"paper_url": "https://arxiv.org/abs/1706.03762"})
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.code, errCode(t, rec))
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&stubOrchestrator{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summarize", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "SL-API-4005", errCode(t, rec))
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(&stubOrchestrator{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/ask", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
