package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sightline/internal/config"
	"sightline/internal/models"
	"sightline/internal/retrieval"
	"sightline/internal/util"

	"github.com/google/uuid"
)

// Orchestrator is the request flow behind both endpoints.
type Orchestrator interface {
	Summarize(ctx context.Context, paperURL string) (models.Summary, error)
	Ask(ctx context.Context, paperURL, question, strategy string) (models.Answer, error)
}

type Server struct {
	cfg      config.Config
	pipeline Orchestrator
	log      *slog.Logger
}

func NewServer(cfg config.Config, pipeline Orchestrator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, pipeline: pipeline, log: log}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/summarize", s.handleSummarize)
	mux.HandleFunc("/ask", s.handleAsk)
	return withCORS(s.withRequestID(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req struct {
		PaperURL string `json:"paper_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.PaperURL = strings.TrimSpace(req.PaperURL)
	if req.PaperURL == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper_url is required"))
		return
	}

	summary, err := s.pipeline.Summarize(r.Context(), req.PaperURL)
	if err != nil {
		s.writePipelineErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	var req struct {
		PaperURL string `json:"paper_url"`
		Question string `json:"question"`
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.PaperURL = strings.TrimSpace(req.PaperURL)
	req.Question = strings.TrimSpace(req.Question)
	if req.PaperURL == "" || req.Question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper_url and question are required"))
		return
	}
	if req.Strategy == "" {
		req.Strategy = "simple"
	}

	answer, err := s.pipeline.Ask(r.Context(), req.PaperURL, req.Question, req.Strategy)
	if err != nil {
		s.writePipelineErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// writePipelineErr maps the pipeline's error classes onto HTTP statuses.
func (s *Server) writePipelineErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, util.ErrInvalidSource),
		errors.Is(err, util.ErrNoExtractableText),
		errors.Is(err, retrieval.ErrUnknownStrategy):
		status = http.StatusBadRequest
	case errors.Is(err, util.ErrFetchTimeout):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = 499
	}
	if status >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.log.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeErr(w, status, err)
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "SL-API-4000"

	switch {
	case status >= 500:
		switch {
		case err != nil && errors.Is(err, util.ErrIndexBuild):
			return apiError{
				Code:    "SL-IDX-5001",
				Message: "Index build failed. Retry the request.",
			}
		case err != nil && errors.Is(err, util.ErrSynthesis):
			return apiError{
				Code:    "SL-SYN-5002",
				Message: "Synthesis failed. Retry shortly or check provider configuration.",
			}
		case err != nil && errors.Is(err, util.ErrCollectionNotFound):
			// Retrieval ran against a collection the indexer never marked
			// ready. That is an internal sequencing fault, not client input.
			return apiError{
				Code:    "SL-RET-5004",
				Message: "Retrieval ran before the paper's index was ready. Retry the request.",
			}
		case err != nil && errors.Is(err, util.ErrConfiguration):
			return apiError{
				Code:    "SL-CFG-5003",
				Message: "Service is misconfigured. Check chunking settings.",
			}
		default:
			return apiError{
				Code:    "SL-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "SL-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "SL-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "SL-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusBadGateway:
		code = "SL-API-5020"
		msg = "Upstream source unavailable. Retry shortly."
	case status == 499:
		code = "SL-API-4990"
		msg = "Request was cancelled before completion."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		low := strings.ToLower(err.Error())
		switch {
		case strings.Contains(low, "paper_url is required"):
			msg = "A paper URL is required."
		case strings.Contains(low, "paper_url and question are required"):
			msg = "Both paper URL and question are required."
		case strings.Contains(low, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(low, "unknown retrieval strategy"):
			msg = fmt.Sprintf("Unknown retrieval strategy. Valid strategies: %s.", strings.Join(retrieval.Names(), ", "))
		case strings.Contains(low, "invalid source"), strings.Contains(low, "not an arxiv"):
			msg = "The URL does not point to a recognizable arXiv paper."
		case strings.Contains(low, "no extractable text"):
			msg = "The paper's PDF contains no extractable text."
		}
	}

	return apiError{Code: code, Message: msg}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request", "id", id, "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
