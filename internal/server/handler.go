// Package server exposes the query orchestration pipeline over HTTP.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/studyflow-ai/studyflow/internal/assembler"
	"github.com/studyflow-ai/studyflow/internal/history"
	"github.com/studyflow-ai/studyflow/internal/index"
	"github.com/studyflow-ai/studyflow/internal/ingest"
	"github.com/studyflow-ai/studyflow/internal/orchestrator"
	"github.com/studyflow-ai/studyflow/internal/retrieval"
	"github.com/studyflow-ai/studyflow/pkg/config"
	apperrors "github.com/studyflow-ai/studyflow/pkg/errors"
	"github.com/studyflow-ai/studyflow/pkg/logger"
)

// Handler serves the API. Publisher and History are optional: when nil,
// documents index synchronously and history is skipped.
type Handler struct {
	orch      *orchestrator.Orchestrator
	publisher *ingest.Publisher
	history   *history.Store
	retrieval config.RetrievalConfig
	logger    *slog.Logger
}

// New creates the API handler.
func New(orch *orchestrator.Orchestrator, publisher *ingest.Publisher, hist *history.Store, retrieval config.RetrievalConfig, log *slog.Logger) *Handler {
	return &Handler{
		orch:      orch,
		publisher: publisher,
		history:   hist,
		retrieval: retrieval,
		logger:    log.With(slog.String("component", "http")),
	}
}

// Register mounts all API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/ask", h.handleAsk)
	mux.HandleFunc("POST /api/v1/query", h.handleQuery)
	mux.HandleFunc("GET /api/v1/search", h.handleSearch)
	mux.HandleFunc("GET /api/v1/stats", h.handleStats)
	mux.HandleFunc("POST /api/v1/providers/test", h.handleProvidersTest)
	mux.HandleFunc("POST /api/v1/documents", h.handleAddDocument)
	mux.HandleFunc("GET /api/v1/documents", h.handleListDocuments)
	mux.HandleFunc("GET /api/v1/index/stats", h.handleIndexStats)
	mux.HandleFunc("GET /api/v1/history", h.handleHistory)
}

type askRequest struct {
	Question      string `json:"question"`
	Provider      string `json:"provider,omitempty"`
	AllowFallback *bool  `json:"allow_fallback,omitempty"`
	UseContext    bool   `json:"use_context,omitempty"`
	Subject       string `json:"subject,omitempty"`
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body"))
		return
	}

	allowFallback := true
	if req.AllowFallback != nil {
		allowFallback = *req.AllowFallback
	}

	if req.UseContext {
		result := h.orch.ProcessQuery(r.Context(), req.Question, req.Subject, "")
		h.recordHistory(r, req.Question, req.Subject, result)
		h.respondJSON(w, http.StatusOK, result)
		return
	}

	payload := h.orch.Ask(r.Context(), req.Question, req.Provider, allowFallback)

	status := http.StatusOK
	if payload.Error == apperrors.ErrInvalidQuery.Error() {
		status = http.StatusBadRequest
	}
	h.respondJSON(w, status, payload)
}

type queryRequest struct {
	Query        string `json:"query"`
	Subject      string `json:"subject,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body"))
		return
	}

	result := h.orch.ProcessQuery(r.Context(), req.Query, req.Subject, req.DocumentType)
	h.recordHistory(r, req.Query, req.Subject, result)
	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.respondError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "missing query parameter q"))
		return
	}

	limit := h.retrieval.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.retrieval.MaxResults {
		limit = h.retrieval.MaxResults
	}

	results := h.orch.Search(query, r.URL.Query().Get("subject"), limit)
	if results == nil {
		results = []retrieval.Result{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.orch.GetStats())
}

func (h *Handler) handleProvidersTest(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.orch.TestAllProviders(r.Context()))
}

func (h *Handler) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var msg ingest.DocumentMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.respondError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body"))
		return
	}
	if err := ingest.Validate(&msg); err != nil {
		h.respondError(w, r, err)
		return
	}

	// async path when the ingest pipeline is enabled
	if h.publisher != nil {
		if err := h.publisher.Publish(r.Context(), &msg); err != nil {
			h.respondError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	id, ok := h.orch.AddDocument(msg.Text, indexMetadata(&msg))
	if !ok {
		h.respondError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "document produced no index terms"))
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{"document_id": id})
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		h.respondError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "missing query parameter subject"))
		return
	}

	docs := h.orch.DocumentsBySubject(subject)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"subject":   subject,
		"documents": docs,
		"total":     len(docs),
	})
}

func (h *Handler) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.orch.IndexStats())
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, r, apperrors.New(apperrors.ErrInternal, http.StatusNotImplemented, "history store not configured"))
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := h.history.Recent(r.Context(), r.URL.Query().Get("subject"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

// recordHistory persists an answered query. Best effort: failures are
// logged, never surfaced.
func (h *Handler) recordHistory(r *http.Request, question, subject string, result *assembler.Result) {
	if h.history == nil || result.Answer == "" {
		return
	}

	sources := make([]string, 0, len(result.Sources))
	for _, s := range result.Sources {
		sources = append(sources, s.Title)
	}

	entry := &history.Entry{
		Question:     question,
		Answer:       result.Answer,
		Subject:      subject,
		ProviderUsed: result.ProviderUsed,
		Sources:      sources,
		Cached:       result.Cached,
		AskedAt:      time.Now().UTC(),
	}
	if err := h.history.Record(r.Context(), entry); err != nil {
		h.logger.Warn("failed to record history", slog.String("error", err.Error()))
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)

	h.logger.Warn("request failed",
		slog.String("request_id", logger.RequestIDFromContext(r.Context())),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func indexMetadata(msg *ingest.DocumentMessage) index.Metadata {
	return index.Metadata{
		Subject:    msg.Subject,
		SourceType: msg.SourceType,
		Title:      msg.Title,
	}
}
