package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
)

const maxBodyBytes = 1 << 20

// CacheInvalidator drops cached retrieval results.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type HandlerConfig struct {
	DefaultSessionID string
	RAGByDefault     bool
}

type Handler struct {
	service *Service
	loader  *corpus.Loader
	cache   CacheInvalidator
	cfg     HandlerConfig
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler. cache may be nil.
func NewHandler(service *Service, loader *corpus.Loader, cache CacheInvalidator, cfg HandlerConfig) *Handler {
	return &Handler{
		service: service,
		loader:  loader,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.WithComponent("chat-handler"),
	}
}

// Register mounts the chat routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.Chat)
	mux.HandleFunc("GET /api/v1/sessions/{id}/history", h.History)
	mux.HandleFunc("GET /api/v1/corpus", h.Corpus)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	RAG       *bool  `json:"rag"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	req := Request{
		SessionID: body.SessionID,
		Message:   body.Message,
		RAG:       h.cfg.RAGByDefault,
	}
	if req.SessionID == "" {
		req.SessionID = h.cfg.DefaultSessionID
	}
	if body.RAG != nil {
		req.RAG = *body.RAG
	}

	reply, err := h.service.Reply(r.Context(), req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, context.Canceled) {
			return
		}
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("chat request failed", "status", status, "error", err)
		}
		h.writeError(w, status, apperrors.Message(err))
		return
	}
	h.writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"turns":      h.service.History(id),
	})
}

type corpusStatus struct {
	SourceID    string `json:"source_id"`
	Available   bool   `json:"available"`
	ChunkCount  int    `json:"chunk_count"`
	Fingerprint string `json:"fingerprint,omitempty"`
	LoadedAt    string `json:"loaded_at,omitempty"`
}

func (h *Handler) Corpus(w http.ResponseWriter, r *http.Request) {
	status := corpusStatus{SourceID: h.loader.SourceID()}
	if c, err := h.loader.Load(r.Context()); err == nil {
		status.Available = true
		status.ChunkCount = len(c.Chunks)
		status.Fingerprint = c.Fingerprint
		status.LoadedAt = c.LoadedAt.Format(time.RFC3339)
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
