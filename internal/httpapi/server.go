package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/mnemo/internal/config"
	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/turn"
)

// Orchestrator is the turn and memory surface the API exposes.
type Orchestrator interface {
	SendMessage(ctx context.Context, conversationID, text string) (turn.Result, error)
	Stream(ctx context.Context, conversationID, text string, onReply func(turn.Result)) (turn.Result, error)
	Messages(conversationID string) ([]conversation.Message, error)
	Memories(ctx context.Context) []memory.Record
	CreateMemory(ctx context.Context, content string) (string, error)
	DeleteMemory(ctx context.Context, id string) error
}

// Status describes the wired backends for health endpoints.
type Status struct {
	CompletionProvider string
	MemoryBackend      string
}

type Server struct {
	cfg           config.Config
	status        Status
	conversations *conversation.Manager
	orchestrator  Orchestrator
	metrics       *observability.Metrics
	logger        *slog.Logger
	upgrader      websocket.Upgrader
}

func New(cfg config.Config, status Status, conversations *conversation.Manager, orchestrator Orchestrator, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:           cfg,
		status:        status,
		conversations: conversations,
		orchestrator:  orchestrator,
		metrics:       metrics,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/conversations", func(r chi.Router) {
		r.Post("/", s.handleCreateConversation)
		r.Get("/{id}", s.handleGetConversation)
		r.Post("/{id}/end", s.handleEndConversation)
		r.Post("/{id}/messages", s.handleSendMessage)
		r.Get("/{id}/messages", s.handleListMessages)
		r.Get("/{id}/ws", s.handleConversationWS)
	})

	r.Route("/v1/memories", func(r chi.Router) {
		r.Get("/", s.handleListMemories)
		r.Post("/", s.handleCreateMemory)
		r.Delete("/{id}", s.handleDeleteMemory)
	})

	return r
}

func (s *Server) aiStatus() string {
	if s.cfg.AIConfigured() {
		return "configured"
	}
	return "not configured"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"ai_status":           s.aiStatus(),
		"completion_provider": s.status.CompletionProvider,
		"memory_backend":      s.status.MemoryBackend,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":               "ready",
		"ai_status":            s.aiStatus(),
		"active_conversations": s.conversations.ActiveCount(),
	})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, _ *http.Request) {
	conv := s.conversations.Create()
	s.observeConversationEvent("created")
	respondJSON(w, http.StatusCreated, conversationResponse{
		Info:            conv.Info(),
		InactivityTTLMS: s.cfg.ConversationInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conversationResponse{
		Info:            conv.Info(),
		InactivityTTLMS: s.cfg.ConversationInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	info, err := s.conversations.End(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.observeConversationEvent("ended")
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	result, err := s.orchestrator.SendMessage(r.Context(), chi.URLParam(r, "id"), req.text())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.orchestrator.Messages(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) observeConversationEvent(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ConversationEvents.WithLabelValues(event).Inc()
	s.metrics.ActiveConversations.Set(float64(s.conversations.ActiveCount()))
}

type conversationResponse struct {
	conversation.Info
	InactivityTTLMS int64 `json:"inactivity_ttl_ms"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

func (r sendMessageRequest) text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Text
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondErr maps domain errors onto HTTP status codes.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "err", err)
	}
	respondError(w, status, code, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, turn.ErrEmptyMessage):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, memory.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound, "conversation_not_found"
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound, "memory_not_found"
	case errors.Is(err, conversation.ErrEnded):
		return http.StatusConflict, "conversation_ended"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
