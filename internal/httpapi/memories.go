package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createMemoryRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"memories": s.orchestrator.Memories(r.Context())})
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id, err := s.orchestrator.CreateMemory(r.Context(), req.Content)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.DeleteMemory(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}
