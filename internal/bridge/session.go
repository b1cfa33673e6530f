package bridge

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Kenbark42/dominus-ai/internal/conversation"
)

// sessionCreateRequest is the body for POST /session/create.
type sessionCreateRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
}

// sessionCreateResponse is the body for POST /session/create.
type sessionCreateResponse struct {
	SessionID string `json:"session_id"`
}

// handleSessionCreate creates an empty session up front, for clients that
// want the id before the first message.
func (s *Server) handleSessionCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionCreateRequest
		if r.ContentLength > 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
				return
			}
		}

		id := s.manager.CreateSession(r.Context(), req.Metadata)
		writeJSON(w, http.StatusOK, sessionCreateResponse{SessionID: id})
	}
}

// sessionInfoRequest is the body for POST /session/info.
type sessionInfoRequest struct {
	SessionID string `json:"session_id"`
}

// handleSessionInfo returns a summary of one session.
func (s *Server) handleSessionInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionInfoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}

		info, ok := s.manager.SessionInfo(r.Context(), req.SessionID)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// handleListSessions returns summaries of the in-memory working set.
func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		infos := s.manager.Sessions()
		if infos == nil {
			infos = []conversation.SessionInfo{}
		}
		writeJSON(w, http.StatusOK, infos)
	}
}

// handleDeleteSession removes a session from every tier.
func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "missing session id")
			return
		}
		if !s.manager.DeleteSession(r.Context(), id) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
	}
}
