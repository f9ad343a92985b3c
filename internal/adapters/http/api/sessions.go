// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pacelog/pacelog/internal/domain/merge"
	"github.com/pacelog/pacelog/internal/domain/model"
)

// SessionDependencies defines the interface for session reads.
type SessionDependencies interface {
	Session(ctx context.Context, sessionID string) (*model.Session, error)
}

// SessionsHandler handles session read requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleGetSession handles GET /v1/sessions/{session_id} requests.
func (h *SessionsHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	sess, err := h.deps.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, merge.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, msgSessionNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, msgProcessingFailed)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
