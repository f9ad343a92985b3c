// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pacelog/pacelog/internal/idempotency"
)

// EventsHandler handles event submissions.
type EventsHandler struct {
	deps      Dependencies
	validator *Validator
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies, validator *Validator) *EventsHandler {
	if validator == nil {
		validator = NewValidator()
	}
	return &EventsHandler{deps: deps, validator: validator}
}

// HandlePostEvent handles POST /v1/events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ev, err := h.validator.Normalize(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The raw request is stored with the claim so a replayed attempt can
	// be audited against what was originally submitted.
	raw, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, msgProcessingFailed)
		return
	}

	res, err := h.deps.Ingest(r.Context(), req.IdempotencyKey, raw, ev)
	if err != nil {
		if errors.Is(err, idempotency.ErrConcurrentRequest) {
			writeError(w, http.StatusConflict, msgConcurrentRequest)
			return
		}
		// Everything else, including a prior failed attempt pinned to
		// this key, is a generic processing failure.
		writeError(w, http.StatusInternalServerError, msgProcessingFailed)
		return
	}

	writeRaw(w, http.StatusOK, res.Response)
}
