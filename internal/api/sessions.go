package api

import (
	"net/http"

	"github.com/goodtune/sitebudget/internal/usage"
	"github.com/rs/zerolog"
)

type startSessionRequest struct {
	URL     string `json:"url"`
	Minutes int    `json:"minutes"`
}

type endSessionRequest struct {
	ActualMinutes *int `json:"actualMinutes,omitempty"`
}

// RefusalResponse is returned when a session request is turned down.
type RefusalResponse struct {
	ErrorResponse
	Reason    usage.RefusalReason `json:"reason"`
	Remaining int                 `json:"remainingMinutes"`
}

// SessionsHandler handles session-related API requests.
type SessionsHandler struct {
	quotas Quotas
	logger zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(quotas Quotas, logger zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		quotas: quotas,
		logger: logger.With().Str("handler", "sessions").Logger(),
	}
}

// Start begins a session. Refusals are answered with 422 and the refusal
// reason.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	grant, refusal := h.quotas.StartSession(req.URL, req.Minutes)
	if refusal != nil {
		writeJSON(w, http.StatusUnprocessableEntity, RefusalResponse{
			ErrorResponse: ErrorResponse{
				Error:   http.StatusText(http.StatusUnprocessableEntity),
				Message: refusal.Message,
				Code:    http.StatusUnprocessableEntity,
			},
			Reason:    refusal.Reason,
			Remaining: refusal.Remaining,
		})
		return
	}

	writeJSON(w, http.StatusCreated, grant)
}

// Active returns the running session.
func (h *SessionsHandler) Active(w http.ResponseWriter, r *http.Request) {
	grant, ok := h.quotas.ActiveGrant()
	if !ok {
		writeError(w, http.StatusNotFound, "No session is running")
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

// End settles the running session. An optional actualMinutes in the body
// overrides the elapsed wall-clock time.
func (h *SessionsHandler) End(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	grant, running := h.quotas.ActiveGrant()
	if !running {
		writeError(w, http.StatusNotFound, "No session is running")
		return
	}

	var ended bool
	if req.ActualMinutes != nil {
		ended = h.quotas.EndSessionWithMinutes(*req.ActualMinutes)
	} else {
		ended = h.quotas.EndSession()
	}
	if !ended {
		writeError(w, http.StatusNotFound, "No session is running")
		return
	}

	h.logger.Info().Str("site", grant.SiteKey).Msg("Session ended via API")

	resp := map[string]interface{}{
		"ended":   true,
		"siteKey": grant.SiteKey,
	}
	if u, ok := h.quotas.Usage(grant.SiteKey); ok {
		resp["usedMinutes"] = u.UsedMinutes
		resp["remainingMinutes"] = u.RemainingMinutes
	}
	writeJSON(w, http.StatusOK, resp)
}
