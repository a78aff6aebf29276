package api

import (
	"errors"
	"net/http"

	"github.com/goodtune/sitebudget/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Quotas is the part of the tracker the API drives.
type Quotas interface {
	Normalize(input string) string
	AddSite(rawURL string, limitMinutes int) (string, error)
	RemoveSite(key string) bool
	Site(key string) (usage.SiteQuota, bool)
	ListSites() []usage.SiteQuota
	Usage(key string) (usage.Usage, bool)
	StartSession(rawURL string, requestedMinutes int) (usage.Grant, *usage.Refusal)
	ActiveGrant() (usage.Grant, bool)
	EndSession() bool
	EndSessionWithMinutes(actualMinutes int) bool
}

// SiteView is a site record with today's remaining budget attached.
type SiteView struct {
	usage.SiteQuota
	RemainingMinutes int  `json:"remainingMinutes"`
	SessionActive    bool `json:"sessionActive"`
}

type addSiteRequest struct {
	URL          string `json:"url"`
	LimitMinutes int    `json:"limitMinutes"`
}

// SitesHandler handles site-related API requests.
type SitesHandler struct {
	quotas Quotas
	logger zerolog.Logger
}

// NewSitesHandler creates a new sites handler.
func NewSitesHandler(quotas Quotas, logger zerolog.Logger) *SitesHandler {
	return &SitesHandler{
		quotas: quotas,
		logger: logger.With().Str("handler", "sites").Logger(),
	}
}

func (h *SitesHandler) view(site usage.SiteQuota) SiteView {
	v := SiteView{SiteQuota: site, RemainingMinutes: site.RemainingMinutes()}
	if u, ok := h.quotas.Usage(site.SiteKey); ok {
		v.RemainingMinutes = u.RemainingMinutes
		v.SessionActive = u.SessionActive
	}
	return v
}

// List returns every tracked site.
func (h *SitesHandler) List(w http.ResponseWriter, r *http.Request) {
	sites := h.quotas.ListSites()
	views := make([]SiteView, 0, len(sites))
	for _, s := range sites {
		views = append(views, h.view(s))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sites": views,
		"count": len(views),
	})
}

// Get returns a single site by key.
func (h *SitesHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	site, ok := h.quotas.Site(key)
	if !ok {
		writeError(w, http.StatusNotFound, "Website not found")
		return
	}

	writeJSON(w, http.StatusOK, h.view(site))
}

// Create starts tracking a site. Adding a site that is already tracked
// returns the existing record with 200 and leaves its limit unchanged.
func (h *SitesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req addSiteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	_, existed := h.quotas.Site(h.quotas.Normalize(req.URL))
	key, err := h.quotas.AddSite(req.URL, req.LimitMinutes)
	if err != nil {
		switch {
		case errors.Is(err, usage.ErrInvalidSite):
			writeError(w, http.StatusBadRequest, "A website URL is required")
		case errors.Is(err, usage.ErrInvalidLimit):
			writeError(w, http.StatusBadRequest, "limitMinutes must be a positive number of minutes")
		default:
			h.logger.Error().Err(err).Str("url", req.URL).Msg("Failed to add site")
			writeError(w, http.StatusInternalServerError, "Failed to add site")
		}
		return
	}

	site, ok := h.quotas.Site(key)
	if !ok {
		// Removed concurrently between the two calls.
		writeError(w, http.StatusConflict, "Website was removed while being added")
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, h.view(site))
}

// Delete stops tracking a site. Sites used today or running a session are
// kept and reported as a conflict.
func (h *SitesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if _, ok := h.quotas.Site(key); !ok {
		writeError(w, http.StatusNotFound, "Website not found")
		return
	}

	if !h.quotas.RemoveSite(key) {
		writeError(w, http.StatusConflict, "Website has usage today or a running session and cannot be removed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Remaining returns today's remaining minutes for a site.
func (h *SitesHandler) Remaining(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	u, ok := h.quotas.Usage(key)
	if !ok {
		writeError(w, http.StatusNotFound, "Website not found")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// Export returns every site in the legacy export format.
func (h *SitesHandler) Export(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, usage.Export(h.quotas.ListSites()))
}
