package gateway

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
)

// HTTPHandler exposes the decider to browser hooks and renders the block page.
type HTTPHandler struct {
	decider *Decider
}

// NewHTTPHandler creates the HTTP side of the gateway.
func NewHTTPHandler(decider *Decider) *HTTPHandler {
	return &HTTPHandler{decider: decider}
}

// Register mounts /check and /blocked on r.
func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/check", h.Check).Methods(http.MethodGet)
	r.HandleFunc("/blocked", h.Blocked).Methods(http.MethodGet)
}

// Check handles GET /check?url=... and returns the decision as JSON.
func (h *HTTPHandler) Check(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "Bad Request",
			"message": "url query parameter is required",
		})
		return
	}

	decision := h.decider.Decide(r.Context(), target)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(decision)
}

var blockedPage = template.Must(template.New("blocked").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Daily limit reached</title>
<style>
body { font-family: sans-serif; max-width: 36em; margin: 4em auto; color: #222; }
h1 { color: #b00020; }
.meta { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<h1>Time's up for {{.Site}}</h1>
{{if .Blocked}}<p>You've reached your daily limit for {{.Site}}. Try again tomorrow!</p>
<p class="meta">{{.Reason}}</p>
{{else}}<p>{{.Site}} is not blocked right now ({{.Remaining}} minutes remaining today).</p>
{{end}}</body>
</html>
`))

// Blocked handles GET /blocked?site=... and renders the block page.
func (h *HTTPHandler) Blocked(w http.ResponseWriter, r *http.Request) {
	site := r.URL.Query().Get("site")
	if site == "" {
		http.Error(w, "site query parameter is required", http.StatusBadRequest)
		return
	}

	decision := h.decider.Decide(r.Context(), site)
	name := decision.Site
	if name == "" {
		name = decision.Host
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if decision.Blocked() {
		w.WriteHeader(http.StatusForbidden)
	}
	_ = blockedPage.Execute(w, struct {
		Site      string
		Blocked   bool
		Reason    string
		Remaining int
	}{
		Site:      name,
		Blocked:   decision.Blocked(),
		Reason:    decision.Reason,
		Remaining: decision.Remaining,
	})
}
