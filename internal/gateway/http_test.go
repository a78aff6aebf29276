package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goodtune/sitebudget/internal/policy"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *mux.Router {
	r := mux.NewRouter()
	NewHTTPHandler(NewDecider(newFakeQuotas(), nil, nil, zerolog.Nop())).Register(r)
	return r
}

func TestCheckEndpoint(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		url    string
		action policy.Action
		site   string
	}{
		{url: "https://www.youtube.com/watch?v=1", action: policy.ActionBlock, site: "youtube.com"},
		{url: "https://reddit.com/r/golang", action: policy.ActionAllow, site: "reddit.com"},
		{url: "https://golang.org", action: policy.ActionAllow},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/check?url="+tt.url, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var d Decision
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.site, d.Site)
		})
	}
}

func TestCheckEndpointRequiresURL(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/check", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlockedPage(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blocked?site=youtube.com", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "daily limit for youtube.com"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blocked?site=reddit.com", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "20 minutes remaining")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blocked", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
