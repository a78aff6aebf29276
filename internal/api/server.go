package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/sitebudget/internal/gateway"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// NewRouter builds the HTTP routes: the management API under /api/v1 and,
// when gw is non-nil, the gateway's /check and /blocked endpoints.
func NewRouter(quotas Quotas, gw *gateway.HTTPHandler, logger zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if gw != nil {
		gw.Register(router)
	}

	sites := NewSitesHandler(quotas, logger)
	sessions := NewSessionsHandler(quotas, logger)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/sites", sites.List).Methods(http.MethodGet)
	v1.HandleFunc("/sites", sites.Create).Methods(http.MethodPost)
	v1.HandleFunc("/sites/{key}", sites.Get).Methods(http.MethodGet)
	v1.HandleFunc("/sites/{key}", sites.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/sites/{key}/remaining", sites.Remaining).Methods(http.MethodGet)

	v1.HandleFunc("/sessions", sessions.Start).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/active", sessions.Active).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/active/end", sessions.End).Methods(http.MethodPost)

	v1.HandleFunc("/export", sites.Export).Methods(http.MethodGet)

	return router
}

// Server serves the API router.
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates an API server listening on addr.
func NewServer(addr string, handler http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start serves in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated HTTP listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}
