package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Gateway metrics
	GatewayDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebudget_gateway_decisions_total",
			Help: "Total enforcement decisions made by the gateway",
		},
		[]string{"source", "action"},
	)

	PolicyEvalErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitebudget_policy_eval_errors_total",
			Help: "Policy evaluations that failed and fell back to the quota decision",
		},
	)

	// DNS metrics
	DNSQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebudget_dns_queries_total",
			Help: "Total DNS queries received",
		},
		[]string{"action", "query_type"},
	)

	DNSQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitebudget_dns_query_duration_seconds",
			Help:    "DNS query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"action"},
	)

	DNSUpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebudget_dns_upstream_errors_total",
			Help: "DNS upstream query errors",
		},
		[]string{"upstream"},
	)

	// Session metrics
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebudget_sessions_started_total",
			Help: "Total sessions granted",
		},
		[]string{"site"},
	)

	SessionsRefused = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebudget_sessions_refused_total",
			Help: "Total session requests refused",
		},
		[]string{"reason"},
	)

	MinutesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebudget_minutes_consumed_total",
			Help: "Total settled session minutes",
		},
		[]string{"site"},
	)

	ActiveSession = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitebudget_active_session",
			Help: "1 while a session is running, otherwise 0",
		},
	)

	// Quota metrics
	SitesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitebudget_sites_tracked",
			Help: "Number of tracked sites",
		},
	)

	ResetSweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitebudget_reset_sweeps_total",
			Help: "Reset sweeps that rolled over at least one site",
		},
	)

	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebudget_store_errors_total",
			Help: "Quota store load/save failures",
		},
		[]string{"op"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		GatewayDecisions,
		PolicyEvalErrors,
		DNSQueriesTotal,
		DNSQueryDuration,
		DNSUpstreamErrors,
		SessionsStarted,
		SessionsRefused,
		MinutesConsumed,
		ActiveSession,
		SitesTracked,
		ResetSweeps,
		StoreErrors,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: Handler(),
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the /metrics and /health routes
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
