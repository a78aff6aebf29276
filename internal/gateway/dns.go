package gateway

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/goodtune/sitebudget/internal/metrics"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// DNSConfig holds DNS server configuration
type DNSConfig struct {
	ListenAddr   string
	UpstreamDNS  []string
	BlockTTL     uint32
	BypassTTLCap uint32
	EnableTCP    bool
	EnableUDP    bool
	Timeout      time.Duration
}

// DNSServer sinkholes names whose site is over budget and forwards the rest.
type DNSServer struct {
	decider      *Decider
	upstreamDNS  []string
	blockTTL     uint32
	bypassTTLCap uint32
	logger       zerolog.Logger

	// DNS client for upstream queries
	client *dns.Client

	udpServer *dns.Server
	tcpServer *dns.Server
}

// NewDNSServer creates a new DNS server
func NewDNSServer(config DNSConfig, decider *Decider, logger zerolog.Logger) (*DNSServer, error) {
	if len(config.UpstreamDNS) == 0 {
		return nil, fmt.Errorf("at least one upstream DNS server is required")
	}
	if !config.EnableUDP && !config.EnableTCP {
		return nil, fmt.Errorf("DNS server needs UDP or TCP enabled")
	}

	s := &DNSServer{
		decider:      decider,
		upstreamDNS:  config.UpstreamDNS,
		blockTTL:     config.BlockTTL,
		bypassTTLCap: config.BypassTTLCap,
		logger:       logger.With().Str("component", "dns").Logger(),
		client: &dns.Client{
			Timeout: config.Timeout,
		},
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleDNSRequest)

	if config.EnableUDP {
		s.udpServer = &dns.Server{Addr: config.ListenAddr, Net: "udp", Handler: mux}
	}
	if config.EnableTCP {
		s.tcpServer = &dns.Server{Addr: config.ListenAddr, Net: "tcp", Handler: mux}
	}

	return s, nil
}

// SetPacketConn sets a pre-created UDP socket for systemd socket activation
func (s *DNSServer) SetPacketConn(pc net.PacketConn) {
	if s.udpServer != nil {
		s.udpServer.PacketConn = pc
	}
}

// SetListener sets a pre-created TCP listener for systemd socket activation
func (s *DNSServer) SetListener(ln net.Listener) {
	if s.tcpServer != nil {
		s.tcpServer.Listener = ln
	}
}

// Start starts the DNS servers and returns once they are accepting queries
func (s *DNSServer) Start() error {
	servers := make([]*dns.Server, 0, 2)
	if s.udpServer != nil {
		servers = append(servers, s.udpServer)
	}
	if s.tcpServer != nil {
		servers = append(servers, s.tcpServer)
	}

	errChan := make(chan error, len(servers))
	started := make(chan struct{}, len(servers))

	for _, srv := range servers {
		srv.NotifyStartedFunc = func() { started <- struct{}{} }
		go func(srv *dns.Server) {
			s.logger.Info().Str("addr", srv.Addr).Str("net", srv.Net).Msg("Starting DNS server")
			var err error
			if srv.PacketConn != nil || srv.Listener != nil {
				err = srv.ActivateAndServe()
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil {
				errChan <- fmt.Errorf("%s server error: %w", srv.Net, err)
			}
		}(srv)
	}

	for range servers {
		select {
		case err := <-errChan:
			return err
		case <-started:
		case <-time.After(2 * time.Second):
			return fmt.Errorf("DNS server did not start in time")
		}
	}
	return nil
}

// Stop stops the DNS servers
func (s *DNSServer) Stop() error {
	var errs []error

	if s.udpServer != nil {
		if err := s.udpServer.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("UDP shutdown error: %w", err))
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("TCP shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleDNSRequest answers blocked names locally and forwards everything else
func (s *DNSServer) handleDNSRequest(w dns.ResponseWriter, r *dns.Msg) {
	startTime := time.Now()

	if len(r.Question) == 0 {
		msg := new(dns.Msg)
		msg.SetRcode(r, dns.RcodeFormatError)
		_ = w.WriteMsg(msg)
		return
	}

	question := r.Question[0]
	domain := strings.ToLower(strings.TrimSuffix(question.Name, "."))
	qtype := dns.TypeToString[question.Qtype]

	decision := s.decider.Decide(context.Background(), domain)

	var msg *dns.Msg
	action := "FORWARD"
	if decision.Blocked() {
		action = "BLOCK"
		msg = new(dns.Msg)
		msg.SetReply(r)
		msg.Authoritative = true
		if answer := s.createBlockResponse(&question); answer != nil {
			msg.Answer = append(msg.Answer, answer)
		}
		s.logger.Debug().
			Str("domain", domain).
			Str("site", decision.Site).
			Str("reason", decision.Reason).
			Msg("DNS query sinkholed")
	} else {
		resp, upstream, err := s.forwardToUpstream(r)
		if err != nil {
			action = "SERVFAIL"
			s.logger.Warn().Err(err).Str("domain", domain).Msg("Upstream DNS query failed")
			msg = new(dns.Msg)
			msg.SetRcode(r, dns.RcodeServerFailure)
		} else {
			msg = resp
			msg.Id = r.Id
			for _, ans := range msg.Answer {
				if s.bypassTTLCap > 0 && ans.Header().Ttl > s.bypassTTLCap {
					ans.Header().Ttl = s.bypassTTLCap
				}
			}
			s.logger.Debug().Str("domain", domain).Str("upstream", upstream).Msg("DNS query forwarded")
		}
	}

	metrics.DNSQueriesTotal.WithLabelValues(action, qtype).Inc()
	metrics.DNSQueryDuration.WithLabelValues(action).Observe(time.Since(startTime).Seconds())

	if err := w.WriteMsg(msg); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write DNS response")
	}
}

// createBlockResponse returns the unspecified address for A and AAAA
// queries; other types get an empty answer.
func (s *DNSServer) createBlockResponse(q *dns.Question) dns.RR {
	hdr := dns.RR_Header{
		Name:   q.Name,
		Rrtype: q.Qtype,
		Class:  dns.ClassINET,
		Ttl:    s.blockTTL,
	}
	switch q.Qtype {
	case dns.TypeA:
		return &dns.A{Hdr: hdr, A: net.IPv4zero.To4()}
	case dns.TypeAAAA:
		return &dns.AAAA{Hdr: hdr, AAAA: net.IPv6unspecified}
	default:
		return nil
	}
}

// forwardToUpstream forwards a DNS query to upstream DNS servers
func (s *DNSServer) forwardToUpstream(r *dns.Msg) (*dns.Msg, string, error) {
	for _, upstream := range s.upstreamDNS {
		resp, _, err := s.client.Exchange(r, upstream)
		if err == nil && resp != nil {
			return resp, upstream, nil
		}
		s.logger.Warn().
			Err(err).
			Str("upstream", upstream).
			Msg("Upstream DNS query failed, trying next")
		metrics.DNSUpstreamErrors.WithLabelValues(upstream).Inc()
	}
	return nil, "", fmt.Errorf("all upstream DNS servers failed")
}
