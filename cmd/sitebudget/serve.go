package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/sitebudget/internal/api"
	"github.com/goodtune/sitebudget/internal/config"
	"github.com/goodtune/sitebudget/internal/gateway"
	"github.com/goodtune/sitebudget/internal/metrics"
	"github.com/goodtune/sitebudget/internal/policy"
	"github.com/goodtune/sitebudget/internal/systemd"
	"github.com/goodtune/sitebudget/internal/usage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sitebudget server",
	Long:  `Start the quota engine with its HTTP API, the enforcement gateway (HTTP and optional DNS), and the metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting sitebudget")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage and the quota engine
	tracker, store, err := openTracker(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Bool("versioned", cfg.Storage.Versioned).
		Int("sites", len(tracker.ListSites())).
		Str("timezone", tracker.Location().String()).
		Msg("Quota engine initialized")

	// Reset sweep at every local midnight
	resetScheduler := usage.NewResetScheduler(tracker, logger)
	resetScheduler.Start()
	defer resetScheduler.Stop()

	// Settle sessions once their requested minutes elapse
	var sessionTimer *usage.SessionTimer
	if cfg.Usage.AutoEndSessions {
		sessionTimer = usage.NewSessionTimer(tracker, parseDuration(cfg.Usage.TimerInterval, 15*time.Second), logger)
		sessionTimer.Start()
		defer sessionTimer.Stop()
	}

	// Initialize Policy Engine
	policyEngine, err := policy.NewEngine(cfg.Policy.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Policy Engine: %w", err)
	}

	decider := gateway.NewDecider(tracker, policyEngine, nil, logger)

	// Initialize DNS gateway (optional)
	var dnsServer *gateway.DNSServer
	if cfg.Server.DNSEnabled {
		dnsConfig := gateway.DNSConfig{
			ListenAddr:   fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.DNSPort),
			UpstreamDNS:  cfg.DNS.UpstreamServers,
			BlockTTL:     cfg.DNS.BlockTTL,
			BypassTTLCap: cfg.DNS.BypassTTLCap,
			EnableTCP:    cfg.Server.DNSEnableTCP,
			EnableUDP:    cfg.Server.DNSEnableUDP,
			Timeout:      parseDuration(cfg.DNS.UpstreamTimeout, 5*time.Second),
		}

		dnsServer, err = gateway.NewDNSServer(dnsConfig, decider, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize DNS Server: %w", err)
		}

		// Use systemd socket-activated listeners if available
		if sdListeners.DNSUdp != nil {
			dnsServer.SetPacketConn(sdListeners.DNSUdp)
		}
		if sdListeners.DNSTcp != nil {
			dnsServer.SetListener(sdListeners.DNSTcp)
		}

		if err := dnsServer.Start(); err != nil {
			return fmt.Errorf("failed to start DNS Server: %w", err)
		}
		defer func() {
			if err := dnsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping DNS Server")
			}
		}()

		logger.Info().
			Str("addr", dnsConfig.ListenAddr).
			Msg("DNS Server started")
	}

	// Initialize API server with the HTTP gateway routes
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	router := api.NewRouter(tracker, gateway.NewHTTPHandler(decider), logger)
	apiServer := api.NewServer(httpAddr, router, logger)
	if sdListeners.HTTP != nil {
		apiServer.SetListener(sdListeners.HTTP)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Error stopping API Server")
		}
	}()

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || sdListeners.Metrics != nil {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping Metrics Server")
			}
		}()
	}

	logger.Info().Msg("sitebudget startup complete")
	logger.Info().Msgf("HTTP API: http://%s/api/v1", httpAddr)
	if dnsServer != nil {
		logger.Info().Msgf("DNS Server: %s:%d", cfg.Server.BindAddress, cfg.Server.DNSPort)
	}
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	}

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else if systemd.IsSystemdService() {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	var watchdog <-chan time.Time
	if interval := systemd.WatchdogInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		watchdog = ticker.C
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
loop:
	for {
		select {
		case <-watchdog:
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}

		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				logger.Info().Msg("SIGHUP received, reloading policies...")
				if err := policyEngine.Reload(); err != nil {
					logger.Error().Err(err).Msg("Failed to reload policies, keeping previous policy")
				} else {
					logger.Info().Msg("Policies reloaded successfully")
				}

			case os.Interrupt, syscall.SIGTERM:
				logger.Info().Msg("Shutdown signal received, gracefully stopping...")
				break loop
			}
		}
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Servers and workers stop in reverse start order via the defers above.
	logger.Info().Msg("sitebudget stopping")

	return nil
}
