package usage

import (
	"time"

	"github.com/rs/zerolog"
)

// SessionTimer settles the running session once its requested minutes have
// elapsed. The tracker itself never expires sessions.
type SessionTimer struct {
	tracker  *Tracker
	interval time.Duration
	logger   zerolog.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSessionTimer creates a timer that checks every interval against the
// tracker's clock.
func NewSessionTimer(tracker *Tracker, interval time.Duration, logger zerolog.Logger) *SessionTimer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &SessionTimer{
		tracker:  tracker,
		interval: interval,
		logger:   logger.With().Str("component", "session-timer").Logger(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins polling in the background.
func (st *SessionTimer) Start() {
	go st.run()
	st.logger.Info().Dur("interval", st.interval).Msg("Session timer started")
}

// Stop stops polling and waits for the loop to exit.
func (st *SessionTimer) Stop() {
	close(st.stopChan)
	<-st.doneChan
	st.logger.Info().Msg("Session timer stopped")
}

func (st *SessionTimer) run() {
	defer close(st.doneChan)

	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st.check()
		case <-st.stopChan:
			return
		}
	}
}

// check ends the running session if it has expired. It reports whether a
// session was settled.
func (st *SessionTimer) check() bool {
	site, _ := st.tracker.ActiveSite()
	if !st.tracker.EndExpiredSession() {
		return false
	}
	st.logger.Info().Str("site", site).Msg("Session time is up")
	return true
}
