package usage

import (
	"time"

	"github.com/rs/zerolog"
)

// ResetScheduler runs the reset sweep at each local midnight so a resident
// process rolls over without waiting for the next session request.
type ResetScheduler struct {
	tracker  *Tracker
	logger   zerolog.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewResetScheduler creates a new reset scheduler
func NewResetScheduler(tracker *Tracker, logger zerolog.Logger) *ResetScheduler {
	return &ResetScheduler{
		tracker:  tracker,
		logger:   logger.With().Str("component", "reset-scheduler").Logger(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the reset scheduler
func (rs *ResetScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("timezone", rs.tracker.Location().String()).
		Msg("Daily reset scheduler started")
}

// Stop stops the reset scheduler and waits for it to exit
func (rs *ResetScheduler) Stop() {
	close(rs.stopChan)
	<-rs.doneChan
	rs.logger.Info().Msg("Daily reset scheduler stopped")
}

// run is the main scheduler loop
func (rs *ResetScheduler) run() {
	defer close(rs.doneChan)

	for {
		now := rs.tracker.clock.Now()
		nextReset := rs.calculateNextReset(now)
		waitDuration := nextReset.Sub(now)

		rs.logger.Debug().
			Time("next_reset", nextReset).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily reset")

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			rs.performReset()
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}

// calculateNextReset returns the start of the day after now in the
// tracker's location.
func (rs *ResetScheduler) calculateNextReset(now time.Time) time.Time {
	loc := rs.tracker.Location()
	return DateOf(now.In(loc)).AddDays(1).In(loc)
}

// performReset sweeps for the current day
func (rs *ResetScheduler) performReset() int {
	today := DateOf(rs.tracker.clock.Now().In(rs.tracker.Location()))
	count := rs.tracker.ResetSweep(today)
	rs.logger.Info().
		Str("date", today.String()).
		Int("sites_reset", count).
		Msg("Daily reset complete")
	return count
}
