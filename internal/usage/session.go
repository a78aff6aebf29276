package usage

import (
	"fmt"
	"time"

	"github.com/goodtune/sitebudget/internal/metrics"
	"github.com/google/uuid"
)

// SessionState is the single session slot. A nil active pointer is Idle;
// anything else is Running.
type SessionState struct {
	active *ActiveSession
}

// Active returns the running session, if any.
func (s *SessionState) Active() (ActiveSession, bool) {
	if s.active == nil {
		return ActiveSession{}, false
	}
	return *s.active, true
}

// Running reports whether a session is in progress.
func (s *SessionState) Running() bool {
	return s.active != nil
}

func (s *SessionState) begin(a ActiveSession) {
	s.active = &a
}

func (s *SessionState) end() {
	s.active = nil
}

// StartSession grants a session of requestedMinutes on the site named by
// rawURL, or explains why not. Refusals leave all state untouched.
func (t *Tracker) StartSession(rawURL string, requestedMinutes int) (Grant, *Refusal) {
	key := t.normalizer.Normalize(rawURL)

	t.mu.Lock()
	defer t.mu.Unlock()

	if active, ok := t.session.Active(); ok {
		return Grant{}, t.refuse(key, &Refusal{
			Reason:  RefusalSessionActive,
			Message: fmt.Sprintf("A session for %s is already running. End it before starting another.", active.SiteKey),
		})
	}

	t.sweepLocked(t.today())

	now := t.clock.Now()
	entryID := uuid.NewString()

	var (
		refusal   *Refusal
		active    ActiveSession
		remaining int
	)
	started := t.commit(func() bool {
		// A replay after a conflict starts from Idle again.
		t.session.end()
		i, ok := t.index[key]
		if !ok {
			refusal = &Refusal{Reason: RefusalUnknownSite, Message: "Website not found"}
			return false
		}
		site := &t.sites[i]
		remaining = site.RemainingMinutes()

		switch {
		case remaining == 0:
			refusal = &Refusal{
				Reason:  RefusalLimitReached,
				Message: fmt.Sprintf("You've reached your daily limit for %s. Try again tomorrow!", key),
			}
		case requestedMinutes <= 0:
			refusal = &Refusal{Reason: RefusalInvalidMinutes, Message: "Please enter a valid number of minutes."}
		case requestedMinutes > remaining:
			refusal = &Refusal{
				Reason:  RefusalInsufficientBudget,
				Message: fmt.Sprintf("You only have %d minutes remaining today.", remaining),
			}
		}
		if refusal != nil {
			refusal.Remaining = remaining
			return false
		}

		site.History = append(site.History, NewSessionEntry(entryID, now, requestedMinutes))
		active = ActiveSession{SiteKey: key, HistoryIndex: len(site.History) - 1, EntryID: entryID}
		// Set before commit persists so the published snapshot sees it.
		t.session.begin(active)
		return true
	})
	if !started {
		return Grant{}, t.refuse(key, refusal)
	}

	after := remaining - requestedMinutes
	metrics.SessionsStarted.WithLabelValues(key).Inc()
	t.logger.Info().
		Str("site", key).
		Str("session_id", entryID).
		Int("requested_minutes", requestedMinutes).
		Int("remaining_after", after).
		Msg("Session started")

	return Grant{
		SiteKey:          key,
		DestinationURL:   "https://" + key,
		RemainingAfter:   after,
		RequestedMinutes: requestedMinutes,
		StartTime:        now,
		ExpiresAt:        now.Add(time.Duration(requestedMinutes) * time.Minute),
		Message:          fmt.Sprintf("Session started for %s. You have %d minutes remaining after this session.", key, after),
	}, nil
}

func (t *Tracker) refuse(key string, r *Refusal) *Refusal {
	metrics.SessionsRefused.WithLabelValues(string(r.Reason)).Inc()
	t.logger.Info().Str("site", key).Str("reason", string(r.Reason)).Msg("Session refused")
	return r
}

// EndSession settles the running session, charging elapsed wall-clock
// minutes rounded up and capped at the requested minutes. It returns false
// when no session is running.
func (t *Tracker) EndSession() bool {
	return t.endSession(nil)
}

// EndSessionWithMinutes settles the running session with an explicit charge,
// clamped to [0, requested].
func (t *Tracker) EndSessionWithMinutes(actualMinutes int) bool {
	return t.endSession(&actualMinutes)
}

func (t *Tracker) endSession(override *int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endSessionLocked(override)
}

// EndExpiredSession settles the running session only if its requested
// minutes have fully elapsed. It reports whether a session was settled.
func (t *Tracker) EndExpiredSession() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, ok := t.session.Active()
	if !ok {
		return false
	}
	site, idx := t.findEntry(active)
	if idx >= 0 {
		record := site.History[idx].Session
		expires := record.StartTime.Add(time.Duration(record.RequestedMinutes) * time.Minute)
		if t.clock.Now().Before(expires) {
			return false
		}
	}
	return t.endSessionLocked(nil)
}

func (t *Tracker) endSessionLocked(override *int) bool {
	active, ok := t.session.Active()
	if !ok {
		return false
	}
	now := t.clock.Now()

	var charged int
	settled := t.commit(func() bool {
		site, idx := t.findEntry(active)
		if idx < 0 {
			return false
		}
		record := site.History[idx].Session
		charged = chargeMinutes(record, now, override)
		record.ActualMinutes = charged
		record.Settled = true
		site.UsedMinutes = min(site.UsedMinutes+charged, site.DailyLimitMinutes)
		t.session.end()
		return true
	})

	if !settled {
		// The entry vanished from the stored document; nothing left to charge.
		t.session.end()
		t.publish()
		t.logger.Warn().Str("site", active.SiteKey).Str("session_id", active.EntryID).Msg("Session entry missing at settlement, nothing charged")
		return true
	}

	metrics.MinutesConsumed.WithLabelValues(active.SiteKey).Add(float64(charged))
	t.logger.Info().
		Str("site", active.SiteKey).
		Str("session_id", active.EntryID).
		Int("actual_minutes", charged).
		Msg("Session settled")
	return true
}

// Active returns the running session, if any.
func (t *Tracker) Active() (ActiveSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.Active()
}

// ActiveGrant describes the running session the way StartSession did.
func (t *Tracker) ActiveGrant() (Grant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, ok := t.session.Active()
	if !ok {
		return Grant{}, false
	}
	site, idx := t.findEntry(active)
	if idx < 0 {
		return Grant{}, false
	}
	record := site.History[idx].Session
	after := site.RemainingMinutes() - record.RequestedMinutes
	return Grant{
		SiteKey:          active.SiteKey,
		DestinationURL:   "https://" + active.SiteKey,
		RemainingAfter:   max(0, after),
		RequestedMinutes: record.RequestedMinutes,
		StartTime:        record.StartTime,
		ExpiresAt:        record.StartTime.Add(time.Duration(record.RequestedMinutes) * time.Minute),
		Message:          fmt.Sprintf("Session running for %s.", active.SiteKey),
	}, true
}

// chargeMinutes computes the minutes to settle a session for.
func chargeMinutes(record *SessionRecord, now time.Time, override *int) int {
	if override != nil {
		return min(max(*override, 0), record.RequestedMinutes)
	}
	elapsed := now.Sub(record.StartTime)
	if elapsed <= 0 {
		return 0
	}
	minutes := int((elapsed + time.Minute - 1) / time.Minute)
	return min(minutes, record.RequestedMinutes)
}
