package usage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/sitebudget/internal/metrics"
	"github.com/goodtune/sitebudget/internal/storage"
	"github.com/rs/zerolog"
)

// maxCommitAttempts bounds reload-and-replay cycles on versioned conflicts.
const maxCommitAttempts = 3

// Config holds tracker configuration
type Config struct {
	Clock              Clock
	Location           *time.Location
	NormalizeCacheSize int
}

// Tracker owns the quota collection and the session slot. Writers serialize
// on mu and persist the whole collection after every change. Readers on the
// enforcement path use the published snapshot and never lock.
type Tracker struct {
	store      *Store
	clock      Clock
	location   *time.Location
	normalizer *Normalizer
	logger     zerolog.Logger

	mu      sync.Mutex
	sites   []SiteQuota
	index   map[string]int
	session SessionState

	snapshot atomic.Pointer[quotaSnapshot]
}

// quotaSnapshot is an immutable view of the collection for lock-free reads.
type quotaSnapshot struct {
	sites      map[string]quotaView
	activeSite string
}

type quotaView struct {
	limit     int
	used      int
	lastReset Date
}

// NewTracker loads the collection, abandons sessions left unsettled by a
// previous process and runs the reset sweep for today.
func NewTracker(store *Store, config Config, logger zerolog.Logger) (*Tracker, error) {
	if config.Clock == nil {
		config.Clock = RealClock{}
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	normalizer, err := NewNormalizer(config.NormalizeCacheSize)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		store:      store,
		clock:      config.Clock,
		location:   config.Location,
		normalizer: normalizer,
		logger:     logger.With().Str("component", "usage-tracker").Logger(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.setSites(store.Load(context.Background()))

	if abandoned := t.abandonPendingSessions(); abandoned > 0 {
		t.logger.Warn().Int("sessions", abandoned).Msg("Abandoned sessions left unsettled by a previous run")
		t.persist()
	}
	t.sweepLocked(t.today())
	t.publish()

	t.logger.Info().Int("sites", len(t.sites)).Msg("Usage tracker initialized")
	return t, nil
}

// Normalize maps a URL or name to its site key.
func (t *Tracker) Normalize(input string) string {
	return t.normalizer.Normalize(input)
}

// Today returns the current calendar day in the tracker's location.
func (t *Tracker) Today() Date {
	return t.today()
}

// Location returns the timezone that defines calendar days.
func (t *Tracker) Location() *time.Location {
	return t.location
}

// AddSite starts tracking the site named by rawURL. An already tracked site
// keeps its original limit and its key is returned unchanged.
func (t *Tracker) AddSite(rawURL string, limitMinutes int) (string, error) {
	key := t.normalizer.Normalize(rawURL)
	if isBlank(key) {
		return "", ErrInvalidSite
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.index[key]; ok {
		t.logger.Debug().Str("site", key).Int("ignored_limit", limitMinutes).Msg("Site already tracked, limit unchanged")
		return key, nil
	}
	if limitMinutes <= 0 {
		return "", ErrInvalidLimit
	}

	today := t.today()
	t.commit(func() bool {
		if _, ok := t.index[key]; ok {
			return false
		}
		t.sites = append(t.sites, SiteQuota{
			SiteKey:           key,
			DailyLimitMinutes: limitMinutes,
			LastResetDate:     today,
			History:           []HistoryEntry{},
		})
		t.index[key] = len(t.sites) - 1
		return true
	})

	t.logger.Info().Str("site", key).Int("limit_minutes", limitMinutes).Msg("Site added")
	return key, nil
}

// RemoveSite deletes a site that has no usage today and is not running a
// session. It reports whether the site was removed.
func (t *Tracker) RemoveSite(key string) bool {
	key = t.normalizer.Normalize(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked(t.today())

	if active, ok := t.session.Active(); ok && active.SiteKey == key {
		t.logger.Info().Str("site", key).Msg("Refusing to remove site with a running session")
		return false
	}

	removed := t.commit(func() bool {
		i, ok := t.index[key]
		if !ok || t.sites[i].UsedMinutes > 0 {
			return false
		}
		t.sites = append(t.sites[:i], t.sites[i+1:]...)
		t.reindex()
		return true
	})

	if removed {
		t.logger.Info().Str("site", key).Msg("Site removed")
	} else {
		t.logger.Info().Str("site", key).Msg("Site not removed: unknown or used today")
	}
	return removed
}

// Remaining returns the minutes left today for key, or 0 for an unknown key.
func (t *Tracker) Remaining(key string) int {
	u, ok := t.Usage(key)
	if !ok {
		return 0
	}
	return u.RemainingMinutes
}

// IsOverLimit reports whether a tracked site has no budget left today.
// Untracked sites are never over limit. Safe for concurrent use without
// blocking writers.
func (t *Tracker) IsOverLimit(key string) bool {
	u, ok := t.Usage(key)
	return ok && u.RemainingMinutes == 0
}

// Usage returns today's figures for key from the published snapshot. A
// record whose last reset predates today reports an untouched budget.
func (t *Tracker) Usage(key string) (Usage, bool) {
	key = t.normalizer.Normalize(key)
	snap := t.snapshot.Load()
	view, ok := snap.sites[key]
	if !ok {
		return Usage{}, false
	}
	used := view.used
	if view.lastReset != t.today() {
		used = 0
	}
	return Usage{
		SiteKey:           key,
		DailyLimitMinutes: view.limit,
		UsedMinutes:       used,
		RemainingMinutes:  max(0, view.limit-used),
		SessionActive:     snap.activeSite == key,
	}, true
}

// ActiveSite returns the key of the site running a session, if any.
func (t *Tracker) ActiveSite() (string, bool) {
	snap := t.snapshot.Load()
	return snap.activeSite, snap.activeSite != ""
}

// ListSites returns a deep copy of every tracked site.
func (t *Tracker) ListSites() []SiteQuota {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SiteQuota, len(t.sites))
	for i, s := range t.sites {
		out[i] = s.clone()
	}
	return out
}

// Site returns a copy of one site's record.
func (t *Tracker) Site(key string) (SiteQuota, bool) {
	key = t.normalizer.Normalize(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[key]
	if !ok {
		return SiteQuota{}, false
	}
	return t.sites[i].clone(), true
}

// ResetSweep rolls every site whose last reset is not today over to today.
// It returns the number of sites reset; a second call for the same day is a
// no-op.
func (t *Tracker) ResetSweep(today Date) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked(today)
}

func (t *Tracker) sweepLocked(today Date) int {
	var count int
	t.commit(func() bool {
		count = 0
		for i := range t.sites {
			site := &t.sites[i]
			if site.LastResetDate == today {
				continue
			}
			site.UsedMinutes = 0
			site.LastResetDate = today
			site.History = append(site.History, NewResetEntry(today))
			count++
		}
		return count > 0
	})

	if count > 0 {
		metrics.ResetSweeps.Inc()
		t.logger.Info().Str("date", today.String()).Int("sites", count).Msg("Daily reset applied")
	}
	return count
}

// abandonPendingSessions marks every unsettled session entry as abandoned.
// Abandoned entries were never charged.
func (t *Tracker) abandonPendingSessions() int {
	var count int
	for i := range t.sites {
		for j := range t.sites[i].History {
			entry := &t.sites[i].History[j]
			if entry.Pending() {
				entry.Session.Abandoned = true
				count++
			}
		}
	}
	return count
}

// commit applies mutate and persists the collection. A versioned write that
// loses a race reloads the document and replays mutate against it. mutate
// returning false means nothing changed and nothing is written.
func (t *Tracker) commit(mutate func() bool) bool {
	for attempt := 1; ; attempt++ {
		if !mutate() {
			if attempt > 1 {
				t.publish()
			}
			return false
		}

		err := t.store.Save(context.Background(), t.sites)
		if !errors.Is(err, storage.ErrRevisionConflict) {
			t.publish()
			return true
		}

		if attempt == maxCommitAttempts {
			t.logger.Error().Int("attempts", attempt).Msg("Giving up on conflicting quota writes, keeping in-memory state")
			metrics.StoreErrors.WithLabelValues("conflict").Inc()
			t.publish()
			return true
		}

		t.logger.Debug().Int("attempt", attempt).Msg("Reloading quota document after revision conflict")
		t.setSites(t.store.Load(context.Background()))
		t.relocateSession()
	}
}

// persist writes the collection without a mutation, used after recovery.
func (t *Tracker) persist() {
	t.commit(func() bool { return true })
}

func (t *Tracker) setSites(sites []SiteQuota) {
	t.sites = sites
	t.reindex()
}

func (t *Tracker) reindex() {
	t.index = make(map[string]int, len(t.sites))
	for i, s := range t.sites {
		t.index[s.SiteKey] = i
	}
}

// relocateSession points the active session back at its entry after the
// collection was replaced.
func (t *Tracker) relocateSession() {
	active, ok := t.session.Active()
	if !ok {
		return
	}
	if _, idx := t.findEntry(active); idx >= 0 {
		active.HistoryIndex = idx
		t.session.begin(active)
	}
}

// findEntry resolves the active session's history entry, preferring the
// recorded index and falling back to an ID search.
func (t *Tracker) findEntry(active ActiveSession) (*SiteQuota, int) {
	i, ok := t.index[active.SiteKey]
	if !ok {
		return nil, -1
	}
	site := &t.sites[i]
	matches := func(e HistoryEntry) bool {
		return e.Kind == KindSession && e.Session != nil && e.Session.ID == active.EntryID
	}
	if active.HistoryIndex >= 0 && active.HistoryIndex < len(site.History) && matches(site.History[active.HistoryIndex]) {
		return site, active.HistoryIndex
	}
	for j := len(site.History) - 1; j >= 0; j-- {
		if matches(site.History[j]) {
			return site, j
		}
	}
	return site, -1
}

// publish swaps in a fresh snapshot for lock-free readers.
func (t *Tracker) publish() {
	snap := &quotaSnapshot{sites: make(map[string]quotaView, len(t.sites))}
	for _, s := range t.sites {
		snap.sites[s.SiteKey] = quotaView{
			limit:     s.DailyLimitMinutes,
			used:      s.UsedMinutes,
			lastReset: s.LastResetDate,
		}
	}
	if active, ok := t.session.Active(); ok {
		snap.activeSite = active.SiteKey
		metrics.ActiveSession.Set(1)
	} else {
		metrics.ActiveSession.Set(0)
	}
	t.snapshot.Store(snap)
	metrics.SitesTracked.Set(float64(len(t.sites)))
}

func (t *Tracker) today() Date {
	return DateOf(t.clock.Now().In(t.location))
}
