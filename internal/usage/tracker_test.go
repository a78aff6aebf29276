package usage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/sitebudget/internal/storage/file"
	"github.com/rs/zerolog"
)

func TestAddSiteKeepsOriginalLimit(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{})

	first := mustAddSite(t, tracker, "https://Example.com/page", 30)
	second := mustAddSite(t, tracker, "https://example.com/other", 90)

	if first != "example.com" || second != first {
		t.Fatalf("keys = %q, %q; want example.com twice", first, second)
	}
	if got := mustSite(t, tracker, first).DailyLimitMinutes; got != 30 {
		t.Errorf("DailyLimitMinutes = %d, want 30", got)
	}
	if n := len(tracker.ListSites()); n != 1 {
		t.Errorf("ListSites returned %d sites, want 1", n)
	}
}

func TestAddSiteInvalidInput(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{})

	tests := []struct {
		name  string
		url   string
		limit int
		want  error
	}{
		{name: "zero limit", url: "a.com", limit: 0, want: ErrInvalidLimit},
		{name: "negative limit", url: "a.com", limit: -5, want: ErrInvalidLimit},
		{name: "empty site", url: "", limit: 10, want: ErrInvalidSite},
		{name: "blank site", url: "   ", limit: 10, want: ErrInvalidSite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracker.AddSite(tt.url, tt.limit)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddSite error = %v, want %v", err, tt.want)
			}
		})
	}

	if n := len(tracker.ListSites()); n != 0 {
		t.Errorf("invalid input created %d sites", n)
	}
}

func TestAddSitePersists(t *testing.T) {
	backend := &memoryBackend{}
	tracker, _ := newTestTracker(t, backend)

	mustAddSite(t, tracker, "news.example", 15)

	reloaded, _ := newTestTracker(t, backend)
	site := mustSite(t, reloaded, "news.example")
	if site.DailyLimitMinutes != 15 || site.UsedMinutes != 0 {
		t.Errorf("reloaded site = %+v", site)
	}
	if site.LastResetDate != DateOf(testStart()) {
		t.Errorf("LastResetDate = %v, want %v", site.LastResetDate, DateOf(testStart()))
	}
}

func TestRemoveSite(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{})

	mustAddSite(t, tracker, "unused.com", 10)
	mustAddSite(t, tracker, "used.com", 10)

	if _, refusal := tracker.StartSession("https://used.com", 5); refusal != nil {
		t.Fatalf("StartSession refused: %+v", refusal)
	}
	if tracker.RemoveSite("used.com") {
		t.Error("RemoveSite succeeded for site with a running session")
	}
	tracker.EndSessionWithMinutes(3)

	if tracker.RemoveSite("used.com") {
		t.Error("RemoveSite succeeded for site used today")
	}
	if got := mustSite(t, tracker, "used.com").UsedMinutes; got != 3 {
		t.Errorf("refused removal changed UsedMinutes to %d", got)
	}

	if !tracker.RemoveSite("UNUSED.com") {
		t.Error("RemoveSite failed for unused site")
	}
	if _, ok := tracker.Site("unused.com"); ok {
		t.Error("removed site still tracked")
	}
	if tracker.RemoveSite("never-added.com") {
		t.Error("RemoveSite succeeded for unknown site")
	}
}

func TestRemainingUnknownSite(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{})

	if got := tracker.Remaining("missing.com"); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
	if tracker.IsOverLimit("missing.com") {
		t.Error("untracked site reported over limit")
	}
}

func TestPaddedInputSharesKey(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})

	key := mustAddSite(t, tracker, "YouTube.com ", 20)
	if key != "youtube.com" {
		t.Fatalf("key = %q, want youtube.com", key)
	}
	if again := mustAddSite(t, tracker, "  https://youtube.com/watch?v=1\t", 5); again != key {
		t.Fatalf("second AddSite keyed %q, want %q", again, key)
	}
	if n := len(tracker.ListSites()); n != 1 {
		t.Fatalf("tracking %d sites, want 1", n)
	}

	for _, lookup := range []string{"youtube.com", " YouTube.com", "youtube.com\n"} {
		if _, ok := tracker.Site(lookup); !ok {
			t.Errorf("Site(%q) not found", lookup)
		}
		if got := tracker.Remaining(lookup); got != 20 {
			t.Errorf("Remaining(%q) = %d, want 20", lookup, got)
		}
	}

	if _, refusal := tracker.StartSession(" youtube.com ", 20); refusal != nil {
		t.Fatalf("StartSession refused: %+v", refusal)
	}
	tracker.EndSessionWithMinutes(20)
	if !tracker.IsOverLimit("youtube.com") {
		t.Error("exhausted site not over limit")
	}
	if !tracker.IsOverLimit("https://YOUTUBE.com/feed") {
		t.Error("exhausted site not over limit for a full URL")
	}

	clock.Advance(24 * time.Hour)
	if !tracker.RemoveSite("YouTube.com ") {
		t.Fatal("RemoveSite with padded key failed")
	}
	if _, ok := tracker.Site("youtube.com"); ok {
		t.Error("site still tracked after removal")
	}
}

func TestSessionCrossingMidnight(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})
	clock.Set(time.Date(2026, 10, 15, 23, 50, 0, 0, time.UTC))
	key := mustAddSite(t, tracker, "a.com", 60)

	if _, refusal := tracker.StartSession(key, 30); refusal != nil {
		t.Fatalf("StartSession refused: %+v", refusal)
	}

	clock.Set(time.Date(2026, 10, 16, 0, 10, 0, 0, time.UTC))
	if n := tracker.ResetSweep(tracker.Today()); n != 1 {
		t.Fatalf("ResetSweep reset %d sites, want 1", n)
	}
	if active, ok := tracker.Active(); !ok || active.SiteKey != key {
		t.Fatalf("session lost across the reset: %+v %v", active, ok)
	}

	if !tracker.EndSession() {
		t.Fatal("EndSession returned false")
	}
	site := mustSite(t, tracker, key)
	if site.UsedMinutes != 20 {
		t.Errorf("UsedMinutes = %d, want 20", site.UsedMinutes)
	}
	if want := (Date{Year: 2026, Month: 10, Day: 16}); site.LastResetDate != want {
		t.Errorf("LastResetDate = %v, want %v", site.LastResetDate, want)
	}
	if got := tracker.Remaining(key); got != 40 {
		t.Errorf("Remaining = %d, want 40", got)
	}

	var sessions int
	for _, entry := range site.History {
		if entry.Kind != KindSession {
			continue
		}
		sessions++
		if entry.Session == nil || !entry.Session.Settled || entry.Session.ActualMinutes != 20 {
			t.Errorf("session entry = %+v, want settled with 20 minutes", entry.Session)
		}
	}
	if sessions != 1 {
		t.Errorf("found %d session entries, want 1", sessions)
	}
}

func TestYouTubeScenario(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})

	key := mustAddSite(t, tracker, "youtube.com", 20)
	if key != "youtube.com" {
		t.Fatalf("key = %q", key)
	}
	if got := tracker.Remaining(key); got != 20 {
		t.Fatalf("Remaining = %d, want 20", got)
	}

	_, refusal := tracker.StartSession("https://youtube.com", 30)
	if refusal == nil || refusal.Reason != RefusalInsufficientBudget {
		t.Fatalf("expected insufficient budget refusal, got %+v", refusal)
	}
	if refusal.Message != "You only have 20 minutes remaining today." {
		t.Errorf("refusal message = %q", refusal.Message)
	}

	grant, refusal := tracker.StartSession("https://youtube.com", 15)
	if refusal != nil {
		t.Fatalf("StartSession refused: %+v", refusal)
	}
	if grant.RemainingAfter != 5 {
		t.Errorf("RemainingAfter = %d, want 5", grant.RemainingAfter)
	}
	if grant.DestinationURL != "https://youtube.com" {
		t.Errorf("DestinationURL = %q", grant.DestinationURL)
	}

	if !tracker.EndSessionWithMinutes(10) {
		t.Fatal("EndSessionWithMinutes returned false")
	}
	if got := mustSite(t, tracker, key).UsedMinutes; got != 10 {
		t.Errorf("UsedMinutes = %d, want 10", got)
	}
	if got := tracker.Remaining(key); got != 10 {
		t.Errorf("Remaining = %d, want 10", got)
	}
	if tracker.RemoveSite(key) {
		t.Fatal("RemoveSite succeeded on a site used today")
	}

	clock.Advance(24 * time.Hour)
	if n := tracker.ResetSweep(tracker.Today()); n != 1 {
		t.Errorf("ResetSweep reset %d sites, want 1", n)
	}
	if got := mustSite(t, tracker, key).UsedMinutes; got != 0 {
		t.Errorf("UsedMinutes after reset = %d, want 0", got)
	}
	if got := tracker.Remaining(key); got != 20 {
		t.Errorf("Remaining after reset = %d, want 20", got)
	}
	if !tracker.RemoveSite(key) {
		t.Error("RemoveSite failed after reset")
	}
}

func TestNotAURLScenario(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{})

	key := mustAddSite(t, tracker, "Not A URL", 10)
	if key != "not a url" {
		t.Fatalf("key = %q, want %q", key, "not a url")
	}
	site := mustSite(t, tracker, key)
	if site.DailyLimitMinutes != 10 || site.UsedMinutes != 0 {
		t.Errorf("site = %+v", site)
	}
	if got := tracker.Remaining("not a url"); got != 10 {
		t.Errorf("Remaining = %d, want 10", got)
	}
}

func TestStartSessionRefusals(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, tracker *Tracker)
		url     string
		minutes int
		want    RefusalReason
		message string
	}{
		{
			name: "session already active",
			setup: func(t *testing.T, tracker *Tracker) {
				mustAddSite(t, tracker, "b.com", 20)
				if _, r := tracker.StartSession("https://b.com", 5); r != nil {
					t.Fatalf("setup refused: %+v", r)
				}
			},
			url: "https://a.com", minutes: 5, want: RefusalSessionActive,
		},
		{
			name:  "unknown site",
			setup: func(t *testing.T, tracker *Tracker) {},
			url:   "https://nope.com", minutes: 5, want: RefusalUnknownSite,
			message: "Website not found",
		},
		{
			name: "limit reached",
			setup: func(t *testing.T, tracker *Tracker) {
				if _, r := tracker.StartSession("https://a.com", 20); r != nil {
					t.Fatalf("setup refused: %+v", r)
				}
				tracker.EndSessionWithMinutes(20)
			},
			url: "https://a.com", minutes: 1, want: RefusalLimitReached,
			message: "You've reached your daily limit for a.com. Try again tomorrow!",
		},
		{
			name:  "zero minutes",
			setup: func(t *testing.T, tracker *Tracker) {},
			url:   "https://a.com", minutes: 0, want: RefusalInvalidMinutes,
			message: "Please enter a valid number of minutes.",
		},
		{
			name:  "negative minutes",
			setup: func(t *testing.T, tracker *Tracker) {},
			url:   "https://a.com", minutes: -4, want: RefusalInvalidMinutes,
		},
		{
			name:  "insufficient budget",
			setup: func(t *testing.T, tracker *Tracker) {},
			url:   "https://a.com", minutes: 21, want: RefusalInsufficientBudget,
			message: "You only have 20 minutes remaining today.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, _ := newTestTracker(t, &memoryBackend{})
			mustAddSite(t, tracker, "a.com", 20)
			tt.setup(t, tracker)

			before := tracker.ListSites()
			activeBefore, runningBefore := tracker.Active()

			_, refusal := tracker.StartSession(tt.url, tt.minutes)
			if refusal == nil {
				t.Fatal("expected refusal")
			}
			if refusal.Reason != tt.want {
				t.Errorf("Reason = %q, want %q", refusal.Reason, tt.want)
			}
			if tt.message != "" && refusal.Message != tt.message {
				t.Errorf("Message = %q, want %q", refusal.Message, tt.message)
			}

			after := tracker.ListSites()
			for i := range before {
				if len(after[i].History) != len(before[i].History) || after[i].UsedMinutes != before[i].UsedMinutes {
					t.Errorf("refusal mutated %s", before[i].SiteKey)
				}
			}
			activeAfter, runningAfter := tracker.Active()
			if runningAfter != runningBefore || activeAfter != activeBefore {
				t.Error("refusal changed the session slot")
			}
		})
	}
}

func TestStartSessionRecordsEntry(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})
	mustAddSite(t, tracker, "a.com", 30)

	grant, refusal := tracker.StartSession("https://a.com/watch?v=1", 10)
	if refusal != nil {
		t.Fatalf("StartSession refused: %+v", refusal)
	}
	if !grant.StartTime.Equal(clock.Now()) {
		t.Errorf("StartTime = %v, want %v", grant.StartTime, clock.Now())
	}
	if !grant.ExpiresAt.Equal(clock.Now().Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", grant.ExpiresAt)
	}

	active, ok := tracker.Active()
	if !ok {
		t.Fatal("no active session after grant")
	}
	site := mustSite(t, tracker, "a.com")
	entry := site.History[active.HistoryIndex]
	if entry.Kind != KindSession || entry.Session.ID != active.EntryID {
		t.Fatalf("active session points at %+v", entry)
	}
	if entry.Session.Settled || entry.Session.ActualMinutes != 0 || entry.Session.RequestedMinutes != 10 {
		t.Errorf("unexpected entry %+v", *entry.Session)
	}
	if site.UsedMinutes != 0 {
		t.Errorf("starting a session charged %d minutes", site.UsedMinutes)
	}
	if site, ok := tracker.ActiveSite(); !ok || site != "a.com" {
		t.Errorf("ActiveSite = %q, %v", site, ok)
	}
}

func TestEndSessionWhenIdle(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{})

	if tracker.EndSession() {
		t.Error("EndSession returned true while idle")
	}
	if tracker.EndSessionWithMinutes(5) {
		t.Error("EndSessionWithMinutes returned true while idle")
	}
}

func TestEndSessionCharges(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		override *int
		want     int
	}{
		{name: "rounds partial minute up", elapsed: 3*time.Minute + time.Second, want: 4},
		{name: "exact minutes", elapsed: 5 * time.Minute, want: 5},
		{name: "capped at requested", elapsed: 2 * time.Hour, want: 10},
		{name: "clock moved backwards", elapsed: -time.Hour, want: 0},
		{name: "no time elapsed", elapsed: 0, want: 0},
		{name: "override", elapsed: time.Hour, override: intPtr(7), want: 7},
		{name: "override above requested", elapsed: 0, override: intPtr(99), want: 10},
		{name: "negative override", elapsed: 0, override: intPtr(-3), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, clock := newTestTracker(t, &memoryBackend{})
			mustAddSite(t, tracker, "a.com", 60)

			if _, r := tracker.StartSession("a.com", 10); r != nil {
				t.Fatalf("StartSession refused: %+v", r)
			}
			clock.Advance(tt.elapsed)

			var ended bool
			if tt.override != nil {
				ended = tracker.EndSessionWithMinutes(*tt.override)
			} else {
				ended = tracker.EndSession()
			}
			if !ended {
				t.Fatal("end returned false")
			}

			site := mustSite(t, tracker, "a.com")
			entry := site.History[len(site.History)-1].Session
			if entry.ActualMinutes != tt.want || !entry.Settled {
				t.Errorf("entry = %+v, want %d minutes settled", *entry, tt.want)
			}
			if site.UsedMinutes != tt.want {
				t.Errorf("UsedMinutes = %d, want %d", site.UsedMinutes, tt.want)
			}
			if _, ok := tracker.Active(); ok {
				t.Error("session still active after settlement")
			}
		})
	}
}

func TestBudgetConservation(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})
	mustAddSite(t, tracker, "a.com", 30)

	requests := []struct {
		minutes int
		elapsed time.Duration
	}{
		{minutes: 10, elapsed: 4 * time.Minute},
		{minutes: 10, elapsed: 30 * time.Minute},
		{minutes: 6, elapsed: 90 * time.Second},
		{minutes: 14, elapsed: 14 * time.Minute},
	}

	sum := 0
	for i, req := range requests {
		if _, r := tracker.StartSession("a.com", req.minutes); r != nil {
			t.Fatalf("session %d refused: %+v", i, r)
		}
		clock.Advance(req.elapsed)
		tracker.EndSession()

		site := mustSite(t, tracker, "a.com")
		sum += site.History[len(site.History)-1].Session.ActualMinutes
		if site.UsedMinutes != sum {
			t.Errorf("after session %d: UsedMinutes = %d, sum of actuals = %d", i, site.UsedMinutes, sum)
		}
		if site.UsedMinutes > site.DailyLimitMinutes {
			t.Errorf("after session %d: UsedMinutes %d exceeds limit", i, site.UsedMinutes)
		}
	}

	if got := tracker.Remaining("a.com"); got != 30-sum {
		t.Errorf("Remaining = %d, want %d", got, 30-sum)
	}
}

func TestResetSweepIdempotent(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})
	mustAddSite(t, tracker, "a.com", 20)
	mustAddSite(t, tracker, "b.com", 20)
	tracker.StartSession("a.com", 5)
	tracker.EndSessionWithMinutes(5)

	clock.Advance(24 * time.Hour)
	today := tracker.Today()

	if n := tracker.ResetSweep(today); n != 2 {
		t.Fatalf("first sweep reset %d sites, want 2", n)
	}
	first := tracker.ListSites()

	if n := tracker.ResetSweep(today); n != 0 {
		t.Errorf("second sweep reset %d sites, want 0", n)
	}
	second := tracker.ListSites()

	for i := range first {
		if first[i].UsedMinutes != second[i].UsedMinutes ||
			first[i].LastResetDate != second[i].LastResetDate ||
			len(first[i].History) != len(second[i].History) {
			t.Errorf("second sweep changed %s", first[i].SiteKey)
		}
		last := second[i].History[len(second[i].History)-1]
		if last.Kind != KindReset || last.Reset.Date != today {
			t.Errorf("%s: last entry = %+v, want reset marker", second[i].SiteKey, last)
		}
	}
}

func TestStaleDayReadsFullBudget(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})
	mustAddSite(t, tracker, "a.com", 5)
	tracker.StartSession("a.com", 5)
	tracker.EndSessionWithMinutes(5)

	if !tracker.IsOverLimit("a.com") {
		t.Fatal("exhausted site not over limit")
	}

	clock.Advance(24 * time.Hour)

	if tracker.IsOverLimit("a.com") {
		t.Error("site still over limit on a new day")
	}
	if got := tracker.Remaining("a.com"); got != 5 {
		t.Errorf("Remaining = %d, want 5", got)
	}
	if got := mustSite(t, tracker, "a.com").UsedMinutes; got != 5 {
		t.Errorf("read path mutated UsedMinutes to %d", got)
	}
}

func TestStartSessionSweepsNewDay(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})
	mustAddSite(t, tracker, "a.com", 5)
	tracker.StartSession("a.com", 5)
	tracker.EndSessionWithMinutes(5)

	clock.Advance(24 * time.Hour)

	if _, r := tracker.StartSession("a.com", 5); r != nil {
		t.Fatalf("StartSession refused on a new day: %+v", r)
	}
	site := mustSite(t, tracker, "a.com")
	if site.LastResetDate != tracker.Today() {
		t.Errorf("LastResetDate = %v, want %v", site.LastResetDate, tracker.Today())
	}
}

func TestStaleSessionRecovery(t *testing.T) {
	backend := &memoryBackend{}
	backend.seed(`[{
		"siteKey": "a.com",
		"dailyLimitMinutes": 20,
		"usedMinutes": 4,
		"lastResetDate": "2026-10-15",
		"history": [
			{"kind":"session","id":"s1","startTime":"2026-10-15T08:00:00Z","requestedMinutes":4,"actualMinutes":4,"settled":true},
			{"kind":"session","id":"s2","startTime":"2026-10-15T08:30:00Z","requestedMinutes":10,"actualMinutes":0,"settled":false}
		]
	}]`)

	tracker, _ := newTestTracker(t, backend)

	if _, ok := tracker.Active(); ok {
		t.Fatal("tracker started Running")
	}
	site := mustSite(t, tracker, "a.com")
	if site.UsedMinutes != 4 {
		t.Errorf("UsedMinutes = %d, want 4", site.UsedMinutes)
	}
	stale := site.History[1].Session
	if !stale.Abandoned || stale.Settled || stale.ActualMinutes != 0 {
		t.Errorf("stale entry = %+v, want abandoned and uncharged", *stale)
	}

	// The recovery is persisted so a second restart sees nothing pending.
	again, _ := newTestTracker(t, backend)
	if !mustSite(t, again, "a.com").History[1].Session.Abandoned {
		t.Error("abandoned flag not persisted")
	}

	if _, r := tracker.StartSession("a.com", 10); r != nil {
		t.Errorf("StartSession refused after recovery: %+v", r)
	}
}

func TestPersistenceDegradation(t *testing.T) {
	backend := &memoryBackend{writeErr: errUnavailable}
	tracker, _ := newTestTracker(t, backend)

	key := mustAddSite(t, tracker, "a.com", 10)
	if _, r := tracker.StartSession(key, 5); r != nil {
		t.Fatalf("StartSession refused: %+v", r)
	}
	if !tracker.EndSessionWithMinutes(5) {
		t.Fatal("EndSessionWithMinutes returned false")
	}
	if got := tracker.Remaining(key); got != 5 {
		t.Errorf("Remaining = %d, want 5", got)
	}
	if backend.contents() != "" {
		t.Error("failing backend received data")
	}
}

func TestUnreadableStoreStartsEmpty(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{readErr: errUnavailable})

	if n := len(tracker.ListSites()); n != 0 {
		t.Errorf("ListSites returned %d sites, want 0", n)
	}
}

func TestListSitesIsACopy(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{})
	mustAddSite(t, tracker, "a.com", 10)
	tracker.StartSession("a.com", 5)

	sites := tracker.ListSites()
	sites[0].UsedMinutes = 99
	sites[0].History[0].Session.RequestedMinutes = 1

	site := mustSite(t, tracker, "a.com")
	if site.UsedMinutes != 0 || site.History[0].Session.RequestedMinutes != 5 {
		t.Error("mutating ListSites result changed tracker state")
	}
}

func TestVersionedWritesReplayOnConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotas.json")
	clock := &TestClock{CurrentTime: testStart()}

	open := func() *Tracker {
		backend, err := file.Open(path)
		if err != nil {
			t.Fatalf("file.Open failed: %v", err)
		}
		tracker, err := NewTracker(NewStore(backend, true, zerolog.Nop()), Config{Clock: clock, Location: time.UTC}, zerolog.Nop())
		if err != nil {
			t.Fatalf("NewTracker failed: %v", err)
		}
		return tracker
	}

	first := open()
	mustAddSite(t, first, "a.com", 10)

	second := open()
	mustAddSite(t, first, "b.com", 10)
	mustAddSite(t, second, "c.com", 10)

	got := map[string]bool{}
	for _, s := range second.ListSites() {
		got[s.SiteKey] = true
	}
	for _, key := range []string{"a.com", "b.com", "c.com"} {
		if !got[key] {
			t.Errorf("second tracker lost %s after replay", key)
		}
	}

	third := open()
	if n := len(third.ListSites()); n != 3 {
		t.Errorf("persisted document has %d sites, want 3", n)
	}
}

func intPtr(v int) *int { return &v }
