package usage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSessionTimerSettlesExpiredSession(t *testing.T) {
	tracker, clock := newTestTracker(t, &memoryBackend{})
	mustAddSite(t, tracker, "a.com", 30)
	if _, r := tracker.StartSession("a.com", 10); r != nil {
		t.Fatalf("StartSession refused: %+v", r)
	}

	timer := NewSessionTimer(tracker, time.Minute, zerolog.Nop())

	clock.Advance(9*time.Minute + 59*time.Second)
	if timer.check() {
		t.Fatal("timer settled a session before it expired")
	}
	if _, ok := tracker.Active(); !ok {
		t.Fatal("session no longer active")
	}

	clock.Advance(time.Second)
	if !timer.check() {
		t.Fatal("timer did not settle an expired session")
	}
	if _, ok := tracker.Active(); ok {
		t.Error("session still active after expiry")
	}
	if got := mustSite(t, tracker, "a.com").UsedMinutes; got != 10 {
		t.Errorf("UsedMinutes = %d, want 10", got)
	}
}

func TestSessionTimerIdle(t *testing.T) {
	tracker, _ := newTestTracker(t, &memoryBackend{})
	timer := NewSessionTimer(tracker, 0, zerolog.Nop())

	if timer.check() {
		t.Error("check settled something while idle")
	}
	timer.Start()
	timer.Stop()
}
