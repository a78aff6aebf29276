package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/sitebudget/internal/storage"
	"github.com/rs/zerolog"
)

// memoryBackend is an in-process storage.Backend with failure injection.
type memoryBackend struct {
	mu       sync.Mutex
	data     []byte
	revision uint64
	readErr  error
	writeErr error
	writes   int
}

func (m *memoryBackend) Read(ctx context.Context) (*storage.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.data == nil {
		return nil, storage.ErrNotFound
	}
	return &storage.Document{Data: append([]byte(nil), m.data...), Revision: m.revision}, nil
}

func (m *memoryBackend) Write(ctx context.Context, data []byte, expected uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	if expected != storage.AnyRevision && expected != m.revision {
		return 0, storage.ErrRevisionConflict
	}
	m.data = append([]byte(nil), data...)
	m.revision++
	m.writes++
	return m.revision, nil
}

func (m *memoryBackend) Close() error { return nil }

func (m *memoryBackend) seed(doc string) {
	m.mu.Lock()
	m.data = []byte(doc)
	m.revision = 1
	m.mu.Unlock()
}

func (m *memoryBackend) contents() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data)
}

var errUnavailable = errors.New("storage unavailable")

func testStart() time.Time {
	return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
}

func newTestTracker(t *testing.T, backend storage.Backend) (*Tracker, *TestClock) {
	t.Helper()

	clock := &TestClock{CurrentTime: testStart()}
	tracker, err := NewTracker(NewStore(backend, false, zerolog.Nop()), Config{
		Clock:    clock,
		Location: time.UTC,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	return tracker, clock
}

func mustAddSite(t *testing.T, tracker *Tracker, url string, limit int) string {
	t.Helper()
	key, err := tracker.AddSite(url, limit)
	if err != nil {
		t.Fatalf("AddSite(%q, %d) failed: %v", url, limit, err)
	}
	return key
}

func mustSite(t *testing.T, tracker *Tracker, key string) SiteQuota {
	t.Helper()
	site, ok := tracker.Site(key)
	if !ok {
		t.Fatalf("site %q not tracked", key)
	}
	return site
}
