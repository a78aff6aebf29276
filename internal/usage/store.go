package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goodtune/sitebudget/internal/metrics"
	"github.com/goodtune/sitebudget/internal/storage"
	"github.com/rs/zerolog"
)

// Store loads and saves the whole quota collection as one JSON document.
// Durability is best effort: read and write failures are logged and
// counted, never returned to the caller.
type Store struct {
	backend   storage.Backend
	versioned bool
	logger    zerolog.Logger

	mu       sync.Mutex
	revision uint64 // revision seen by the last Load or Save
}

// NewStore wraps backend. With versioned set, Save only succeeds against the
// revision observed by the previous Load or Save.
func NewStore(backend storage.Backend, versioned bool, logger zerolog.Logger) *Store {
	return &Store{
		backend:   backend,
		versioned: versioned,
		logger:    logger.With().Str("component", "quota-store").Logger(),
	}
}

// Load returns the persisted sites. Missing or unparsable documents yield an
// empty collection; malformed records are dropped individually.
func (s *Store) Load(ctx context.Context) []SiteQuota {
	doc, err := s.backend.Read(ctx)
	if err != nil {
		s.setRevision(storage.AnyRevision)
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().Err(err).Msg("Failed to load quota document, starting empty")
			metrics.StoreErrors.WithLabelValues("load").Inc()
		}
		return []SiteQuota{}
	}
	s.setRevision(doc.Revision)
	return decodeSites(doc.Data, s.logger)
}

// Save persists sites. The only error it returns is
// storage.ErrRevisionConflict, so a versioned caller can reload and retry.
func (s *Store) Save(ctx context.Context, sites []SiteQuota) error {
	if sites == nil {
		sites = []SiteQuota{}
	}
	data, err := json.Marshal(sites)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode quota document")
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expected := storage.AnyRevision
	if s.versioned {
		expected = s.revision
	}

	rev, err := s.backend.Write(ctx, data, expected)
	if errors.Is(err, storage.ErrRevisionConflict) {
		s.logger.Debug().Uint64("expected", expected).Msg("Quota document changed underneath us")
		return err
	}
	if err != nil {
		s.logger.Error().Err(err).Int("sites", len(sites)).Msg("Failed to save quota document, keeping in-memory state")
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return nil
	}
	s.revision = rev
	return nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) setRevision(rev uint64) {
	s.mu.Lock()
	s.revision = rev
	s.mu.Unlock()
}

// siteQuotaJSON mirrors SiteQuota with history left raw so that one bad
// entry does not cost the whole record.
type siteQuotaJSON struct {
	SiteKey           string            `json:"siteKey"`
	DailyLimitMinutes int               `json:"dailyLimitMinutes"`
	UsedMinutes       int               `json:"usedMinutes"`
	LastResetDate     Date              `json:"lastResetDate"`
	History           []json.RawMessage `json:"history"`
}

func decodeSites(data []byte, logger zerolog.Logger) []SiteQuota {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn().Err(err).Msg("Quota document is unparsable, starting empty")
		metrics.StoreErrors.WithLabelValues("load").Inc()
		return []SiteQuota{}
	}

	sites := make([]SiteQuota, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		site, err := decodeSite(r, logger)
		if err != nil {
			logger.Warn().Err(err).Int("index", i).Msg("Dropping malformed quota record")
			continue
		}
		if seen[site.SiteKey] {
			logger.Warn().Str("site", site.SiteKey).Int("index", i).Msg("Dropping duplicate quota record")
			continue
		}
		seen[site.SiteKey] = true
		sites = append(sites, site)
	}
	return sites
}

func decodeSite(data json.RawMessage, logger zerolog.Logger) (SiteQuota, error) {
	var raw siteQuotaJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return SiteQuota{}, err
	}

	key := Normalize(raw.SiteKey)
	if key == "" {
		return SiteQuota{}, fmt.Errorf("record has no siteKey")
	}
	if raw.DailyLimitMinutes <= 0 {
		return SiteQuota{}, fmt.Errorf("record %q has invalid dailyLimitMinutes %d", key, raw.DailyLimitMinutes)
	}
	if raw.UsedMinutes < 0 {
		return SiteQuota{}, fmt.Errorf("record %q has negative usedMinutes", key)
	}
	if raw.LastResetDate.IsZero() {
		return SiteQuota{}, fmt.Errorf("record %q has no lastResetDate", key)
	}

	site := SiteQuota{
		SiteKey:           key,
		DailyLimitMinutes: raw.DailyLimitMinutes,
		UsedMinutes:       min(raw.UsedMinutes, raw.DailyLimitMinutes),
		LastResetDate:     raw.LastResetDate,
		History:           make([]HistoryEntry, 0, len(raw.History)),
	}
	for i, r := range raw.History {
		var entry HistoryEntry
		if err := json.Unmarshal(r, &entry); err != nil {
			logger.Warn().Err(err).Str("site", key).Int("entry", i).Msg("Dropping malformed history entry")
			continue
		}
		site.History = append(site.History, entry)
	}
	return site, nil
}

// isBlank reports whether key cannot identify a site.
func isBlank(key string) bool {
	return strings.TrimSpace(key) == ""
}
