package usage

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryKind discriminates HistoryEntry variants.
type EntryKind string

const (
	KindSession EntryKind = "session"
	KindReset   EntryKind = "reset"
)

// SessionRecord is the payload of a session history entry.
type SessionRecord struct {
	ID               string
	StartTime        time.Time
	RequestedMinutes int
	ActualMinutes    int
	Settled          bool
	// Abandoned marks an entry found unsettled at startup. It was never
	// charged and never will be.
	Abandoned bool
}

// ResetRecord is the payload of a reset history entry.
type ResetRecord struct {
	Date Date
}

// HistoryEntry is one item of a site's append-only history. Exactly one of
// Session or Reset is set, matching Kind.
type HistoryEntry struct {
	Kind    EntryKind
	Session *SessionRecord
	Reset   *ResetRecord
}

// NewSessionEntry returns an unsettled session entry.
func NewSessionEntry(id string, start time.Time, requestedMinutes int) HistoryEntry {
	return HistoryEntry{
		Kind: KindSession,
		Session: &SessionRecord{
			ID:               id,
			StartTime:        start,
			RequestedMinutes: requestedMinutes,
		},
	}
}

// NewResetEntry returns a reset marker for day.
func NewResetEntry(day Date) HistoryEntry {
	return HistoryEntry{Kind: KindReset, Reset: &ResetRecord{Date: day}}
}

// Pending reports whether e is a session that is neither settled nor abandoned.
func (e HistoryEntry) Pending() bool {
	return e.Kind == KindSession && e.Session != nil && !e.Session.Settled && !e.Session.Abandoned
}

func (e HistoryEntry) clone() HistoryEntry {
	out := HistoryEntry{Kind: e.Kind}
	if e.Session != nil {
		s := *e.Session
		out.Session = &s
	}
	if e.Reset != nil {
		r := *e.Reset
		out.Reset = &r
	}
	return out
}

type historyEntryJSON struct {
	Kind             EntryKind  `json:"kind"`
	ID               string     `json:"id,omitempty"`
	StartTime        *time.Time `json:"startTime,omitempty"`
	RequestedMinutes *int       `json:"requestedMinutes,omitempty"`
	ActualMinutes    *int       `json:"actualMinutes,omitempty"`
	Settled          *bool      `json:"settled,omitempty"`
	Abandoned        bool       `json:"abandoned,omitempty"`
	Date             *Date      `json:"date,omitempty"`
}

func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	switch {
	case e.Kind == KindSession && e.Session != nil:
		s := e.Session
		return json.Marshal(historyEntryJSON{
			Kind:             KindSession,
			ID:               s.ID,
			StartTime:        &s.StartTime,
			RequestedMinutes: &s.RequestedMinutes,
			ActualMinutes:    &s.ActualMinutes,
			Settled:          &s.Settled,
			Abandoned:        s.Abandoned,
		})
	case e.Kind == KindReset && e.Reset != nil:
		return json.Marshal(historyEntryJSON{Kind: KindReset, Date: &e.Reset.Date})
	default:
		return nil, fmt.Errorf("history entry of kind %q has no payload", e.Kind)
	}
}

// UnmarshalJSON rejects unknown kinds, missing fields and fields that do not
// belong to the entry's kind.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw historyEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Kind {
	case KindSession:
		if raw.Date != nil {
			return fmt.Errorf("session entry must not carry a date")
		}
		if raw.StartTime == nil || raw.RequestedMinutes == nil || raw.ActualMinutes == nil || raw.Settled == nil {
			return fmt.Errorf("session entry is missing required fields")
		}
		if *raw.RequestedMinutes <= 0 {
			return fmt.Errorf("session entry has invalid requestedMinutes %d", *raw.RequestedMinutes)
		}
		if *raw.ActualMinutes < 0 || *raw.ActualMinutes > *raw.RequestedMinutes {
			return fmt.Errorf("session entry has invalid actualMinutes %d", *raw.ActualMinutes)
		}
		*e = HistoryEntry{
			Kind: KindSession,
			Session: &SessionRecord{
				ID:               raw.ID,
				StartTime:        *raw.StartTime,
				RequestedMinutes: *raw.RequestedMinutes,
				ActualMinutes:    *raw.ActualMinutes,
				Settled:          *raw.Settled,
				Abandoned:        raw.Abandoned,
			},
		}
	case KindReset:
		if raw.StartTime != nil || raw.RequestedMinutes != nil || raw.ActualMinutes != nil || raw.Settled != nil || raw.ID != "" {
			return fmt.Errorf("reset entry must only carry a date")
		}
		if raw.Date == nil || raw.Date.IsZero() {
			return fmt.Errorf("reset entry is missing its date")
		}
		*e = NewResetEntry(*raw.Date)
	default:
		return fmt.Errorf("unknown history entry kind %q", raw.Kind)
	}
	return nil
}
