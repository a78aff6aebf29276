package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidLimit is returned by AddSite for a non-positive daily limit.
	ErrInvalidLimit = errors.New("daily limit must be a positive number of minutes")

	// ErrInvalidSite is returned by AddSite when the input normalizes to an empty key.
	ErrInvalidSite = errors.New("site must not be empty")
)

const dateLayout = "2006-01-02"

// Date is a local calendar day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns midnight at the start of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the day n days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD only.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SiteQuota is the daily budget record for one tracked site.
type SiteQuota struct {
	SiteKey           string         `json:"siteKey"`
	DailyLimitMinutes int            `json:"dailyLimitMinutes"`
	UsedMinutes       int            `json:"usedMinutes"`
	LastResetDate     Date           `json:"lastResetDate"`
	History           []HistoryEntry `json:"history"`
}

// RemainingMinutes returns max(0, limit - used) as recorded.
func (q SiteQuota) RemainingMinutes() int {
	return max(0, q.DailyLimitMinutes-q.UsedMinutes)
}

func (q SiteQuota) clone() SiteQuota {
	out := q
	out.History = make([]HistoryEntry, len(q.History))
	for i, e := range q.History {
		out.History[i] = e.clone()
	}
	return out
}

// ActiveSession points at the running session's entry in its site's history.
type ActiveSession struct {
	SiteKey      string `json:"siteKey"`
	HistoryIndex int    `json:"historyIndex"`
	EntryID      string `json:"entryId"`
}

// RefusalReason identifies why a session was not started.
type RefusalReason string

const (
	RefusalSessionActive      RefusalReason = "session_active"
	RefusalUnknownSite        RefusalReason = "unknown_site"
	RefusalLimitReached       RefusalReason = "limit_reached"
	RefusalInvalidMinutes     RefusalReason = "invalid_minutes"
	RefusalInsufficientBudget RefusalReason = "insufficient_budget"
)

// Refusal is a session request that was turned down. It is an expected
// outcome rather than an error.
type Refusal struct {
	Reason    RefusalReason `json:"reason"`
	Message   string        `json:"message"`
	Remaining int           `json:"remainingMinutes"`
}

// Grant describes a started session.
type Grant struct {
	SiteKey          string    `json:"siteKey"`
	DestinationURL   string    `json:"destinationUrl"`
	RemainingAfter   int       `json:"remainingAfter"`
	RequestedMinutes int       `json:"requestedMinutes"`
	StartTime        time.Time `json:"startTime"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Message          string    `json:"message"`
}

// Usage is the gateway's read-only view of one site for the current day.
type Usage struct {
	SiteKey           string `json:"siteKey"`
	DailyLimitMinutes int    `json:"dailyLimitMinutes"`
	UsedMinutes       int    `json:"usedMinutes"`
	RemainingMinutes  int    `json:"remainingMinutes"`
	SessionActive     bool   `json:"sessionActive"`
}
