package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action represents the policy decision action
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionBlock Action = "BLOCK"
)

// UnmarshalJSON implements json.Unmarshaler to normalize action to uppercase.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := Action(strings.ToUpper(s))
	switch normalized {
	case ActionAllow, ActionBlock:
		*a = normalized
		return nil
	default:
		return fmt.Errorf("invalid action: %s (must be ALLOW or BLOCK)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure uppercase output.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// Decision is the outcome of evaluating the gateway policy
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Blocked reports whether the decision blocks access
func (d Decision) Blocked() bool {
	return d.Action == ActionBlock
}

// Facts is the policy input describing one access attempt
type Facts struct {
	Site             string
	Tracked          bool
	LimitMinutes     int
	UsedMinutes      int
	RemainingMinutes int
	ActiveSite       string
	Now              time.Time
}

// input converts facts into the OPA input document
func (f Facts) input() map[string]interface{} {
	return map[string]interface{}{
		"site":              f.Site,
		"tracked":           f.Tracked,
		"limit_minutes":     f.LimitMinutes,
		"used_minutes":      f.UsedMinutes,
		"remaining_minutes": f.RemainingMinutes,
		"active_site":       f.ActiveSite,
		"time": map[string]interface{}{
			"day_of_week": int(f.Now.Weekday()),
			"hour":        f.Now.Hour(),
			"minute":      f.Now.Minute(),
		},
	}
}
