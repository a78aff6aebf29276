package gateway

import (
	"context"
	"strings"

	"github.com/goodtune/sitebudget/internal/metrics"
	"github.com/goodtune/sitebudget/internal/policy"
	"github.com/goodtune/sitebudget/internal/usage"
	"github.com/rs/zerolog"
)

// QuotaReader is the read-only slice of the tracker the gateway may use.
type QuotaReader interface {
	Normalize(input string) string
	Usage(key string) (usage.Usage, bool)
	ActiveSite() (string, bool)
}

// Decision is the gateway's verdict for one access attempt.
type Decision struct {
	Host      string        `json:"host"`
	Site      string        `json:"site,omitempty"`
	Tracked   bool          `json:"tracked"`
	Action    policy.Action `json:"action"`
	Reason    string        `json:"reason"`
	Remaining int           `json:"remainingMinutes"`
	Source    string        `json:"source"` // policy or quota
}

// Blocked reports whether the decision blocks access.
func (d Decision) Blocked() bool {
	return d.Action == policy.ActionBlock
}

// Decider answers "may this host be visited right now". It never mutates
// quota state.
type Decider struct {
	quotas QuotaReader
	policy *policy.Engine
	clock  usage.Clock
	logger zerolog.Logger
}

// NewDecider creates a decider. engine may be nil, in which case decisions
// come straight from the quota.
func NewDecider(quotas QuotaReader, engine *policy.Engine, clock usage.Clock, logger zerolog.Logger) *Decider {
	if clock == nil {
		clock = usage.RealClock{}
	}
	return &Decider{
		quotas: quotas,
		policy: engine,
		clock:  clock,
		logger: logger.With().Str("component", "gateway").Logger(),
	}
}

// Decide evaluates access to host, which may be a bare hostname or a URL.
func (d *Decider) Decide(ctx context.Context, host string) Decision {
	normalized := d.quotas.Normalize(strings.TrimSuffix(host, "."))
	u, tracked := d.lookup(normalized)

	decision := Decision{
		Host:      normalized,
		Tracked:   tracked,
		Remaining: u.RemainingMinutes,
	}
	if tracked {
		decision.Site = u.SiteKey
	}

	if d.policy != nil {
		activeSite, _ := d.quotas.ActiveSite()
		result, err := d.policy.Evaluate(ctx, policy.Facts{
			Site:             u.SiteKey,
			Tracked:          tracked,
			LimitMinutes:     u.DailyLimitMinutes,
			UsedMinutes:      u.UsedMinutes,
			RemainingMinutes: u.RemainingMinutes,
			ActiveSite:       activeSite,
			Now:              d.clock.Now(),
		})
		if err == nil {
			decision.Action = result.Action
			decision.Reason = result.Reason
			decision.Source = "policy"
			metrics.GatewayDecisions.WithLabelValues(decision.Source, string(decision.Action)).Inc()
			return decision
		}
		d.logger.Error().Err(err).Str("host", normalized).Msg("Policy evaluation failed, falling back to quota")
		metrics.PolicyEvalErrors.Inc()
	}

	decision.Source = "quota"
	switch {
	case !tracked:
		decision.Action = policy.ActionAllow
		decision.Reason = "site is not tracked"
	case u.RemainingMinutes == 0:
		decision.Action = policy.ActionBlock
		decision.Reason = "daily limit for " + u.SiteKey + " reached"
	default:
		decision.Action = policy.ActionAllow
		decision.Reason = "budget remaining"
	}
	metrics.GatewayDecisions.WithLabelValues(decision.Source, string(decision.Action)).Inc()
	return decision
}

// lookup finds the tracked site governing host: the host itself, then each
// parent domain, so www.youtube.com falls under youtube.com.
func (d *Decider) lookup(host string) (usage.Usage, bool) {
	for name := host; name != ""; {
		if u, ok := d.quotas.Usage(name); ok {
			return u, true
		}
		i := strings.IndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[i+1:]
	}
	return usage.Usage{}, false
}
