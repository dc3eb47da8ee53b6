package application

import "time"

// ActivityTier classifies a project by how recently its students pushed,
// which decides how often the reconciliation sweep revisits it.
type ActivityTier int

const (
	// TierHot indicates a push within the last hour. Swept every 2 minutes.
	TierHot ActivityTier = iota
	// TierActive indicates a push within the last day. Swept every 5 minutes.
	TierActive
	// TierWarm indicates a push within the last 7 days. Swept every 15 minutes.
	TierWarm
	// TierStale indicates no push for 7+ days. Swept every 30 minutes.
	TierStale
)

const (
	intervalHot    = 2 * time.Minute
	intervalActive = 5 * time.Minute
	intervalWarm   = 15 * time.Minute
	intervalStale  = 30 * time.Minute
)

// String returns a human-readable name for the activity tier.
func (t ActivityTier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierActive:
		return "active"
	case TierWarm:
		return "warm"
	case TierStale:
		return "stale"
	default:
		return "unknown"
	}
}

// tierInterval returns the sweep interval for the given activity tier.
func tierInterval(tier ActivityTier) time.Duration {
	switch tier {
	case TierHot:
		return intervalHot
	case TierActive:
		return intervalActive
	case TierWarm:
		return intervalWarm
	case TierStale:
		return intervalStale
	default:
		return intervalActive
	}
}

// classifyActivity determines the tier from the time elapsed between
// lastPush and now. A zero lastPush is TierStale.
func classifyActivity(now, lastPush time.Time) ActivityTier {
	if lastPush.IsZero() {
		return TierStale
	}

	elapsed := now.Sub(lastPush)

	switch {
	case elapsed < 1*time.Hour:
		return TierHot
	case elapsed < 24*time.Hour:
		return TierActive
	case elapsed < 7*24*time.Hour:
		return TierWarm
	default:
		return TierStale
	}
}

// sweepSchedule tracks when a project was last reconciled.
type sweepSchedule struct {
	tier      ActivityTier
	lastSwept time.Time
}

// due reports whether the project should be swept at now.
func (s sweepSchedule) due(now time.Time) bool {
	return s.lastSwept.IsZero() || !now.Before(s.lastSwept.Add(tierInterval(s.tier)))
}

// ScheduleInfo is an exported view of a project's sweep schedule.
type ScheduleInfo struct {
	Tier      ActivityTier
	LastSwept time.Time
	NextSweep time.Time
}
