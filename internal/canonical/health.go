package canonical

import "time"

// Health is the recency classification of an instance.
type Health string

const (
	HealthUnknown Health = "unknown"
	HealthOnTrack Health = "on_track"
	HealthAtRisk  Health = "at_risk"
	HealthStale   Health = "stale"
)

const day = 24 * time.Hour

// ClassifyHealth classifies the age of updatedAt relative to asOf. A missing
// timestamp is unknown; timestamps after asOf are on track.
func ClassifyHealth(updatedAt *time.Time, asOf time.Time, rules Rules) Health {
	if updatedAt == nil {
		return HealthUnknown
	}
	age := asOf.Sub(*updatedAt)
	switch {
	case age >= time.Duration(rules.StaleAfterDays)*day:
		return HealthStale
	case age >= time.Duration(rules.AtRiskAfterDays)*day:
		return HealthAtRisk
	default:
		return HealthOnTrack
	}
}
