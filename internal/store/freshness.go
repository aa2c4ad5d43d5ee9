package store

import (
	"fmt"
	"time"
)

// Freshness describes how old a cached fetch is relative to its TTL.
type Freshness struct {
	LastUpdated time.Time
	IsFresh     bool
	Age         time.Duration
}

// NewFreshness evaluates lastFetch against ttl at now. A zero lastFetch is
// never fresh, and neither is anything when ttl is zero.
func NewFreshness(lastFetch time.Time, ttl time.Duration, now time.Time) Freshness {
	if lastFetch.IsZero() {
		return Freshness{}
	}
	age := now.Sub(lastFetch)
	return Freshness{
		LastUpdated: lastFetch,
		IsFresh:     ttl > 0 && age >= 0 && age < ttl,
		Age:         age,
	}
}

// FormatFreshness returns a human-readable freshness string.
func FormatFreshness(f Freshness) string {
	if f.LastUpdated.IsZero() {
		return "Never fetched"
	}

	age := f.Age
	var ageStr string

	switch {
	case age < time.Minute:
		ageStr = "just now"
	case age < time.Hour:
		ageStr = fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		ageStr = fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		ageStr = fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}

	if f.IsFresh {
		return fmt.Sprintf("Updated %s", ageStr)
	}
	return fmt.Sprintf("Stale, updated %s", ageStr)
}
