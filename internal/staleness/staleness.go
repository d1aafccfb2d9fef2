// Package staleness classifies how fresh a quote is relative to the refresh
// cadence.
package staleness

import (
	"time"

	"pricefeed/internal/prefs"
)

// Tier is a freshness classification.
type Tier string

const (
	Fresh Tier = "fresh"
	Aging Tier = "aging"
	Stale Tier = "stale"
)

// ManualReference is the reference interval used when polling is manual.
const ManualReference = 15 * time.Minute

// Reference returns the interval ages are measured against.
func Reference(c prefs.Cadence) time.Duration {
	if iv := c.Interval(); iv > 0 {
		return iv
	}
	return ManualReference
}

// Classify maps a quote age to a tier. Up to 1.5 reference intervals is
// fresh, up to 2 is aging, beyond is stale. Negative ages are fresh.
func Classify(age time.Duration, c prefs.Cadence) Tier {
	ref := Reference(c)
	switch {
	case age <= ref*3/2:
		return Fresh
	case age <= ref*2:
		return Aging
	default:
		return Stale
	}
}
