package staleness_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pricefeed/internal/prefs"
	"pricefeed/internal/staleness"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		age     time.Duration
		cadence prefs.Cadence
		want    staleness.Tier
	}{
		{125 * time.Second, prefs.Every1m, staleness.Stale},
		{125 * time.Second, prefs.Every10m, staleness.Fresh},
		{90 * time.Second, prefs.Every1m, staleness.Fresh},
		{91 * time.Second, prefs.Every1m, staleness.Aging},
		{120 * time.Second, prefs.Every1m, staleness.Aging},
		{-time.Minute, prefs.Every15s, staleness.Fresh},
		{20 * time.Minute, prefs.Manual, staleness.Fresh},
		{25 * time.Minute, prefs.Manual, staleness.Aging},
		{31 * time.Minute, prefs.Manual, staleness.Stale},
	}
	for _, tt := range tests {
		require.Equalf(t, tt.want, staleness.Classify(tt.age, tt.cadence), "age %s cadence %s", tt.age, tt.cadence)
	}
}

func rank(t staleness.Tier) int {
	switch t {
	case staleness.Fresh:
		return 0
	case staleness.Aging:
		return 1
	default:
		return 2
	}
}

func TestClassify_Monotonic(t *testing.T) {
	t.Parallel()

	cadences := prefs.Cadences()
	for age := time.Duration(0); age <= 40*time.Minute; age += 5 * time.Second {
		// Older is never fresher.
		for _, c := range cadences {
			require.LessOrEqual(t, rank(staleness.Classify(age, c)), rank(staleness.Classify(age+5*time.Second, c)))
		}
		// A longer cadence is never staler.
		for i := 1; i < len(cadences)-1; i++ {
			require.GreaterOrEqual(t, rank(staleness.Classify(age, cadences[i-1])), rank(staleness.Classify(age, cadences[i])))
		}
	}
}
