package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackOffSchedule(t *testing.T) {
	t.Parallel()

	f := New(nil)
	b := f.backOff()

	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for i, w := range want {
		require.Equalf(t, w, b.NextBackOff(), "delay before attempt %d", i+2)
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	f := New(nil, WithConfig(Config{MaxAttempts: 5}))

	require.Equal(t, 5, f.cfg.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, f.cfg.BaseDelay)
	require.Equal(t, 5*time.Second, f.cfg.MaxDelay)
	require.Equal(t, 10*time.Second, f.cfg.Timeout)
	require.Equal(t, 4, f.cfg.BatchConcurrency)
}
