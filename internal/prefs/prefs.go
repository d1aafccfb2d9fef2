// Package prefs holds the user's refresh preferences and persists them to
// the settings store.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricefeed/internal/kv"
)

// Key is the settings store key holding the preferences.
const Key = "pricefeed.preferences"

var (
	ErrInvalidCadence = errors.New("invalid refresh cadence")
	// ErrCorrupt is returned by Load alongside the defaults when the stored
	// preferences cannot be decoded.
	ErrCorrupt = errors.New("stored preferences are corrupt")
)

// Cadence is the polling interval, or Manual for no automatic polling.
type Cadence string

const (
	Manual   Cadence = "manual"
	Every15s Cadence = "15s"
	Every30s Cadence = "30s"
	Every1m  Cadence = "1m"
	Every2m  Cadence = "2m"
	Every5m  Cadence = "5m"
	Every10m Cadence = "10m"
	Every15m Cadence = "15m"
)

var intervals = map[Cadence]time.Duration{
	Manual:   0,
	Every15s: 15 * time.Second,
	Every30s: 30 * time.Second,
	Every1m:  time.Minute,
	Every2m:  2 * time.Minute,
	Every5m:  5 * time.Minute,
	Every10m: 10 * time.Minute,
	Every15m: 15 * time.Minute,
}

// Cadences lists the valid cadences, shortest first, Manual last.
func Cadences() []Cadence {
	return []Cadence{Every15s, Every30s, Every1m, Every2m, Every5m, Every10m, Every15m, Manual}
}

// ParseCadence accepts a cadence name ("1m") or any duration equal to one of
// the allowed intervals ("60s").
func ParseCadence(s string) (Cadence, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := intervals[Cadence(s)]; ok {
		return Cadence(s), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		for c, iv := range intervals {
			if iv == d && c != Manual {
				return c, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCadence, s)
}

func (c Cadence) Valid() bool {
	_, ok := intervals[c]
	return ok
}

// Interval returns the polling interval; zero for Manual.
func (c Cadence) Interval() time.Duration { return intervals[c] }

func (c Cadence) IsManual() bool { return c == Manual }

func (c Cadence) String() string { return string(c) }

func (c Cadence) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCadence, string(c))
	}
	return []byte(c), nil
}

func (c *Cadence) UnmarshalText(b []byte) error {
	parsed, err := ParseCadence(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Preferences configure the polling scheduler.
type Preferences struct {
	Cadence         Cadence `json:"cadence" yaml:"cadence"`
	ShowStaleness   bool    `json:"showStaleness" yaml:"show_staleness"`
	PauseWhenHidden bool    `json:"pauseWhenHidden" yaml:"pause_when_hidden"`
}

func Default() Preferences {
	return Preferences{Cadence: Every1m, ShowStaleness: true, PauseWhenHidden: true}
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Cadence         *Cadence
	ShowStaleness   *bool
	PauseWhenHidden *bool
}

// Apply merges patch into p.
func (p Preferences) Apply(patch Patch) (Preferences, error) {
	if patch.Cadence != nil {
		if !patch.Cadence.Valid() {
			return p, fmt.Errorf("%w: %q", ErrInvalidCadence, string(*patch.Cadence))
		}
		p.Cadence = *patch.Cadence
	}
	if patch.ShowStaleness != nil {
		p.ShowStaleness = *patch.ShowStaleness
	}
	if patch.PauseWhenHidden != nil {
		p.PauseWhenHidden = *patch.PauseWhenHidden
	}
	return p, nil
}

// Load reads the preferences from store. Absent preferences yield the
// defaults. Corrupt preferences yield the defaults and an error wrapping
// ErrCorrupt; fields missing from the stored blob keep their defaults.
func Load(ctx context.Context, store kv.Store) (Preferences, error) {
	b, ok, err := store.Get(ctx, Key)
	if err != nil {
		return Default(), fmt.Errorf("read preferences: %w", err)
	}
	if !ok {
		return Default(), nil
	}
	p := Default()
	if err := json.Unmarshal(b, &p); err != nil {
		return Default(), fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return p, nil
}

// Save persists p to store.
func Save(ctx context.Context, store kv.Store, p Preferences) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, Key, b); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}
