package pricecache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pricefeed/internal/kv"
	"pricefeed/internal/pricecache"
)

func TestMirror_SaveLoad(t *testing.T) {
	t.Parallel()

	// Arrange
	store := kv.NewMemory()
	mirror := pricecache.NewMirror(store, nil)
	base := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	c := pricecache.New()
	c.Set("AAPL", entry(t, "AAPL", base))
	c.Set("MSFT", entry(t, "MSFT", base.Add(time.Second)))

	// Act
	written, err := mirror.Save(t.Context(), c)
	require.NoError(t, err)
	loaded, err := mirror.Load(t.Context())

	// Assert: most recently inserted first, display fields re-derived.
	require.NoError(t, err)
	require.True(t, written)
	require.Len(t, loaded, 2)
	require.Equal(t, "MSFT", loaded[0].Symbol)
	require.Equal(t, "AAPL", loaded[1].Symbol)
	require.True(t, loaded[1].Entry.InsertedAt.Equal(base))
	require.Equal(t, "USD", loaded[1].Entry.Quote.DisplayCurrency)
	require.Equal(t, "yahoo", loaded[1].Entry.Source)
}

func TestMirror_EmptyCacheNeverWritten(t *testing.T) {
	t.Parallel()

	// Arrange: a mirror that already holds data.
	store := kv.NewMemory()
	mirror := pricecache.NewMirror(store, nil)
	c := pricecache.New()
	c.Set("AAPL", entry(t, "AAPL", time.Now()))
	_, err := mirror.Save(t.Context(), c)
	require.NoError(t, err)

	// Act
	c.Clear()
	written, err := mirror.Save(t.Context(), c)

	// Assert: the previous mirror survives.
	require.NoError(t, err)
	require.False(t, written)
	loaded, err := mirror.Load(t.Context())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestMirror_SkipsCorruptRecords(t *testing.T) {
	t.Parallel()

	// Arrange
	store := kv.NewMemory()
	require.NoError(t, store.Set(t.Context(), pricecache.MirrorKey, []byte(`{
		"AAPL": {"price": "150", "currency": "USD", "timestamp": 1741100400000, "source": "yahoo", "insertedAt": 1741100400000},
		"BAD": {"price": "abc", "currency": "USD", "timestamp": 1741100400000},
		"ZERO": {"price": "0", "currency": "USD", "timestamp": 1741100400000},
		"WORSE": 42
	}`)))
	mirror := pricecache.NewMirror(store, nil)

	// Act
	loaded, err := mirror.Load(t.Context())

	// Assert
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "AAPL", loaded[0].Symbol)
}

func TestMirror_Absent(t *testing.T) {
	t.Parallel()

	loaded, err := pricecache.NewMirror(kv.NewMemory(), nil).Load(t.Context())
	require.NoError(t, err)
	require.Empty(t, loaded)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}
func (failingStore) Set(context.Context, string, []byte) error { return errors.New("disk gone") }

func TestMirror_StoreErrors(t *testing.T) {
	t.Parallel()

	mirror := pricecache.NewMirror(failingStore{}, nil)
	c := pricecache.New()
	c.Set("AAPL", entry(t, "AAPL", time.Now()))

	_, err := mirror.Save(t.Context(), c)
	require.ErrorContains(t, err, "disk gone")
	_, err = mirror.Load(t.Context())
	require.ErrorContains(t, err, "disk gone")
}
