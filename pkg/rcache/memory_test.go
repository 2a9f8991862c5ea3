package rcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpdateAndLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Update(ctx, []*Entry{{Fingerprint: "fp-1", SerialNumber: "AP-1"}})
	require.NoError(t, err)

	result, err := store.Lookup(ctx, []string{"fp-1", "fp-missing"})
	require.NoError(t, err)
	require.Contains(t, result, "fp-1")
	assert.NotContains(t, result, "fp-missing")
	assert.Equal(t, "AP-1", result["fp-1"].SerialNumber)
}

func TestMemoryStore_LookupSkipsInvalidEntries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, []*Entry{{Fingerprint: "fp-1"}}))
	n, err := store.InvalidateAll(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result, err := store.Lookup(ctx, []string{"fp-1"})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestMemoryStore_InvalidateRulesetOnlyMatchesRuleset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, []*Entry{
		{Fingerprint: "fp-1", ConfigRuleset: "US_47_GHZ"},
		{Fingerprint: "fp-2", ConfigRuleset: "US_6_GHZ"},
	}))

	n, err := store.InvalidateRuleset(ctx, "US_47_GHZ", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	invalid, err := store.NumInvalidEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), invalid)
}

func TestMemoryStore_SpatialInvalidateMatchesRect(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, []*Entry{
		{Fingerprint: "fp-in", Lat: 37.5, Lon: -122.5},
		{Fingerprint: "fp-out", Lat: 10.0, Lon: 10.0},
	}))

	n, err := store.SpatialInvalidate(ctx, LatLonRect{MinLat: 37, MaxLat: 38, MinLon: -123, MaxLon: -122})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	result, err := store.Lookup(ctx, []string{"fp-in", "fp-out"})
	require.NoError(t, err)
	assert.NotContains(t, result, "fp-in")
	assert.Contains(t, result, "fp-out")
}

func TestMemoryStore_PrecomputeLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, []*Entry{{Fingerprint: "fp-1"}}))
	_, err := store.InvalidateAll(ctx, 10)
	require.NoError(t, err)

	invalid, err := store.InvalidEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, invalid, 1)

	require.NoError(t, store.MarkPrecomputing(ctx, "fp-1"))

	inFlight, err := store.NumPrecomputing(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inFlight)

	require.NoError(t, store.ResetPrecomputations(ctx))

	inFlight, err = store.NumPrecomputing(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inFlight)

	invalid, err = store.InvalidEntries(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, invalid, 1)
}

func TestMemoryStore_DeleteRemovesEntry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, []*Entry{{Fingerprint: "fp-1"}}))
	require.NoError(t, store.Delete(ctx, "fp-1"))

	size, err := store.CacheSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestMemoryStore_SwitchStateDefaultsToEnabled(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	enabled, err := store.SwitchState(ctx, SwitchPrecomputationEnabled)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, store.SetSwitchState(ctx, SwitchPrecomputationEnabled, false))

	enabled, err = store.SwitchState(ctx, SwitchPrecomputationEnabled)
	require.NoError(t, err)
	assert.False(t, enabled)
}
