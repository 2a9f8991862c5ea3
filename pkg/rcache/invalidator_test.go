package rcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afc-coordinator/pkg/healthstate"
)

func newTestInvalidator(t *testing.T, store Store) (*Invalidator, func()) {
	t.Helper()
	health := healthstate.New()
	inv := NewInvalidator(store, func(context.Context) float64 { return DefaultMaxMaxLinkDistanceKM }, health)

	ctx, cancel := context.WithCancel(context.Background())
	go inv.Run(ctx)

	return inv, func() {
		inv.Close()
		cancel()
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestInvalidator_InvalidateAllMarksEveryEntry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, []*Entry{{Fingerprint: "fp-1"}, {Fingerprint: "fp-2"}}))

	inv, stop := newTestInvalidator(t, store)
	defer stop()

	inv.InvalidateAll()

	waitUntil(t, time.Second, func() bool {
		n, _ := store.NumInvalidEntries(ctx)
		return n == 2
	})
}

func TestInvalidator_InvalidateRulesetsOnlyAffectsNamedRuleset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, []*Entry{
		{Fingerprint: "fp-1", ConfigRuleset: "US_47_GHZ"},
		{Fingerprint: "fp-2", ConfigRuleset: "US_6_GHZ"},
	}))

	inv, stop := newTestInvalidator(t, store)
	defer stop()

	inv.InvalidateRulesets([]string{"US_47_GHZ"})

	waitUntil(t, time.Second, func() bool {
		n, _ := store.NumInvalidEntries(ctx)
		return n == 1
	})
}

func TestInvalidator_InvalidateTilesDilatesByMaxLinkDistance(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, []*Entry{
		{Fingerprint: "fp-near", Lat: 37.01, Lon: -122.01},
	}))

	inv, stop := newTestInvalidator(t, store)
	defer stop()

	inv.InvalidateTiles([]LatLonRect{{MinLat: 37.0, MaxLat: 37.0, MinLon: -122.0, MaxLon: -122.0}})

	waitUntil(t, time.Second, func() bool {
		n, _ := store.NumInvalidEntries(ctx)
		return n == 1
	})
}

func TestInvalidator_WaitsWhileInvalidationSwitchDisabled(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, []*Entry{{Fingerprint: "fp-1"}}))
	require.NoError(t, store.SetSwitchState(ctx, SwitchInvalidationEnabled, false))

	inv, stop := newTestInvalidator(t, store)
	defer stop()

	inv.InvalidateAll()

	time.Sleep(50 * time.Millisecond)
	n, _ := store.NumInvalidEntries(ctx)
	assert.Equal(t, int64(0), n, "invalidation must not run while the switch is disabled")

	require.NoError(t, store.SetSwitchState(ctx, SwitchInvalidationEnabled, true))
	waitUntil(t, 2*time.Second, func() bool {
		n, _ := store.NumInvalidEntries(ctx)
		return n == 1
	})
}

func TestDilateTile_GrowsByDegreesAndLongitudeReduction(t *testing.T) {
	tile := LatLonRect{MinLat: 0, MaxLat: 0, MinLon: 0, MaxLon: 0}
	rects := dilateTile(tile, 1.0)

	require.Len(t, rects, 1)
	dilated := rects[0]
	assert.Equal(t, -1.0, dilated.MinLat)
	assert.Equal(t, 1.0, dilated.MaxLat)
	assert.InDelta(t, -1.0, dilated.MinLon, 1e-9)
	assert.InDelta(t, 1.0, dilated.MaxLon, 1e-9)
}

func TestDilateTile_ReducesLongitudeSpreadAtHighLatitude(t *testing.T) {
	tile := LatLonRect{MinLat: 60, MaxLat: 60, MinLon: 0, MaxLon: 0}
	rects := dilateTile(tile, 1.0)

	require.Len(t, rects, 1)
	assert.Greater(t, rects[0].MaxLon, 1.0)
}

func TestDilateTile_SplitsAtAntimeridian(t *testing.T) {
	tile := LatLonRect{MinLat: 0, MaxLat: 0, MinLon: 179.5, MaxLon: 179.9}
	rects := dilateTile(tile, 1.0)

	require.Len(t, rects, 2)
	assert.LessOrEqual(t, rects[0].MaxLon, 180.0)
	assert.GreaterOrEqual(t, rects[0].MinLon, -180.0)
	assert.LessOrEqual(t, rects[1].MaxLon, 180.0)
	assert.GreaterOrEqual(t, rects[1].MinLon, -180.0)
	assert.Less(t, rects[1].MinLon, 0.0)
}
