package rcache

import (
	"context"
	"fmt"
	"math"

	"afc-coordinator/pkg/healthstate"
	"afc-coordinator/pkg/logger"
)

// InvalidateRequest asks for every entry (AllRulesets == true) or the
// entries under specific rulesets to be invalidated.
type InvalidateRequest struct {
	AllRulesets bool
	RulesetIDs  []string
}

// SpatialInvalidateRequest asks for every valid entry whose coordinates
// fall within maxLinkDistanceKM of one of the named tiles to be
// invalidated. Grounded on the Python original's tile-dilation math: a
// tile is grown by the maximum AP-FS link distance (converted to degrees)
// before the spatial query runs, so an AP just outside a changed tile but
// within range of it is still invalidated.
type SpatialInvalidateRequest struct {
	Tiles []LatLonRect
}

// Invalidator drains invalidation requests against a Store, chunking full
// and per-ruleset invalidation to InvalidationChunkSize rows per pass so a
// single huge invalidation doesn't hold a long-running transaction.
// Grounded on rcache_service.py's _invalidator_worker.
type Invalidator struct {
	store                Store
	maxMaxLinkDistanceKM func(ctx context.Context) float64
	health               *healthstate.State

	requests chan any
	done     chan struct{}
}

// NewInvalidator creates an Invalidator. maxMaxLinkDistanceKM is called
// once per spatial invalidation batch to get the current maximum AP-FS
// link distance across all active rulesets; pass a func that always
// returns DefaultMaxMaxLinkDistanceKM if no ruleset/config service is
// configured.
func NewInvalidator(store Store, maxMaxLinkDistanceKM func(ctx context.Context) float64, health *healthstate.State) *Invalidator {
	return &Invalidator{
		store:                store,
		maxMaxLinkDistanceKM: maxMaxLinkDistanceKM,
		health:               health,
		requests:             make(chan any, 64),
		done:                 make(chan struct{}),
	}
}

// InvalidateAll enqueues a request to invalidate every entry.
func (inv *Invalidator) InvalidateAll() {
	inv.requests <- InvalidateRequest{AllRulesets: true}
}

// InvalidateRulesets enqueues a request to invalidate entries under the
// given rulesets.
func (inv *Invalidator) InvalidateRulesets(rulesetIDs []string) {
	inv.requests <- InvalidateRequest{RulesetIDs: rulesetIDs}
}

// InvalidateTiles enqueues a spatial invalidation request.
func (inv *Invalidator) InvalidateTiles(tiles []LatLonRect) {
	inv.requests <- SpatialInvalidateRequest{Tiles: tiles}
}

// Run drains the request queue until ctx is cancelled or Close is called.
func (inv *Invalidator) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			inv.health.MarkNotServing(fmt.Sprintf("invalidator panicked: %v", r))
			logger.Log.Error("rcache invalidator aborted", "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-inv.done:
			return
		case req := <-inv.requests:
			inv.process(ctx, req)
		}
	}
}

// Close stops Run once its current request finishes.
func (inv *Invalidator) Close() {
	close(inv.done)
}

func (inv *Invalidator) process(ctx context.Context, req any) {
	if !waitForSwitch(ctx, inv.done, inv.store, SwitchInvalidationEnabled) {
		return
	}

	switch r := req.(type) {
	case InvalidateRequest:
		if r.AllRulesets {
			inv.invalidateAllChunked(ctx)
		} else {
			for _, rulesetID := range r.RulesetIDs {
				inv.invalidateRulesetChunked(ctx, rulesetID)
			}
		}
	case SpatialInvalidateRequest:
		inv.spatialInvalidate(ctx, r.Tiles)
	}
}

func (inv *Invalidator) invalidateAllChunked(ctx context.Context) {
	total := 0
	for {
		n, err := inv.store.InvalidateAll(ctx, InvalidationChunkSize)
		if err != nil {
			logger.Log.Error("rcache invalidate all failed", "error", err)
			return
		}
		total += n
		if n < InvalidationChunkSize {
			break
		}
	}
	logger.Log.Info("rcache complete invalidation", "invalidated", total)
}

func (inv *Invalidator) invalidateRulesetChunked(ctx context.Context, rulesetID string) {
	total := 0
	for {
		n, err := inv.store.InvalidateRuleset(ctx, rulesetID, InvalidationChunkSize)
		if err != nil {
			logger.Log.Error("rcache invalidate ruleset failed", "ruleset_id", rulesetID, "error", err)
			return
		}
		total += n
		if n < InvalidationChunkSize {
			break
		}
	}
	logger.Log.Info("rcache ruleset invalidation", "ruleset_id", rulesetID, "invalidated", total)
}

func (inv *Invalidator) spatialInvalidate(ctx context.Context, tiles []LatLonRect) {
	maxKM := DefaultMaxMaxLinkDistanceKM
	if inv.maxMaxLinkDistanceKM != nil {
		maxKM = inv.maxMaxLinkDistanceKM(ctx)
	}
	maxDeg := maxKM * DegreesPerKM

	for _, tile := range tiles {
		for _, dilated := range dilateTile(tile, maxDeg) {
			n, err := inv.store.SpatialInvalidate(ctx, dilated)
			if err != nil {
				logger.Log.Error("rcache spatial invalidate failed", "error", err)
				continue
			}
			logger.Log.Info("rcache spatial invalidation", "tile", tile, "clearance_km", maxKM, "invalidated", n)
		}
	}
}

// dilateTile grows tile by maxDeg degrees of latitude, and by a
// longitude-adjusted amount so the physical clearance stays roughly
// constant at high latitudes, matching the Python original's lon_reduction
// computation (cos of the tile's mid-latitude, floored at 1/180 to avoid a
// division blow-up near the poles). The dilated longitude span is then
// clamped to [-180, 180] by splitAntimeridian, since growing a tile near
// the date line can otherwise push a bound past the wrap point.
func dilateTile(tile LatLonRect, maxDeg float64) []LatLonRect {
	midLat := (tile.MinLat + tile.MaxLat) / 2
	lonReduction := math.Max(math.Cos(midLat*math.Pi/180), 1.0/180)
	lonDilation := maxDeg / lonReduction

	return splitAntimeridian(LatLonRect{
		MinLat: tile.MinLat - maxDeg,
		MaxLat: tile.MaxLat + maxDeg,
		MinLon: tile.MinLon - lonDilation,
		MaxLon: tile.MaxLon + lonDilation,
	})
}

// splitAntimeridian clamps rect's longitude bounds to [-180, 180]. When
// dilation pushed a bound past the wrap point, the overflow is re-emitted
// as a second rectangle on the opposite side of the date line instead of
// being silently dropped.
func splitAntimeridian(rect LatLonRect) []LatLonRect {
	switch {
	case rect.MinLon < -180:
		wrapped := LatLonRect{MinLat: rect.MinLat, MaxLat: rect.MaxLat, MinLon: rect.MinLon + 360, MaxLon: 180}
		rect.MinLon = -180
		return []LatLonRect{rect, wrapped}
	case rect.MaxLon > 180:
		wrapped := LatLonRect{MinLat: rect.MinLat, MaxLat: rect.MaxLat, MinLon: -180, MaxLon: rect.MaxLon - 360}
		rect.MaxLon = 180
		return []LatLonRect{rect, wrapped}
	default:
		return []LatLonRect{rect}
	}
}
