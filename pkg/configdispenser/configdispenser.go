// Package configdispenser serves AFC Config documents by ruleset ID,
// read-through caching them ahead of the relational store and rewriting
// derived (TEST_/DEMO_) regions to their base region before a copy leaves
// the dispenser. Grounded on pkg/cache's SolverCache TTL-wrapper idiom
// (Get/Set/Invalidate around a generic cache.Cache), re-keyed from
// (graph hash, algorithm) to ruleset ID, and on the Python
// AfcConfigDispenser.get_config method for the read-through/rewrite order.
package configdispenser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/pkg/cache"
)

// DefaultTTL is how long a fetched Config is cached before the store is
// consulted again.
const DefaultTTL = 5 * time.Minute

func cacheKey(rulesetID string) string {
	return fmt.Sprintf("afcconfig:%s", rulesetID)
}

// Dispenser serves AFC Config documents, caching them ahead of a
// ConfigStore and applying the derived-region rewrite on every dispatch.
type Dispenser struct {
	store      afcmodels.ConfigStore
	cache      cache.Cache
	defaultTTL time.Duration
}

// New wraps a ConfigStore with a read-through cache.Cache. defaultTTL <= 0
// falls back to DefaultTTL.
func New(store afcmodels.ConfigStore, c cache.Cache, defaultTTL time.Duration) *Dispenser {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Dispenser{store: store, cache: c, defaultTTL: defaultTTL}
}

// Get returns the Config for rulesetID, serving from cache when present and
// falling back to the backing store on a miss. When rulesetID names a
// derived region, the returned Config has its region rewritten for dispatch
// (see rewriteForDispatch); the cached copy retains the original,
// unrewritten region so repeated rewrites don't compound.
func (d *Dispenser) Get(ctx context.Context, rulesetID string) (*afcmodels.Config, error) {
	cfg, err := d.getCached(ctx, rulesetID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg, err = d.fetchAndCache(ctx, rulesetID)
		if err != nil {
			return nil, err
		}
	}

	return rewriteForDispatch(cfg, rulesetID), nil
}

func (d *Dispenser) getCached(ctx context.Context, rulesetID string) (*afcmodels.Config, error) {
	data, err := d.cache.Get(ctx, cacheKey(rulesetID))
	if err != nil {
		if err == cache.ErrKeyNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("configdispenser: cache get failed: %w", err)
	}

	var cfg afcmodels.Config
	if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
		// Corrupted cache entry: treat as a miss and let the caller refetch.
		_ = d.cache.Delete(ctx, cacheKey(rulesetID))
		return nil, nil
	}
	return &cfg, nil
}

func (d *Dispenser) fetchAndCache(ctx context.Context, rulesetID string) (*afcmodels.Config, error) {
	cfg, err := d.store.Config(ctx, rulesetID)
	if err != nil {
		return nil, fmt.Errorf("configdispenser: store fetch failed: %w", err)
	}
	if cfg == nil {
		return nil, nil
	}
	cfg.FetchedAt = time.Now()

	data, err := json.Marshal(cfg)
	if err == nil {
		_ = d.cache.Set(ctx, cacheKey(rulesetID), data, d.defaultTTL)
	}

	return cfg, nil
}

// Invalidate evicts the cached Config for rulesetID so the next Get
// re-reads the backing store.
func (d *Dispenser) Invalidate(ctx context.Context, rulesetID string) error {
	return d.cache.Delete(ctx, cacheKey(rulesetID))
}

// rewriteForDispatch returns a copy of cfg with its RegionStr rewritten per
// afcmodels.RewriteRegion, if rulesetID names a derived region.
func rewriteForDispatch(cfg *afcmodels.Config, rulesetID string) *afcmodels.Config {
	region, rewritten := afcmodels.RewriteRegion(rulesetID)
	if !rewritten || cfg == nil {
		return cfg
	}
	out := *cfg
	out.RegionStr = region
	return &out
}
