package rcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"afc-coordinator/pkg/healthstate"
	"afc-coordinator/pkg/logger"
)

// PrecomputeFunc re-drives a single invalid entry's AFC Inquiry Request
// through the normal compute path. It should return nil on success (the
// entry will be revalidated by the normal update path when the result
// comes back) or an error, in which case the Precomputer deletes the
// entry outright rather than leave a permanently stale row, matching the
// Python original's _single_precompute_worker behavior on a failed POST.
type PrecomputeFunc func(ctx context.Context, entry *Entry) error

// Precomputer periodically re-drives invalid cache entries up to a quota
// of requests in flight, so popular APs get a fresh response ready before
// their next inquiry rather than falling back to a live compute. Grounded
// on rcache_service.py's _precomputer_worker / _single_precompute_worker.
type Precomputer struct {
	store   Store
	compute PrecomputeFunc
	health  *healthstate.State

	mu    sync.Mutex
	quota int

	wake chan struct{}
	done chan struct{}

	count      int64
	inFlightWG sync.WaitGroup
}

// NewPrecomputer creates a Precomputer with the given initial quota of
// concurrently in-flight precomputations. A nil compute disables
// precomputation entirely (Run returns immediately), matching the Python
// original's behavior when no AFC request URL is configured.
func NewPrecomputer(store Store, compute PrecomputeFunc, quota int, health *healthstate.State) *Precomputer {
	return &Precomputer{
		store:   store,
		compute: compute,
		health:  health,
		quota:   quota,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// SetQuota changes the maximum number of concurrently in-flight
// precomputations.
func (p *Precomputer) SetQuota(quota int) {
	p.mu.Lock()
	p.quota = quota
	p.mu.Unlock()
	p.Wake()
}

// Quota returns the current precomputation quota.
func (p *Precomputer) Quota() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quota
}

// Count returns the cumulative number of precomputations initiated.
func (p *Precomputer) Count() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Wake nudges the Precomputer to check for newly invalidated entries
// without waiting for its next poll tick.
func (p *Precomputer) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run drives the precompute loop until ctx is cancelled or Close is
// called. If compute is nil, Run is a no-op, matching the Python
// original's immediate return when no AFC request URL is configured.
func (p *Precomputer) Run(ctx context.Context, pollInterval time.Duration) {
	if p.compute == nil {
		return
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	defer func() {
		if r := recover(); r != nil {
			p.health.MarkNotServing(fmt.Sprintf("precomputer panicked: %v", r))
			logger.Log.Error("rcache precomputer aborted", "panic", r)
		}
	}()

	if err := p.store.ResetPrecomputations(ctx); err != nil {
		logger.Log.Error("rcache precomputer: reset failed", "error", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-p.wake:
			p.tick(ctx)
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Close stops Run once its current tick finishes.
func (p *Precomputer) Close() {
	close(p.done)
}

func (p *Precomputer) tick(ctx context.Context) {
	if !waitForSwitch(ctx, p.done, p.store, SwitchPrecomputationEnabled) {
		return
	}

	inFlight, err := p.store.NumPrecomputing(ctx)
	if err != nil {
		logger.Log.Error("rcache precomputer: count in-flight failed", "error", err)
		return
	}

	remaining := p.Quota() - int(inFlight)
	if remaining <= 0 {
		return
	}

	entries, err := p.store.InvalidEntries(ctx, remaining)
	if err != nil {
		logger.Log.Error("rcache precomputer: fetch invalid entries failed", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	p.Wake()

	for _, e := range entries {
		if err := p.store.MarkPrecomputing(ctx, e.Fingerprint); err != nil {
			logger.Log.Warn("rcache precomputer: mark precomputing failed", "fingerprint", e.Fingerprint, "error", err)
			continue
		}

		p.mu.Lock()
		p.count++
		p.mu.Unlock()

		p.inFlightWG.Add(1)
		go p.precomputeOne(ctx, e)
	}
}

func (p *Precomputer) precomputeOne(ctx context.Context, e *Entry) {
	defer p.inFlightWG.Done()

	if err := p.compute(ctx, e); err != nil {
		logger.Log.Error("rcache precomputer: subtask failed, dropping entry",
			"fingerprint", e.Fingerprint, "error", err)
		if delErr := p.store.Delete(ctx, e.Fingerprint); delErr != nil {
			logger.Log.Error("rcache precomputer: delete after failure failed",
				"fingerprint", e.Fingerprint, "error", delErr)
		}
	}
}
