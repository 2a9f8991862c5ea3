package rcache

import (
	"context"
	"fmt"
	"time"

	"afc-coordinator/pkg/ema"
	"afc-coordinator/pkg/healthstate"
)

// averagerWindowSize is the exponential-moving-average window, expressed
// in ticks, used for every rate/gauge tracked by Averager. Matches the
// Python original's _averager_worker window of 30 one-second samples.
const averagerWindowSize = 30

// Averager samples Rcache's moving-picture counters once a second into a
// set of exponential moving averages, so the Control Plane can report
// smoothed write rates and queue depths instead of instantaneous spikes.
// Grounded on rcache_service.py's _averager_worker.
type Averager struct {
	store  Store
	health *healthstate.State

	updateWriteRate *ema.EMA
	updateQueueLen  *ema.EMA
	precomputeRate  *ema.EMA
	scheduleLag     *ema.EMA

	queueLenFunc    func() int
	scheduleLagFunc func() time.Duration

	lastUpdateCount     int64
	lastPrecomputeCount int64
	precomputeCountFunc func() int64

	done chan struct{}
}

// NewAverager creates an Averager. queueLenFunc reports the current depth
// of the update dispatch queue; precomputeCountFunc reports the
// cumulative number of precomputations initiated so far (e.g.
// Precomputer.Count); scheduleLagFunc reports how far behind the
// invalidation/precompute schedule currently is. Any of the three may be
// nil, in which case that average stays at zero.
func NewAverager(
	store Store,
	health *healthstate.State,
	queueLenFunc func() int,
	precomputeCountFunc func() int64,
	scheduleLagFunc func() time.Duration,
) *Averager {
	return &Averager{
		store:               store,
		health:              health,
		updateWriteRate:     ema.New(averagerWindowSize, false),
		updateQueueLen:      ema.New(averagerWindowSize, false),
		precomputeRate:      ema.New(averagerWindowSize, false),
		scheduleLag:         ema.New(averagerWindowSize, false),
		queueLenFunc:        queueLenFunc,
		precomputeCountFunc: precomputeCountFunc,
		scheduleLagFunc:     scheduleLagFunc,
		done:                make(chan struct{}),
	}
}

// Run samples every tick (a const 1 second, matching the Python original)
// until ctx is cancelled or Close is called.
func (a *Averager) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.health.MarkNotServing(fmt.Sprintf("averager panicked: %v", r))
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			a.sample(ctx)
		}
	}
}

// Close stops Run.
func (a *Averager) Close() {
	close(a.done)
}

func (a *Averager) sample(ctx context.Context) {
	if count, err := a.store.CacheSize(ctx); err == nil {
		delta := count - a.lastUpdateCount
		if a.lastUpdateCount > 0 && delta >= 0 {
			a.updateWriteRate.Update(float64(delta))
		}
		a.lastUpdateCount = count
	}

	if a.queueLenFunc != nil {
		a.updateQueueLen.Update(float64(a.queueLenFunc()))
	}

	if a.precomputeCountFunc != nil {
		count := a.precomputeCountFunc()
		delta := count - a.lastPrecomputeCount
		if a.lastPrecomputeCount > 0 && delta >= 0 {
			a.precomputeRate.Update(float64(delta))
		}
		a.lastPrecomputeCount = count
	}

	if a.scheduleLagFunc != nil {
		a.scheduleLag.Update(a.scheduleLagFunc().Seconds())
	}
}

// AvgUpdateWriteRate returns the smoothed rate, in entries per second, at
// which the cache is being written to.
func (a *Averager) AvgUpdateWriteRate() float64 { return a.updateWriteRate.Value() }

// AvgUpdateQueueLen returns the smoothed depth of the update dispatch
// queue.
func (a *Averager) AvgUpdateQueueLen() float64 { return a.updateQueueLen.Value() }

// AvgPrecomputationRate returns the smoothed rate, in precomputations per
// second, at which invalid entries are being re-driven.
func (a *Averager) AvgPrecomputationRate() float64 { return a.precomputeRate.Value() }

// AvgScheduleLag returns the smoothed number of seconds the
// invalidation/precompute schedule is running behind.
func (a *Averager) AvgScheduleLag() float64 { return a.scheduleLag.Value() }
