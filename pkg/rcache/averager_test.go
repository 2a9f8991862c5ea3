package rcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"afc-coordinator/pkg/healthstate"
)

func TestAverager_SamplesQueueLenImmediately(t *testing.T) {
	store := NewMemoryStore()
	queueLen := 4

	avg := NewAverager(store, healthstate.New(), func() int { return queueLen }, nil, nil)
	avg.sample(context.Background())

	assert.Greater(t, avg.AvgUpdateQueueLen(), 0.0)
}

func TestAverager_TracksPrecomputeRate(t *testing.T) {
	store := NewMemoryStore()
	var count int64 = 1

	avg := NewAverager(store, healthstate.New(), nil, func() int64 { return count }, nil)
	avg.sample(context.Background())
	count = 5
	avg.sample(context.Background())

	assert.Greater(t, avg.AvgPrecomputationRate(), 0.0)
}

func TestAverager_RunStopsOnClose(t *testing.T) {
	store := NewMemoryStore()
	avg := NewAverager(store, healthstate.New(), nil, nil, nil)

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		avg.Run(ctx)
		close(done)
	}()

	avg.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after Close")
	}
}

func TestAverager_ScheduleLagTracksProvidedFunc(t *testing.T) {
	store := NewMemoryStore()
	avg := NewAverager(store, healthstate.New(), nil, nil, func() time.Duration { return 3 * time.Second })

	avg.sample(context.Background())

	assert.Greater(t, avg.AvgScheduleLag(), 0.0)
}
