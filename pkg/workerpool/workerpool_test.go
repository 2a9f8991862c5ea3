package workerpool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"afc-coordinator/pkg/workerpool"
)

func TestPool_RunsSubmittedJobs(t *testing.T) {
	p := workerpool.New(2, 4)
	defer p.Close()

	var count atomic.Int32
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := p.Submit(ctx, func(ctx context.Context) {
			count.Add(1)
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	deadline := time.After(time.Second)
	for count.Load() < 10 {
		select {
		case <-deadline:
			t.Fatalf("expected 10 jobs to run, got %d", count.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPool_SubmitAfterCloseReturnsErrClosed(t *testing.T) {
	p := workerpool.New(1, 1)
	p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) {})
	if err != workerpool.ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestPool_TrySubmitAfterCloseReturnsFalse(t *testing.T) {
	p := workerpool.New(1, 1)
	p.Close()

	if p.TrySubmit(func(ctx context.Context) {}) {
		t.Error("expected TrySubmit to fail after Close")
	}
}

func TestPool_SubmitRespectsContextCancellation(t *testing.T) {
	p := workerpool.New(1, 1)
	defer p.Close()

	// Fill the single worker and the single queue slot so the next
	// Submit has no room and must wait on ctx.
	block := make(chan struct{})
	_ = p.Submit(context.Background(), func(ctx context.Context) { <-block })
	_ = p.Submit(context.Background(), func(ctx context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Submit(ctx, func(ctx context.Context) {})
	close(block)
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}
