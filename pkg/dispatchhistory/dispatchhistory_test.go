package dispatchhistory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"afc-coordinator/pkg/dispatchhistory"
)

func TestMemoryRepository_CreateAndComplete(t *testing.T) {
	repo := dispatchhistory.NewMemoryRepository()
	ctx := context.Background()

	rec := &dispatchhistory.Record{
		SerialNumber: "SN-1",
		Fingerprint:  "fp-abc",
		RulesetID:    "US_47_CFR_PART_15_SUBPART_E",
		TaskID:       "task-1",
		RequestData:  []byte(`{"foo":"bar"}`),
		Outcome:      dispatchhistory.OutcomeCompleted,
		DispatchedAt: time.Now().Add(-time.Second),
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected Create to assign an ID")
	}

	if err := repo.Complete(ctx, "task-1", dispatchhistory.OutcomeCompleted, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set after Complete")
	}
	if got.DurationMs <= 0 {
		t.Errorf("expected positive DurationMs, got %d", got.DurationMs)
	}
}

func TestMemoryRepository_CompleteUnknownTaskReturnsNotFound(t *testing.T) {
	repo := dispatchhistory.NewMemoryRepository()
	err := repo.Complete(context.Background(), "no-such-task", dispatchhistory.OutcomeError, nil)
	if !errors.Is(err, dispatchhistory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepository_GetByIDUnknownReturnsNotFound(t *testing.T) {
	repo := dispatchhistory.NewMemoryRepository()
	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, dispatchhistory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepository_ListBySerialFiltersAndPaginates(t *testing.T) {
	repo := dispatchhistory.NewMemoryRepository()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		outcome := dispatchhistory.OutcomeCompleted
		if i%2 == 0 {
			outcome = dispatchhistory.OutcomeError
		}
		rec := &dispatchhistory.Record{
			SerialNumber: "SN-list",
			Fingerprint:  "fp",
			RulesetID:    "US_47_CFR_PART_15_SUBPART_E",
			TaskID:       "task-list-" + string(rune('a'+i)),
			Outcome:      outcome,
			DispatchedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	results, total, err := repo.ListBySerial(ctx, "SN-list", &dispatchhistory.ListOptions{
		Limit:  10,
		Filter: &dispatchhistory.ListFilter{Outcome: dispatchhistory.OutcomeError},
	})
	if err != nil {
		t.Fatalf("ListBySerial() error = %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 error-outcome records, got %d", total)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].DispatchedAt.Before(results[i].DispatchedAt) {
			t.Error("expected results ordered most-recent first")
		}
	}
}

func TestMemoryRepository_GetStats(t *testing.T) {
	repo := dispatchhistory.NewMemoryRepository()
	ctx := context.Background()

	now := time.Now()
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	for i, d := range durations {
		rec := &dispatchhistory.Record{
			SerialNumber: "SN-stats",
			TaskID:       "task-stats-" + string(rune('a'+i)),
			Outcome:      dispatchhistory.OutcomeCompleted,
			DispatchedAt: now.Add(-time.Hour),
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := repo.Complete(ctx, rec.TaskID, dispatchhistory.OutcomeCompleted, nil); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		_ = d
	}

	stats, err := repo.GetStats(ctx, "SN-stats", nil, nil)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected Total = 3, got %d", stats.Total)
	}
	if stats.CountByOutcome[dispatchhistory.OutcomeCompleted] != 3 {
		t.Errorf("expected 3 completed outcomes, got %d", stats.CountByOutcome[dispatchhistory.OutcomeCompleted])
	}
	if stats.AverageDurationMs <= 0 {
		t.Errorf("expected positive average duration, got %f", stats.AverageDurationMs)
	}
}
