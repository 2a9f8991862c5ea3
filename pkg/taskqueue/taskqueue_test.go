package taskqueue_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"afc-coordinator/pkg/taskqueue"
)

func skipIfNoRedis(t *testing.T) {
	t.Helper()
	if os.Getenv("REDIS_TEST_ADDR") == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis tests")
	}
}

func newTestQueue(t *testing.T) *taskqueue.Queue {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_TEST_ADDR")})
	t.Cleanup(func() { client.Close() })
	return taskqueue.New(client, time.Minute, time.Second)
}

func TestQueue_SubmitAndReserve(t *testing.T) {
	skipIfNoRedis(t)
	q := newTestQueue(t)
	ctx := context.Background()

	task := &taskqueue.Task{
		TaskID:      "task-submit-1",
		Fingerprint: "fp-abc",
		RulesetID:   "US_47_CFR_PART_15_SUBPART_E",
		RequestData: []byte(`{"req":true}`),
	}
	if err := q.Submit(ctx, task); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got, err := q.Reserve(ctx)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if got == nil || got.TaskID != "task-submit-1" {
		t.Fatalf("expected to reserve task-submit-1, got %+v", got)
	}
}

func TestQueue_ReserveTimesOutWithNoTask(t *testing.T) {
	skipIfNoRedis(t)
	q := newTestQueue(t)

	got, err := q.Reserve(context.Background())
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil task on empty queue, got %+v", got)
	}
}

func TestQueue_ReportAndFetchResult(t *testing.T) {
	skipIfNoRedis(t)
	q := newTestQueue(t)
	ctx := context.Background()

	result := &taskqueue.Result{TaskID: "task-result-1", ResponseData: []byte(`{"ok":true}`)}
	if err := q.ReportResult(ctx, result); err != nil {
		t.Fatalf("ReportResult() error = %v", err)
	}

	got, err := q.Result(ctx, "task-result-1")
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if string(got.ResponseData) != `{"ok":true}` {
		t.Errorf("unexpected response data: %s", got.ResponseData)
	}
}

func TestQueue_ResultNotReady(t *testing.T) {
	skipIfNoRedis(t)
	q := newTestQueue(t)

	_, err := q.Result(context.Background(), "no-such-task")
	if err != taskqueue.ErrNotReady {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}
