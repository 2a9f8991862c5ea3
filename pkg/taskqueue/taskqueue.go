// Package taskqueue submits dispatched AFC Engine sub-requests to a pool of
// compute workers and lets them report completion, replacing the Python
// original's Celery-based afcworker.run task. No Celery-compatible task
// library exists anywhere in the corpus, so the already-wired go-redis
// client (the same driver pkg/cache's RedisCache uses for caching) is
// reused as a plain fire-and-forget list queue: Submit LPUSHes a Task,
// workers BRPOP it, and the caller polls a completion key (Result).
// Grounded on original_source/src/afc-packages/afcworker/afc_worker.py's
// task payload shape (task ID, content hash, runtime options, history
// directory) re-expressed as a JSON-serializable Go struct.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis list new tasks are pushed onto and workers pop from.
const QueueKey = "afc:task_queue"

func resultKey(taskID string) string {
	return fmt.Sprintf("afc:task_result:%s", taskID)
}

// ErrNotReady indicates a task's result has not yet been reported.
var ErrNotReady = errors.New("taskqueue: result not ready")

// Task is one unit of dispatched work, serialized as JSON onto the queue.
// The field set and JSON tags mirror afc_worker.py's run() keyword
// arguments field-for-field, so a real out-of-process compute worker can
// consume it unchanged: prot/host/port name the object store a worker
// reads config_path/history_dir from, and rcache_queue is the bus reply-to
// queue the worker must publish its Result to.
type Task struct {
	Prot        string `json:"prot"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	RequestType string `json:"request_type"`
	TaskID      string `json:"task_id"`
	Fingerprint string `json:"hash_val"`
	RulesetID   string `json:"ruleset_id"`
	ConfigPath  string `json:"config_path"`
	HistoryDir  string `json:"history_dir,omitempty"`
	RuntimeOpts uint32 `json:"runtime_opts"`
	Mntroot     string `json:"mntroot"`

	// ResponseQueue is the dispatching Coordinator's private bus queue
	// (bus.Correlator.QueueName) a worker must publish its Result to so
	// the correlated Await call can match it back to this Task.
	ResponseQueue string `json:"rcache_queue"`

	RequestData []byte `json:"request_str"`
	ConfigData  []byte `json:"config_str"`

	// Deadline is RFC3339-formatted so non-Go workers can parse it
	// without a Go-specific time encoding.
	Deadline string `json:"deadline,omitempty"`
}

// Result is what a worker reports back after processing a Task.
type Result struct {
	TaskID       string `json:"task_id"`
	ResponseData []byte `json:"response_data,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Queue submits Tasks to and retrieves Results from a Redis-backed list.
type Queue struct {
	client      *redis.Client
	resultTTL   time.Duration
	blockPeriod time.Duration
}

// New wraps an existing *redis.Client. resultTTL bounds how long a
// completed Result survives before expiring; blockPeriod bounds how long a
// single Reserve call waits for a task before returning.
func New(client *redis.Client, resultTTL, blockPeriod time.Duration) *Queue {
	if resultTTL <= 0 {
		resultTTL = 10 * time.Minute
	}
	if blockPeriod <= 0 {
		blockPeriod = 5 * time.Second
	}
	return &Queue{client: client, resultTTL: resultTTL, blockPeriod: blockPeriod}
}

// Submit enqueues a Task for a worker to pick up.
func (q *Queue) Submit(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal task failed: %w", err)
	}
	if err := q.client.LPush(ctx, QueueKey, data).Err(); err != nil {
		return fmt.Errorf("taskqueue: submit failed: %w", err)
	}
	return nil
}

// Reserve blocks up to the Queue's blockPeriod waiting for the next Task,
// returning nil, nil on a timeout with no task available.
func (q *Queue) Reserve(ctx context.Context) (*Task, error) {
	res, err := q.client.BRPop(ctx, q.blockPeriod, QueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskqueue: reserve failed: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("taskqueue: malformed BRPOP reply")
	}

	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("taskqueue: unmarshal task failed: %w", err)
	}
	return &task, nil
}

// ReportResult records the outcome of a Task so the submitter can retrieve
// it via Result.
func (q *Queue) ReportResult(ctx context.Context, result *Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal result failed: %w", err)
	}
	if err := q.client.Set(ctx, resultKey(result.TaskID), data, q.resultTTL).Err(); err != nil {
		return fmt.Errorf("taskqueue: report result failed: %w", err)
	}
	return nil
}

// Result retrieves the recorded outcome for taskID, returning ErrNotReady
// if the worker has not reported yet.
func (q *Queue) Result(ctx context.Context, taskID string) (*Result, error) {
	data, err := q.client.Get(ctx, resultKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotReady
		}
		return nil, fmt.Errorf("taskqueue: get result failed: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("taskqueue: unmarshal result failed: %w", err)
	}
	return &result, nil
}
