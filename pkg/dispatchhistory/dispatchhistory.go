// Package dispatchhistory records the lifecycle of every request the
// Worker Dispatcher submits to the compute task queue: what was sent, what
// came back, and how long it took. Adapted from the donor's calculation
// history service, re-keyed from (user, algorithm, maxFlow) to
// (serial number, fingerprint, ruleset, outcome).
package dispatchhistory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no dispatch record matches the lookup key.
var ErrNotFound = errors.New("dispatchhistory: record not found")

// Outcome is the terminal state of a dispatched task.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeTimedOut  Outcome = "TIMED_OUT"
	OutcomeError     Outcome = "ERROR"
)

// Record is one dispatched-task history entry.
type Record struct {
	ID           string
	SerialNumber string
	Fingerprint  string
	RulesetID    string
	TaskID       string
	RequestData  []byte // canonical JSON of the dispatched sub-request
	ResponseData []byte // canonical JSON of the returned sub-response, nil until completion
	Outcome      Outcome
	DispatchedAt time.Time
	CompletedAt  *time.Time
	DurationMs   int64
}

// ListFilter narrows a ListBySerial query.
type ListFilter struct {
	RulesetID string
	Outcome   Outcome
	StartTime *time.Time
	EndTime   *time.Time
}

// ListOptions paginates a ListBySerial query.
type ListOptions struct {
	Limit  int
	Offset int
	Filter *ListFilter
}

// Stats summarizes dispatch outcomes for a serial number over a window.
type Stats struct {
	Total             int
	AverageDurationMs float64
	CountByOutcome    map[Outcome]int
}

// Repository is the backing store for dispatch history.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Complete(ctx context.Context, taskID string, outcome Outcome, responseData []byte) error
	GetByID(ctx context.Context, id string) (*Record, error)
	ListBySerial(ctx context.Context, serialNumber string, opts *ListOptions) ([]*Record, int64, error)
	GetStats(ctx context.Context, serialNumber string, startTime, endTime *time.Time) (*Stats, error)
}
