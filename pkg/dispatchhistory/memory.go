package dispatchhistory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record
	byTask  map[string]string
	seq     int
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*Record),
		byTask:  make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	rec.ID = fmt.Sprintf("rec-%d", r.seq)
	cp := *rec
	r.records[rec.ID] = &cp
	r.byTask[rec.TaskID] = rec.ID
	return nil
}

func (r *MemoryRepository) Complete(_ context.Context, taskID string, outcome Outcome, responseData []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byTask[taskID]
	if !ok {
		return ErrNotFound
	}
	rec := r.records[id]
	rec.Outcome = outcome
	rec.ResponseData = responseData
	now := time.Now()
	rec.CompletedAt = &now
	rec.DurationMs = now.Sub(rec.DispatchedAt).Milliseconds()
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) ListBySerial(_ context.Context, serialNumber string, opts *ListOptions) ([]*Record, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*Record
	for _, rec := range r.records {
		if rec.SerialNumber != serialNumber {
			continue
		}
		if opts != nil && opts.Filter != nil {
			if opts.Filter.RulesetID != "" && rec.RulesetID != opts.Filter.RulesetID {
				continue
			}
			if opts.Filter.Outcome != "" && rec.Outcome != opts.Filter.Outcome {
				continue
			}
			if opts.Filter.StartTime != nil && rec.DispatchedAt.Before(*opts.Filter.StartTime) {
				continue
			}
			if opts.Filter.EndTime != nil && rec.DispatchedAt.After(*opts.Filter.EndTime) {
				continue
			}
		}
		cp := *rec
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].DispatchedAt.After(matched[j].DispatchedAt) })

	total := int64(len(matched))
	limit, offset := 20, 0
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		offset = opts.Offset
	}
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *MemoryRepository) GetStats(_ context.Context, serialNumber string, startTime, endTime *time.Time) (*Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &Stats{CountByOutcome: make(map[Outcome]int)}
	var durationSum int64
	for _, rec := range r.records {
		if rec.SerialNumber != serialNumber {
			continue
		}
		if startTime != nil && rec.DispatchedAt.Before(*startTime) {
			continue
		}
		if endTime != nil && rec.DispatchedAt.After(*endTime) {
			continue
		}
		stats.Total++
		stats.CountByOutcome[rec.Outcome]++
		durationSum += rec.DurationMs
	}
	if stats.Total > 0 {
		stats.AverageDurationMs = float64(durationSum) / float64(stats.Total)
	}
	return stats, nil
}
