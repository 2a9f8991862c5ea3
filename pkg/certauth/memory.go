package certauth

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository for tests and for
// environments where cert authorization is not backed by Postgres.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func key(serialNumber, rulesetID, certID string) string {
	return serialNumber + "\x00" + rulesetID + "\x00" + certID
}

func (r *MemoryRepository) Lookup(_ context.Context, serialNumber, rulesetID, certID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key(serialNumber, rulesetID, certID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	k := key(rec.SerialNumber, rec.RulesetID, rec.CertID)
	existing, ok := r.records[k]
	cp := *rec
	if ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.records[k] = &cp
	*rec = cp
	return nil
}

func (r *MemoryRepository) Revoke(_ context.Context, serialNumber, rulesetID, certID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key(serialNumber, rulesetID, certID)]
	if !ok {
		return ErrNotFound
	}
	rec.Authorized = false
	rec.UpdatedAt = time.Now()
	return nil
}
