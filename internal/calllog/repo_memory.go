package calllog

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	records []Record

	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Upsert(ctx context.Context, rec Record) (Record, UpsertOp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Record{}, "", r.Err
	}

	if rec.ProviderCallID != nil {
		for i, existing := range r.records {
			if existing.ProviderCallID == nil || *existing.ProviderCallID != *rec.ProviderCallID {
				continue
			}
			existing.Status = rec.Status
			existing.DurationSeconds = rec.DurationSeconds
			existing.CustomerPhone = rec.CustomerPhone
			existing.Notes = rec.Notes
			existing.FromNumber = rec.FromNumber
			existing.ToNumber = rec.ToNumber
			r.records[i] = existing
			return existing, OpUpdated, nil
		}
	}

	r.nextID++
	rec.ID = r.nextID
	r.records = append(r.records, rec)
	return rec, OpInserted, nil
}

func (r *MemoryRepo) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
