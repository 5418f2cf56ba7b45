package contacts

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	contacts []Contact

	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

// Add stores a contact with a normalized phone number and returns it.
func (r *MemoryRepo) Add(name, phone string, assigned *int64) Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := Contact{ID: r.nextID, Name: name, PhoneNumber: NormalizePhone(phone), AssignedEmployeeID: assigned, CreatedAt: time.Now().UTC()}
	r.contacts = append(r.contacts, c)
	return c
}

func (r *MemoryRepo) FindByPhone(ctx context.Context, phone string) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Contact{}, r.Err
	}
	for _, c := range r.contacts {
		if c.PhoneNumber == phone {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

func (r *MemoryRepo) UpdateLastCall(ctx context.Context, id int64, lc LastCall) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Contact{}, r.Err
	}
	for i, c := range r.contacts {
		if c.ID != id {
			continue
		}
		emp, status, at := lc.EmployeeID, lc.Status, lc.At
		c.AssignedEmployeeID = &emp
		c.CallStatus = &status
		c.CallTime = &at
		c.CallDurationSec = lc.DurationSeconds
		r.contacts[i] = c
		return c, nil
	}
	return Contact{}, ErrNotFound
}

func (r *MemoryRepo) Get(id int64) (Contact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.ID == id {
			return c, true
		}
	}
	return Contact{}, false
}
