package contacts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"callcenter/internal/calllog"
)

var ErrNotFound = errors.New("contacts: not found")

// Repository is the persistence contract for contact enrichment.
type Repository interface {
	// FindByPhone returns the first contact whose stored number equals the normalized phone.
	FindByPhone(ctx context.Context, phone string) (Contact, error)
	UpdateLastCall(ctx context.Context, id int64, lc LastCall) (Contact, error)
}

// Publisher receives every updated contact for fan-out.
type Publisher interface {
	Publish(c Contact)
}

// Correlator copies last-call metadata from reconciled call logs onto matching contacts.
//
// Enrichment is best-effort: failures are logged and never propagate to the caller,
// whose call-log write has already been committed.
type Correlator struct {
	repo      Repository
	publisher Publisher
	log       *slog.Logger
	clock     func() time.Time
}

func NewCorrelator(repo Repository, publisher Publisher, log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{repo: repo, publisher: publisher, log: log, clock: time.Now}
}

// TargetPhone prefers the destination number and falls back to the origin.
func TargetPhone(rec calllog.Record) string {
	for _, p := range []*string{rec.ToNumber, rec.FromNumber} {
		if p == nil {
			continue
		}
		if n := NormalizePhone(*p); n != "" {
			return n
		}
	}
	return ""
}

// Correlate updates the contact matching rec, if any. ok reports whether a contact was updated.
func (c *Correlator) Correlate(ctx context.Context, rec calllog.Record, employeeID int64) (Contact, bool) {
	if c == nil || c.repo == nil {
		return Contact{}, false
	}
	phone := TargetPhone(rec)
	if phone == "" {
		return Contact{}, false
	}

	contact, err := c.repo.FindByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("contact lookup failed", "phone", phone, "call_log_id", rec.ID, "err", err)
		}
		return Contact{}, false
	}

	updated, err := c.repo.UpdateLastCall(ctx, contact.ID, LastCall{
		EmployeeID:      employeeID,
		Status:          CoarseStatus(rec.Status),
		At:              c.clock().UTC(),
		DurationSeconds: rec.DurationSeconds,
	})
	if err != nil {
		c.log.Warn("contact update failed", "contact_id", contact.ID, "call_log_id", rec.ID, "err", err)
		return Contact{}, false
	}

	if c.publisher != nil {
		c.publisher.Publish(updated)
	}
	return updated, true
}
