package contacts

import (
	"strings"
	"time"

	"callcenter/internal/calllog"
)

// Contact is a customer record owned by the portal's CRUD layer.
// This package only ever mutates its last-call fields; it never creates contacts.
type Contact struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	AssignedEmployeeID *int64 `json:"assigned_employee_id" db:"assigned_employee_id"`

	// Last-call metadata.
	CallStatus      *CallStatus `json:"call_status" db:"call_status"`
	CallTime        *time.Time  `json:"call_time" db:"call_time"`
	CallDurationSec *int        `json:"call_duration_sec" db:"call_duration_sec"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OwnerID is the assigned employee; unassigned contacts only reach unfiltered streams.
func (c Contact) OwnerID() (int64, bool) {
	if c.AssignedEmployeeID == nil || *c.AssignedEmployeeID <= 0 {
		return 0, false
	}
	return *c.AssignedEmployeeID, true
}

// CallStatus is the coarse contact-level outcome of the last call.
type CallStatus string

const (
	CallStatusCompleted CallStatus = "COMPLETED"
	CallStatusMissed    CallStatus = "MISSED"
)

// CoarseStatus reduces a call-log status to the contact vocabulary.
func CoarseStatus(s calllog.Status) CallStatus {
	if s == calllog.StatusConnected {
		return CallStatusCompleted
	}
	return CallStatusMissed
}

// LastCall is the set of fields written onto a matched contact.
type LastCall struct {
	EmployeeID      int64
	Status          CallStatus
	At              time.Time
	DurationSeconds *int
}

// NormalizePhone keeps digits and a single leading '+'.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
