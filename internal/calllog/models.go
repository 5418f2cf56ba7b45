package calllog

import "time"

// Record is one row of call history.
//
// Idempotency invariant: at most one Record exists per non-empty ProviderCallID.
// Records are created by the first status event for a call and mutated by later ones;
// this package never deletes them.
type Record struct {
	ID         int64  `json:"id" db:"id"`
	EmployeeID int64  `json:"employee_id" db:"employee_id"`
	CallDate   string `json:"call_date" db:"call_date"` // YYYY-MM-DD, processing time of the first event
	CallTime   string `json:"call_time" db:"call_time"` // HH:MM:SS

	Status Status `json:"status" db:"status"`

	// DurationSeconds is nil until the provider reports a duration.
	DurationSeconds *int `json:"duration" db:"duration"`

	CustomerPhone  *string `json:"customer_phone" db:"customer_phone"`
	Notes          *string `json:"notes" db:"notes"`
	ProviderCallID *string `json:"provider_call_id" db:"provider_call_id"`
	FromNumber     *string `json:"from_number" db:"from_number"`
	ToNumber       *string `json:"to_number" db:"to_number"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// OwnerID is the employee that stream filters match against.
func (r Record) OwnerID() (int64, bool) { return r.EmployeeID, r.EmployeeID > 0 }

// Status is the reduced three-valued call outcome.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusNotAnswered  Status = "not_answered"
	StatusNotConnected Status = "not_connected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConnected, StatusNotAnswered, StatusNotConnected:
		return true
	default:
		return false
	}
}

// Event is a normalized call-status event ready to be reconciled.
type Event struct {
	ProviderCallID  string
	Status          Status
	DurationSeconds *int
	From            string
	To              string

	// Note overrides the synthesized note when set.
	Note string

	// ExplicitEmployeeID is the raw employee id carried by the webhook (body or query), if any.
	ExplicitEmployeeID string

	ReceivedAt time.Time
}

// UpsertOp reports which branch of the upsert ran.
type UpsertOp string

const (
	OpInserted UpsertOp = "inserted"
	OpUpdated  UpsertOp = "updated"
)
