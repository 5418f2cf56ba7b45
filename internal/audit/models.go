package audit

import "time"

// Event is one append-only audit row: a rejected webhook or a call-control action.
// Rows are written by Service and never updated. Storage is audit_events (store.Migrate).
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the dashboard user behind a dial or hangup; empty for webhooks.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// CallSID is the provider call id the event concerns, if any.
	CallSID string `json:"call_sid,omitempty" db:"call_sid"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeWebhookRejected EventType = "webhook_rejected"
	EventTypeCallDial        EventType = "call_dial"
	EventTypeCallHangup      EventType = "call_hangup"
)
