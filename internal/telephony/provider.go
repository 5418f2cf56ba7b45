package telephony

import (
	"context"
	"time"
)

// CallControl defines the provider-agnostic outbound call interface used by the API layer.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Keep request/response types provider-agnostic; carry provider error bodies in APIError.
type CallControl interface {
	Name() string

	Dial(ctx context.Context, req DialRequest) (DialResult, error)
	Hangup(ctx context.Context, req HangupRequest) error
}

// DialRequest starts an outbound call to a customer on behalf of an employee.
type DialRequest struct {
	EmployeeID int64 `json:"employee_id"`

	// To is E.164.
	To string `json:"to"`

	// BridgeTo, when set, connects the answered call to this number or SIP URI.
	BridgeTo string `json:"bridge_to,omitempty"`

	// StatusCallback receives call-status webhooks for this call.
	StatusCallback string `json:"status_callback"`
}

type DialResult struct {
	ProviderCallID string    `json:"sid"`
	Status         string    `json:"status,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}

// HangupRequest ends a call in progress.
type HangupRequest struct {
	ProviderCallID string `json:"sid"`
}

// StatusCallbackEvents are the call progress events requested for dialed calls.
var StatusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}
