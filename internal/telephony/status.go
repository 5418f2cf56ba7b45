package telephony

import "callcenter/internal/calllog"

// Provider call statuses.
const (
	CallStatusQueued     = "queued"
	CallStatusInitiated  = "initiated"
	CallStatusRinging    = "ringing"
	CallStatusInProgress = "in-progress"
	CallStatusCompleted  = "completed"
	CallStatusNoAnswer   = "no-answer"
	CallStatusBusy       = "busy"
	CallStatusFailed     = "failed"
	CallStatusCanceled   = "canceled"
)

// NormalizeStatus maps a provider status to the domain status. Unrecognized values,
// including non-terminal progress states, map to connected.
func NormalizeStatus(raw string) calllog.Status {
	switch raw {
	case CallStatusCompleted:
		return calllog.StatusConnected
	case CallStatusNoAnswer:
		return calllog.StatusNotAnswered
	case CallStatusBusy, CallStatusFailed, CallStatusCanceled:
		return calllog.StatusNotConnected
	default:
		return calllog.StatusConnected
	}
}

// IsNonTerminal reports the progress states that precede a final outcome.
func IsNonTerminal(raw string) bool {
	switch raw {
	case CallStatusQueued, CallStatusInitiated, CallStatusRinging, CallStatusInProgress:
		return true
	default:
		return false
	}
}
