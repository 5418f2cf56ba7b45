package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service writes internal audit rows. Callers treat failures as best-effort and the
// rows are never exposed to dashboard users.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogWebhookRejected records a call-status webhook that failed authentication.
func (s *Service) LogWebhookRejected(ctx context.Context, ip, callSid, reason string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeWebhookRejected,
		IPAddress: ip,
		CallSID:   callSid,
		Message:   reason,
	})
}

// CallAction describes a dial or hangup performed through the API.
type CallAction struct {
	ActorUserID int64
	ActorRole   string
	IP          string
	CallSID     string
	EmployeeID  int64
	To          string
}

// LogCallAction records a dial or hangup. typ must be EventTypeCallDial or EventTypeCallHangup.
func (s *Service) LogCallAction(ctx context.Context, typ EventType, a CallAction) error {
	if typ != EventTypeCallDial && typ != EventTypeCallHangup {
		return ErrInvalidEvent
	}
	meta := map[string]any{}
	if a.EmployeeID > 0 {
		meta["employee_id"] = a.EmployeeID
	}
	if a.To != "" {
		meta["to"] = a.To
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	actor := ""
	if a.ActorUserID > 0 {
		actor = strconv.FormatInt(a.ActorUserID, 10)
	}
	msg := "call dialed"
	if typ == EventTypeCallHangup {
		msg = "call hung up"
	}
	return s.Append(ctx, Event{
		Type:        typ,
		ActorUserID: actor,
		ActorRole:   a.ActorRole,
		IPAddress:   a.IP,
		CallSID:     a.CallSID,
		Message:     msg,
		Metadata:    string(raw),
	})
}
