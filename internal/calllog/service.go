package calllog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmployeeUnresolved means neither the request nor the phone endpoint mapping names an owner.
	// The provider should not retry.
	ErrEmployeeUnresolved = errors.New("calllog: unable to resolve employee from request or phone endpoints")

	// ErrPersistence wraps store failures. The provider is expected to retry.
	ErrPersistence = errors.New("calllog: persistence failure")

	ErrInvalidEvent = errors.New("calllog: invalid event")
)

// Repository is the persistence contract for call history.
//
// Upsert must honor the idempotency invariant: when rec.ProviderCallID is set and a row with
// that id exists, only the mutable fields (status, duration, customer phone, from/to, notes)
// are overwritten and the stored row is returned with OpUpdated. Otherwise rec is inserted.
type Repository interface {
	Upsert(ctx context.Context, rec Record) (Record, UpsertOp, error)
}

// EndpointDirectory maps provider endpoints (DIDs, SIP URIs) to owning employees.
type EndpointDirectory interface {
	EmployeeForEndpoint(ctx context.Context, endpoint string) (employeeID int64, ok bool, err error)
}

// Publisher receives every reconciled record for fan-out.
type Publisher interface {
	Publish(rec Record)
}

// Result is the outcome of a reconciliation.
type Result struct {
	Record Record
	Op     UpsertOp

	// EmployeeID is the employee resolved for this event. It can differ from
	// Record.EmployeeID when an existing record was updated.
	EmployeeID int64
}

// Service reconciles call-status events into call history.
type Service struct {
	repo      Repository
	directory EndpointDirectory
	publisher Publisher
	log       *slog.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repository, directory EndpointDirectory, publisher Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, directory: directory, publisher: publisher, log: log, clock: time.Now}
}

// ResolveEmployee picks the owning employee: an explicit positive id wins, then the
// destination endpoint, then the origin endpoint.
func (s *Service) ResolveEmployee(ctx context.Context, ev Event) (int64, error) {
	if id, ok := parseEmployeeID(ev.ExplicitEmployeeID); ok {
		return id, nil
	}
	if s.directory == nil {
		return 0, ErrEmployeeUnresolved
	}
	for _, endpoint := range []string{ev.To, ev.From} {
		if endpoint == "" {
			continue
		}
		id, ok, err := s.directory.EmployeeForEndpoint(ctx, endpoint)
		if err != nil {
			return 0, fmt.Errorf("%w: endpoint lookup: %w", ErrPersistence, err)
		}
		if ok && id > 0 {
			return id, nil
		}
	}
	return 0, ErrEmployeeUnresolved
}

// Reconcile applies ev to call history and hands the stored record to the publisher.
func (s *Service) Reconcile(ctx context.Context, ev Event) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("%w: repository not configured", ErrPersistence)
	}
	if !ev.Status.Valid() {
		return Result{}, ErrInvalidEvent
	}

	employeeID, err := s.ResolveEmployee(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	now := s.clock().UTC()
	rec := Record{
		EmployeeID:      employeeID,
		CallDate:        now.Format(time.DateOnly),
		CallTime:        now.Format(time.TimeOnly),
		Status:          ev.Status,
		DurationSeconds: ev.DurationSeconds,
		CustomerPhone:   optional(ev.From),
		Notes:           optional(noteFor(ev)),
		ProviderCallID:  optional(ev.ProviderCallID),
		FromNumber:      optional(ev.From),
		ToNumber:        optional(ev.To),
		CreatedAt:       now,
	}

	stored, op, err := s.repo.Upsert(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.log.Debug("call log reconciled",
		"call_log_id", stored.ID,
		"provider_call_id", ev.ProviderCallID,
		"status", stored.Status,
		"op", op,
	)

	if s.publisher != nil {
		s.publisher.Publish(stored)
	}
	return Result{Record: stored, Op: op, EmployeeID: employeeID}, nil
}

func noteFor(ev Event) string {
	if strings.TrimSpace(ev.Note) != "" {
		return ev.Note
	}
	if ev.To != "" {
		return fmt.Sprintf("To: %s | SID: %s", ev.To, ev.ProviderCallID)
	}
	return "SID: " + ev.ProviderCallID
}

func parseEmployeeID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
