// Package callevents runs the call-status pipeline behind the webhook: reconcile the call
// log, then enrich the matching contact.
package callevents

import (
	"context"

	"callcenter/internal/calllog"
	"callcenter/internal/contacts"
	"callcenter/internal/metrics"
)

// Reconciler is implemented by calllog.Service.
type Reconciler interface {
	Reconcile(ctx context.Context, ev calllog.Event) (calllog.Result, error)
}

// Correlator is implemented by contacts.Correlator.
type Correlator interface {
	Correlate(ctx context.Context, rec calllog.Record, employeeID int64) (contacts.Contact, bool)
}

type Service struct {
	reconciler Reconciler
	correlator Correlator
}

func NewService(reconciler Reconciler, correlator Correlator) *Service {
	return &Service{reconciler: reconciler, correlator: correlator}
}

// Process applies ev. Only reconciliation errors are returned; contact enrichment never
// fails a committed call-log write.
func (s *Service) Process(ctx context.Context, ev calllog.Event) (calllog.Result, error) {
	res, err := s.reconciler.Reconcile(ctx, ev)
	if err != nil {
		return calllog.Result{}, err
	}
	metrics.ReconciledTotal.WithLabelValues(string(res.Op)).Inc()

	if s.correlator != nil {
		if _, ok := s.correlator.Correlate(ctx, res.Record, res.EmployeeID); ok {
			metrics.ContactsCorrelatedTotal.Inc()
		}
	}
	return res, nil
}
