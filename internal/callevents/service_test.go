package callevents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"callcenter/internal/calllog"
	"callcenter/internal/contacts"
	"callcenter/internal/endpoints"
	"callcenter/internal/events"
	"callcenter/internal/store"
	"callcenter/internal/telephony"

	"github.com/gin-gonic/gin"
)

const (
	secret  = "twilio-secret"
	baseURL = "https://calls.example.com"
	path    = "/webhooks/twilio/call-status"
)

type pipeline struct {
	router    *gin.Engine
	calls     *events.Broadcaster[calllog.Record]
	contacts  *events.Broadcaster[contacts.Contact]
	contactDB *contacts.SQLRepo
	callDB    *calllog.SQLRepo
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	callBus := events.NewBroadcaster[calllog.Record](events.CategoryCallLogs, nil)
	contactBus := events.NewBroadcaster[contacts.Contact](events.CategoryContacts, nil)

	callRepo := calllog.NewSQLRepo(db)
	contactRepo := contacts.NewSQLRepo(db)
	dir := endpoints.NewSQLDirectory(db, endpoints.ProviderTwilio)
	if err := dir.Assign(ctx, "+15557654321", 5); err != nil {
		t.Fatalf("assign: %v", err)
	}

	svc := NewService(
		calllog.NewService(callRepo, dir, callBus, nil),
		contacts.NewCorrelator(contactRepo, contactBus, nil),
	)
	h := telephony.CallStatusHandler{Secret: secret, PublicBaseURL: baseURL, Processor: svc}
	r := gin.New()
	r.POST(path, h.Handle)

	return &pipeline{router: r, calls: callBus, contacts: contactBus, contactDB: contactRepo, callDB: callRepo}
}

func (p *pipeline) deliver(t *testing.T, query string, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	target := path
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(params.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(telephony.HeaderSignature, telephony.ComputeSignature(secret, baseURL+target, params))
	w := httptest.NewRecorder()
	p.router.ServeHTTP(w, req)
	return w
}

func webhook(status string) url.Values {
	return url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {status},
		"CallDuration": {"42"},
		"To":           {"+15551234567"},
		"From":         {"+15550001111"},
		"employee_id":  {"7"},
	}
}

func next[E events.Owned](t *testing.T, sub *events.Subscriber[E]) (E, bool) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev, true
	default:
		var zero E
		return zero, false
	}
}

func TestPipeline_ReconcilesAndFansOut(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	seven, _, _ := p.calls.Register(ctx, events.ForEmployee(7))
	eight, _, _ := p.calls.Register(ctx, events.ForEmployee(8))
	contactSub, _, _ := p.contacts.Register(ctx, events.ForEmployee(7))

	contact, err := p.contactDB.Insert(ctx, "Ada", "+1 555 123 4567", nil)
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	w := p.deliver(t, "", webhook("completed"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	rec, ok, err := p.callDB.FindByProviderCallID(ctx, "CA123")
	if err != nil || !ok || rec.Status != calllog.StatusConnected || rec.EmployeeID != 7 || rec.DurationSeconds == nil || *rec.DurationSeconds != 42 {
		t.Fatalf("unexpected record: %+v ok=%v", rec, ok)
	}

	got, ok := next(t, seven)
	if !ok || got.ID != rec.ID {
		t.Fatalf("subscriber 7 expected the record, got %+v ok=%v", got, ok)
	}
	if _, ok := next(t, eight); ok {
		t.Fatalf("subscriber 8 must not receive employee 7's record")
	}

	updated, ok := next(t, contactSub)
	if !ok || updated.ID != contact.ID || updated.CallStatus == nil || *updated.CallStatus != contacts.CallStatusCompleted {
		t.Fatalf("expected contact event, got %+v ok=%v", updated, ok)
	}

	// Redelivery with a new status updates the same record.
	w = p.deliver(t, "", webhook("busy"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	again, _, _ := p.callDB.FindByProviderCallID(ctx, "CA123")
	if again.ID != rec.ID || again.Status != calllog.StatusNotConnected {
		t.Fatalf("expected same record now not_connected, got %+v", again)
	}
	if got, ok := next(t, seven); !ok || got.Status != calllog.StatusNotConnected {
		t.Fatalf("expected update fanned out, got %+v ok=%v", got, ok)
	}
	if updated, ok := next(t, contactSub); !ok || *updated.CallStatus != contacts.CallStatusMissed {
		t.Fatalf("expected contact marked missed, got %+v ok=%v", updated, ok)
	}
}

func TestPipeline_ResolvesEmployeeFromEndpoints(t *testing.T) {
	p := newPipeline(t)
	params := url.Values{
		"CallSid":    {"CA555"},
		"CallStatus": {"no-answer"},
		"To":         {"+15557654321"},
		"From":       {"+15550001111"},
	}
	w := p.deliver(t, "", params)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	rec, ok, err := p.callDB.FindByProviderCallID(context.Background(), "CA555")
	if err != nil || !ok || rec.EmployeeID != 5 || rec.Status != calllog.StatusNotAnswered {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Notes == nil || *rec.Notes != "To: +15557654321 | SID: CA555" {
		t.Fatalf("unexpected note %v", rec.Notes)
	}
}

func TestPipeline_UnresolvedEmployeeIs400(t *testing.T) {
	p := newPipeline(t)
	params := url.Values{"CallSid": {"CA777"}, "CallStatus": {"completed"}, "To": {"+19999999999"}}
	w := p.deliver(t, "", params)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] == nil {
		t.Fatalf("expected error body, got %s", w.Body.String())
	}
}

func TestPipeline_QueryEmployeeID(t *testing.T) {
	p := newPipeline(t)
	params := url.Values{"CallSid": {"CA888"}, "CallStatus": {"completed"}}
	if w := p.deliver(t, "employeeId=9", params); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rec, _, _ := p.callDB.FindByProviderCallID(context.Background(), "CA888")
	if rec.EmployeeID != 9 || rec.Notes == nil || *rec.Notes != "SID: CA888" {
		t.Fatalf("unexpected record %+v", rec)
	}
}
