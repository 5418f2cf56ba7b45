package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"callcenter/internal/calllog"

	"github.com/gin-gonic/gin"
)

const (
	testSecret  = "twilio-secret"
	testBaseURL = "https://calls.example.com"
	webhookPath = "/webhooks/twilio/call-status"
)

type fakeProcessor struct {
	events []calllog.Event
	err    error
}

func (p *fakeProcessor) Process(ctx context.Context, ev calllog.Event) (calllog.Result, error) {
	p.events = append(p.events, ev)
	if p.err != nil {
		return calllog.Result{}, p.err
	}
	return calllog.Result{Op: calllog.OpInserted, EmployeeID: 7}, nil
}

type fakeAuditor struct{ rejections []string }

func (a *fakeAuditor) LogWebhookRejected(ctx context.Context, ip, callSid, reason string) error {
	a.rejections = append(a.rejections, callSid+":"+reason)
	return nil
}

func newWebhookRouter(h CallStatusHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST(webhookPath, h.Handle)
	return r
}

func signedRequest(t *testing.T, query string, params url.Values, sign bool) *http.Request {
	t.Helper()
	target := webhookPath
	if query != "" {
		target += "?" + query
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(params.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sign {
		req.Header.Set(HeaderSignature, ComputeSignature(testSecret, testBaseURL+target, params))
	}
	return req
}

func callParams(status string) url.Values {
	return url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {status},
		"CallDuration": {"42"},
		"To":           {"+15551234567"},
		"From":         {"+15550001111"},
	}
}

func TestCallStatusHandler_AcceptsSignedWebhook(t *testing.T) {
	proc := &fakeProcessor{}
	r := newWebhookRouter(CallStatusHandler{Secret: testSecret, PublicBaseURL: testBaseURL, Processor: proc})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, "employeeId=7", callParams("completed"), true))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(proc.events) != 1 {
		t.Fatalf("expected one processed event, got %d", len(proc.events))
	}
	ev := proc.events[0]
	if ev.ProviderCallID != "CA123" || ev.Status != calllog.StatusConnected || ev.ExplicitEmployeeID != "7" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestCallStatusHandler_RejectsMissingAndInvalidSignature(t *testing.T) {
	proc := &fakeProcessor{}
	audit := &fakeAuditor{}
	r := newWebhookRouter(CallStatusHandler{Secret: testSecret, PublicBaseURL: testBaseURL, Processor: proc, Audit: audit})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, "", callParams("completed"), false))
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing signature: expected 403, got %d", w.Code)
	}

	req := signedRequest(t, "", callParams("completed"), true)
	req.Header.Set(HeaderSignature, "bm90LWEtc2lnbmF0dXJl")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("invalid signature: expected 403, got %d", w.Code)
	}

	// Signed for one query, delivered with another.
	req = signedRequest(t, "employeeId=7", callParams("completed"), true)
	req.URL.RawQuery = "employeeId=8"
	req.RequestURI = webhookPath + "?employeeId=8"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("tampered url: expected 403, got %d", w.Code)
	}

	if len(proc.events) != 0 {
		t.Fatalf("expected nothing processed, got %d", len(proc.events))
	}
	if len(audit.rejections) != 3 {
		t.Fatalf("expected 3 audited rejections, got %v", audit.rejections)
	}
}

func TestCallStatusHandler_SecretNotConfigured(t *testing.T) {
	r := newWebhookRouter(CallStatusHandler{Processor: &fakeProcessor{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, "", callParams("completed"), true))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestCallStatusHandler_MapsProcessorErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{calllog.ErrEmployeeUnresolved, http.StatusBadRequest},
		{errors.Join(calllog.ErrPersistence, errors.New("db down")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newWebhookRouter(CallStatusHandler{Secret: testSecret, PublicBaseURL: testBaseURL, Processor: &fakeProcessor{err: tc.err}})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, signedRequest(t, "", callParams("completed"), true))
		if w.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestCallStatusHandler_SkipsNonTerminalWhenConfigured(t *testing.T) {
	proc := &fakeProcessor{}
	r := newWebhookRouter(CallStatusHandler{Secret: testSecret, PublicBaseURL: testBaseURL, Processor: proc, SkipNonTerminal: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, "", callParams("ringing"), true))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"skipped":true`) {
		t.Fatalf("expected skipped 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(proc.events) != 0 {
		t.Fatalf("expected ringing not processed")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, "", callParams("busy"), true))
	if w.Code != http.StatusOK || len(proc.events) != 1 {
		t.Fatalf("expected terminal status processed, got %d / %d", w.Code, len(proc.events))
	}
}
