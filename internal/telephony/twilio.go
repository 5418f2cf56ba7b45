package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

var ErrNotConfigured = errors.New("telephony: twilio credentials not configured")

// APIError is a non-2xx response from the provider API.
type APIError struct {
	StatusCode int
	Details    map[string]any
}

func (e *APIError) Error() string {
	if msg, ok := e.Details["message"].(string); ok && msg != "" {
		return fmt.Sprintf("telephony: twilio api error %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("telephony: twilio api error %d", e.StatusCode)
}

// TwilioProvider drives outbound calls through the Twilio REST API.
type TwilioProvider struct {
	AccountSID string
	AuthToken  string
	CallerID   string

	// BaseURL overrides the API origin (tests).
	BaseURL string
	HTTP    *http.Client

	Now func() time.Time
}

func NewTwilioProvider(accountSID, authToken, callerID string) *TwilioProvider {
	return &TwilioProvider{
		AccountSID: accountSID,
		AuthToken:  authToken,
		CallerID:   callerID,
		BaseURL:    twilioAPIBase,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		Now:        time.Now,
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) configured(needCaller bool) bool {
	if p.AccountSID == "" || p.AuthToken == "" {
		return false
	}
	return !needCaller || p.CallerID != ""
}

func (p *TwilioProvider) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	if !p.configured(true) {
		return DialResult{}, ErrNotConfigured
	}
	twiml, err := RenderTwiML(Script{BridgeTo: req.BridgeTo, CallerID: p.CallerID})
	if err != nil {
		return DialResult{}, err
	}

	form := url.Values{}
	form.Set("From", p.CallerID)
	form.Set("To", req.To)
	form.Set("Twiml", twiml)
	if req.StatusCallback != "" {
		form.Set("StatusCallback", req.StatusCallback)
		form.Set("StatusCallbackMethod", http.MethodPost)
		for _, ev := range StatusCallbackEvents {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	var out struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := p.post(ctx, "/Calls.json", form, &out); err != nil {
		return DialResult{}, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return DialResult{ProviderCallID: out.Sid, Status: out.Status, RequestedAt: now().UTC()}, nil
}

func (p *TwilioProvider) Hangup(ctx context.Context, req HangupRequest) error {
	if !p.configured(false) {
		return ErrNotConfigured
	}
	if strings.TrimSpace(req.ProviderCallID) == "" {
		return errors.New("telephony: sid is required")
	}
	form := url.Values{}
	form.Set("Status", CallStatusCompleted)
	return p.post(ctx, "/Calls/"+url.PathEscape(req.ProviderCallID)+".json", form, nil)
}

func (p *TwilioProvider) post(ctx context.Context, path string, form url.Values, out any) error {
	base := p.BaseURL
	if base == "" {
		base = twilioAPIBase
	}
	endpoint := strings.TrimRight(base, "/") + "/Accounts/" + url.PathEscape(p.AccountSID) + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.AccountSID, p.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: twilio request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telephony: twilio response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Details: map[string]any{}}
		_ = json.Unmarshal(body, &apiErr.Details)
		return apiErr
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("telephony: twilio response: %w", err)
		}
	}
	return nil
}
