package telephony

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"callcenter/internal/calllog"
)

// MaxWebhookBody bounds the form body read from the provider.
const MaxWebhookBody = 64 << 10

var ErrMalformedForm = errors.New("telephony: malformed webhook form")

// TwilioCallStatusForm captures the call-status callback fields we care about.
// Twilio sends application/x-www-form-urlencoded.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type TwilioCallStatusForm struct {
	CallSid      string
	AccountSid   string
	CallStatus   string
	CallDuration string
	From         string
	To           string
	Direction    string

	// EmployeeID is the optional employee_id body field.
	EmployeeID string
}

// ReadTwilioForm reads the raw body once and parses it as flat key/value pairs.
// The returned values are exactly what the signature covers.
func ReadTwilioForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedForm, err)
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedForm, err)
	}
	return values, nil
}

func ParseTwilioCallStatus(values url.Values) TwilioCallStatusForm {
	return TwilioCallStatusForm{
		CallSid:      strings.TrimSpace(values.Get("CallSid")),
		AccountSid:   values.Get("AccountSid"),
		CallStatus:   strings.TrimSpace(values.Get("CallStatus")),
		CallDuration: strings.TrimSpace(values.Get("CallDuration")),
		From:         strings.TrimSpace(values.Get("From")),
		To:           strings.TrimSpace(values.Get("To")),
		Direction:    values.Get("Direction"),
		EmployeeID:   strings.TrimSpace(values.Get("employee_id")),
	}
}

// ToEvent converts the form to a call-log event. A body employee_id wins over queryEmployeeID.
func (f TwilioCallStatusForm) ToEvent(queryEmployeeID string, receivedAt time.Time) calllog.Event {
	explicit := f.EmployeeID
	if explicit == "" {
		explicit = strings.TrimSpace(queryEmployeeID)
	}
	return calllog.Event{
		ProviderCallID:     f.CallSid,
		Status:             NormalizeStatus(f.CallStatus),
		DurationSeconds:    parseDuration(f.CallDuration),
		From:               f.From,
		To:                 f.To,
		ExplicitEmployeeID: explicit,
		ReceivedAt:         receivedAt,
	}
}

func parseDuration(raw string) *int {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
