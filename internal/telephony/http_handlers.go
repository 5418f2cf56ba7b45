package telephony

import (
	"context"
	"errors"
	"net/http"
	"time"

	"callcenter/internal/calllog"
	"callcenter/internal/metrics"
	"callcenter/pkg/logger"

	"github.com/gin-gonic/gin"
)

// QueryEmployeeID carries the owning employee on status callbacks we register at dial time.
const QueryEmployeeID = "employeeId"

// EventProcessor applies an authenticated call-status event.
type EventProcessor interface {
	Process(ctx context.Context, ev calllog.Event) (calllog.Result, error)
}

// RejectionAuditor records webhooks that failed authentication.
type RejectionAuditor interface {
	LogWebhookRejected(ctx context.Context, ip, callSid, reason string) error
}

// CallStatusHandler authenticates Twilio call-status webhooks and hands them to the processor.
//
// No business logic here.
type CallStatusHandler struct {
	// Secret is the shared webhook secret (the account auth token).
	Secret string

	// PublicBaseURL is the origin the provider calls; empty derives it from the request.
	PublicBaseURL string

	Processor EventProcessor
	Audit     RejectionAuditor

	// SkipNonTerminal acknowledges progress states without recording them.
	SkipNonTerminal bool

	Now func() time.Time
}

func (h CallStatusHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	start := time.Now()
	defer func() { metrics.WebhookDuration.Observe(time.Since(start).Seconds()) }()

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Processor == nil {
		metrics.WebhooksTotal.WithLabelValues(metrics.ResultError).Inc()
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call event processor not configured"})
		return
	}
	if h.Secret == "" {
		log.Error("call-status webhook rejected", "err", ErrSecretNotConfigured)
		metrics.WebhooksTotal.WithLabelValues(metrics.ResultError).Inc()
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook secret not configured"})
		return
	}

	values, err := ReadTwilioForm(c.Writer, c.Request)
	if err != nil {
		log.Warn("call-status webhook parse failed", "err", err)
		metrics.WebhooksTotal.WithLabelValues(metrics.ResultError).Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	signingURL := SigningURL(c.Request, h.PublicBaseURL)
	if err := VerifySignature(h.Secret, signingURL, values, c.GetHeader(HeaderSignature)); err != nil {
		callSid := values.Get("CallSid")
		log.Warn("call-status webhook rejected", "err", err, "call_sid", callSid, "client_ip", c.ClientIP())
		metrics.WebhooksTotal.WithLabelValues(metrics.ResultUnauthorized).Inc()
		if h.Audit != nil {
			if aerr := h.Audit.LogWebhookRejected(c.Request.Context(), c.ClientIP(), callSid, err.Error()); aerr != nil {
				log.Warn("audit append failed", "err", aerr)
			}
		}
		status := http.StatusForbidden
		if errors.Is(err, ErrSecretNotConfigured) {
			status = http.StatusInternalServerError
		}
		c.AbortWithStatusJSON(status, gin.H{"error": signatureMessage(err)})
		return
	}

	form := ParseTwilioCallStatus(values)
	if h.SkipNonTerminal && IsNonTerminal(form.CallStatus) {
		log.Debug("call-status webhook skipped", "call_sid", form.CallSid, "call_status", form.CallStatus)
		metrics.WebhooksTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true, "skipped": true})
		return
	}

	ev := form.ToEvent(c.Query(QueryEmployeeID), h.Now())
	res, err := h.Processor.Process(c.Request.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, calllog.ErrEmployeeUnresolved):
			log.Warn("call-status webhook unresolved", "call_sid", form.CallSid, "to", form.To, "from", form.From)
			metrics.WebhooksTotal.WithLabelValues(metrics.ResultUnresolved).Inc()
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unable to resolve employee from request or phone endpoints"})
		case errors.Is(err, calllog.ErrInvalidEvent):
			metrics.WebhooksTotal.WithLabelValues(metrics.ResultError).Inc()
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid call event"})
		default:
			log.Error("call-status webhook failed", "call_sid", form.CallSid, "err", err)
			metrics.WebhooksTotal.WithLabelValues(metrics.ResultError).Inc()
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	log.Info("call-status webhook applied",
		"call_sid", form.CallSid,
		"call_status", form.CallStatus,
		"call_log_id", res.Record.ID,
		"employee_id", res.EmployeeID,
		"op", res.Op,
	)
	metrics.WebhooksTotal.WithLabelValues(metrics.ResultOK).Inc()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func signatureMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingSignature):
		return "missing signature"
	case errors.Is(err, ErrSecretNotConfigured):
		return "webhook secret not configured"
	default:
		return "invalid signature"
	}
}
