package httpapi

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"callcenter/internal/audit"
	"callcenter/internal/auth"
	"callcenter/internal/endpoints"
	"callcenter/internal/rbac"
	"callcenter/internal/telephony"
	"callcenter/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallStatusPath is where dialed calls report progress.
const CallStatusPath = "/webhooks/twilio/call-status"

var e164 = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// CallAuditor records call-control actions.
type CallAuditor interface {
	LogCallAction(ctx context.Context, typ audit.EventType, a audit.CallAction) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls     telephony.CallControl
	Audit     CallAuditor
	Endpoints endpoints.Assigner

	// PublicBaseURL is the origin status callbacks are registered against.
	PublicBaseURL string
}

// --- Auth ---

// Me echoes the authenticated identity.
func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// --- Calls ---

type dialRequest struct {
	To         string `json:"to"`
	EmployeeID int64  `json:"employee_id"`
	BridgeTo   string `json:"bridge_to,omitempty"`
}

// Dial starts an outbound call. Employees dial as themselves; admins name the employee.
// The status callback carries the employee id so the webhook can attribute the call.
func (h Handlers) Dial(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call control not configured"})
		return
	}
	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.To = strings.TrimSpace(req.To)
	if !e164.MatchString(req.To) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be an E.164 number"})
		return
	}
	employeeID, ok := rbac.ActingEmployee(c, req.EmployeeID)
	if !ok {
		return
	}

	res, err := h.Calls.Dial(c.Request.Context(), telephony.DialRequest{
		EmployeeID:     employeeID,
		To:             req.To,
		BridgeTo:       strings.TrimSpace(req.BridgeTo),
		StatusCallback: h.statusCallback(c, employeeID),
	})
	if err != nil {
		h.providerError(c, "dial", err)
		return
	}

	h.logAction(c, audit.EventTypeCallDial, res.ProviderCallID, employeeID, req.To)
	c.JSON(http.StatusOK, gin.H{"ok": true, "sid": res.ProviderCallID, "status": res.Status})
}

type hangupRequest struct {
	SID string `json:"sid"`
}

// Hangup ends a call in progress.
func (h Handlers) Hangup(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call control not configured"})
		return
	}
	var req hangupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.SID = strings.TrimSpace(req.SID)
	if req.SID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "sid required"})
		return
	}

	if err := h.Calls.Hangup(c.Request.Context(), telephony.HangupRequest{ProviderCallID: req.SID}); err != nil {
		h.providerError(c, "hangup", err)
		return
	}

	h.logAction(c, audit.EventTypeCallHangup, req.SID, 0, "")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h Handlers) statusCallback(c *gin.Context, employeeID int64) string {
	base := strings.TrimRight(h.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + CallStatusPath + "?" + telephony.QueryEmployeeID + "=" + strconv.FormatInt(employeeID, 10)
}

func (h Handlers) providerError(c *gin.Context, op string, err error) {
	log := logger.FromGin(c)
	if errors.Is(err, telephony.ErrNotConfigured) {
		log.Error("call control not configured", "op", op)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twilio credentials not configured"})
		return
	}
	var apiErr *telephony.APIError
	if errors.As(err, &apiErr) {
		log.Warn("provider rejected call request", "op", op, "status", apiErr.StatusCode)
		status := apiErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "provider error", "details": apiErr.Details})
		return
	}
	log.Error("call request failed", "op", op, "err", err)
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider unavailable"})
}

// logAction is best-effort; a failed write never fails the call action.
func (h Handlers) logAction(c *gin.Context, typ audit.EventType, sid string, employeeID int64, to string) {
	if h.Audit == nil {
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	err := h.Audit.LogCallAction(c.Request.Context(), typ, audit.CallAction{
		ActorUserID: uid,
		ActorRole:   role,
		IP:          c.ClientIP(),
		CallSID:     sid,
		EmployeeID:  employeeID,
		To:          to,
	})
	if err != nil {
		logger.FromGin(c).Warn("audit write failed", "type", typ, "err", err)
	}
}

// --- Endpoints ---

type assignEndpointRequest struct {
	Endpoint   string `json:"endpoint"`
	EmployeeID int64  `json:"employee_id"`
}

// AssignEndpoint maps a provider endpoint to the employee who owns its calls.
func (h Handlers) AssignEndpoint(c *gin.Context) {
	if h.Endpoints == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "endpoint directory not configured"})
		return
	}
	var req assignEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" || req.EmployeeID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "endpoint and employee_id required"})
		return
	}

	log := logger.FromGin(c)
	if err := h.Endpoints.Assign(c.Request.Context(), req.Endpoint, req.EmployeeID); err != nil {
		log.Error("endpoint assign failed", "endpoint", req.Endpoint, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "assign failed"})
		return
	}
	log.Info("endpoint assigned", "endpoint", req.Endpoint, "employee_id", req.EmployeeID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "endpoint": req.Endpoint, "employee_id": req.EmployeeID})
}
