package main

import (
	"net/http"
	"strconv"

	"callcenter/internal/audit"
	"callcenter/internal/auth"
	"callcenter/internal/callevents"
	"callcenter/internal/calllog"
	"callcenter/internal/config"
	"callcenter/internal/contacts"
	"callcenter/internal/endpoints"
	"callcenter/internal/events"
	"callcenter/internal/httpapi"
	"callcenter/internal/rbac"
	"callcenter/internal/telephony"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type deps struct {
	auth       *auth.Manager
	pipeline   *callevents.Service
	audit      *audit.Service
	calls      telephony.CallControl
	endpoints  endpoints.Assigner
	callBus    *events.Broadcaster[calllog.Record]
	contactBus *events.Broadcaster[contacts.Contact]
	slots      events.Slots
	cfg        config.Config
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public, signature-verified).
	{
		h := telephony.CallStatusHandler{
			Secret:          d.cfg.Twilio.AuthToken,
			PublicBaseURL:   d.cfg.Twilio.PublicBaseURL,
			Processor:       d.pipeline,
			Audit:           d.audit,
			SkipNonTerminal: d.cfg.Events.SkipNonTerminal,
		}
		r.POST(httpapi.CallStatusPath, h.Handle)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		h := httpapi.Handlers{
			Calls:         d.calls,
			Audit:         d.audit,
			Endpoints:     d.endpoints,
			PublicBaseURL: d.cfg.Twilio.PublicBaseURL,
		}

		v1.GET("/me", h.Me)

		// EVENT streams
		streams := v1.Group("/events")
		streams.Use(rbac.RequireAnyRole(rbac.RoleEmployee))
		{
			opts := events.StreamOptions{
				Keepalive: d.cfg.Stream.Keepalive,
				Scope:     rbac.StreamScope,
				Slots:     d.slots,
				SlotKey:   streamSlotKey,
			}
			streams.GET("/call-logs", events.Stream(d.callBus, opts))
			streams.GET("/contacts", events.Stream(d.contactBus, opts))
		}

		// CALLS routes
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleEmployee))
		{
			calls.POST("/dial", h.Dial)
			calls.POST("/hangup", h.Hangup)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.PUT("/endpoints", h.AssignEndpoint)
		}
	}
}

// streamSlotKey counts streams per dashboard user across both categories.
func streamSlotKey(c *gin.Context) string {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		return ""
	}
	return strconv.FormatInt(uid, 10)
}
