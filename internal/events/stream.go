package events

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"callcenter/pkg/logger"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// DefaultKeepalive is the interval between comment-only ping frames.
const DefaultKeepalive = 15 * time.Second

// QueryEmployeeID is the optional stream filter parameter.
const QueryEmployeeID = "employeeId"

var (
	frameConnected = []byte(": connected\n\n")
	framePing      = []byte(": ping\n\n")
)

var ErrInvalidFilter = errors.New("events: employeeId must be a positive integer")

// ScopeFunc decides the subscriber filter for a request. It returns ok=false after
// aborting the request itself.
type ScopeFunc func(c *gin.Context) (Filter, bool)

// Slots caps concurrent streams per key. Implemented by utils.SlotLimiter.
type Slots interface {
	Acquire(ctx context.Context, id string) (bool, error)
	Refresh(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

type StreamOptions struct {
	Keepalive time.Duration

	// Scope defaults to QueryScope.
	Scope ScopeFunc

	// Slots and SlotKey are optional; both must be set to enforce a cap.
	Slots   Slots
	SlotKey func(c *gin.Context) string
}

// ParseFilter reads the optional employeeId query parameter.
func ParseFilter(raw string) (Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Filter{}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Filter{}, ErrInvalidFilter
	}
	return ForEmployee(id), nil
}

// QueryScope trusts the employeeId query parameter as given.
func QueryScope(c *gin.Context) (Filter, bool) {
	f, err := ParseFilter(c.Query(QueryEmployeeID))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return Filter{}, false
	}
	return f, true
}

// Stream serves b as a text/event-stream until the client goes away, a write fails,
// or the broadcaster is closed.
func Stream[E Owned](b *Broadcaster[E], opts StreamOptions) gin.HandlerFunc {
	keepalive := opts.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	scope := opts.Scope
	if scope == nil {
		scope = QueryScope
	}

	return func(c *gin.Context) {
		log := logger.FromGin(c).With("category", b.Category())

		filter, ok := scope(c)
		if !ok {
			return
		}

		// slotKey is set only while this stream holds a slot.
		var slotKey string
		if opts.Slots != nil && opts.SlotKey != nil {
			key := opts.SlotKey(c)
			acquired, err := opts.Slots.Acquire(c.Request.Context(), key)
			switch {
			case err != nil:
				// Limiter errors never block a stream.
				log.Warn("stream slot acquire failed", "err", err)
			case !acquired:
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many open streams"})
				return
			default:
				slotKey = key
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := opts.Slots.Release(ctx, key); err != nil {
						log.Warn("stream slot release failed", "err", err)
					}
				}()
			}
		}

		sub, ctx, err := b.Register(c.Request.Context(), filter)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
			return
		}
		defer b.Unregister(sub)

		rc := http.NewResponseController(c.Writer)
		// Streams outlive the server's write timeout.
		_ = rc.SetWriteDeadline(time.Time{})

		h := c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache, no-transform")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		if err := writeFrame(c.Writer, rc, frameConnected); err != nil {
			log.Debug("stream write failed", "subscriber_id", sub.ID, "err", err)
			return
		}
		log.Debug("stream open", "subscriber_id", sub.ID, "filtered", filter.Set, "employee_id", filter.EmployeeID)

		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Debug("stream closed", "subscriber_id", sub.ID)
				return
			case ev, open := <-sub.Events():
				if !open {
					log.Debug("stream dropped by broadcaster", "subscriber_id", sub.ID)
					return
				}
				if err := sse.Encode(c.Writer, sse.Event{Data: ev}); err != nil {
					log.Debug("stream write failed", "subscriber_id", sub.ID, "err", err)
					return
				}
				if err := rc.Flush(); err != nil {
					log.Debug("stream flush failed", "subscriber_id", sub.ID, "err", err)
					return
				}
			case <-ticker.C:
				if err := writeFrame(c.Writer, rc, framePing); err != nil {
					log.Debug("stream write failed", "subscriber_id", sub.ID, "err", err)
					return
				}
				if slotKey != "" {
					if err := opts.Slots.Refresh(ctx, slotKey); err != nil {
						log.Debug("stream slot refresh failed", "subscriber_id", sub.ID, "err", err)
					}
				}
			}
		}
	}
}

func writeFrame(w io.Writer, rc *http.ResponseController, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return rc.Flush()
}
