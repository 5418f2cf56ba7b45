package rbac

import (
	"net/http"

	"callcenter/internal/auth"
	"callcenter/internal/events"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole allows access if the caller has any of the provided roles.
// admin bypasses all checks.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		if IsAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// ActingEmployee decides whose behalf a call-control action runs on.
// Employees always act as themselves and may not name anyone else; admins must name
// a positive employee id.
func ActingEmployee(c *gin.Context, requested int64) (int64, bool) {
	role, _ := auth.Role(c.Request.Context())
	if IsAdmin(role) {
		if requested <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "employee_id is required"})
			return 0, false
		}
		return requested, true
	}

	uid, err := auth.UserID(c.Request.Context())
	if err != nil || role != RoleEmployee {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return 0, false
	}
	if requested > 0 && requested != uid {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "employees may only act as themselves"})
		return 0, false
	}
	return uid, true
}

// StreamScope is the events.ScopeFunc for authenticated dashboards. Admins may use any
// employeeId filter or none; employees are pinned to their own id.
func StreamScope(c *gin.Context) (events.Filter, bool) {
	filter, err := events.ParseFilter(c.Query(events.QueryEmployeeID))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return events.Filter{}, false
	}

	role, _ := auth.Role(c.Request.Context())
	if IsAdmin(role) {
		return filter, true
	}

	uid, err := auth.UserID(c.Request.Context())
	if err != nil || role != RoleEmployee {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return events.Filter{}, false
	}
	if filter.Set && filter.EmployeeID != uid {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "employees may only stream their own events"})
		return events.Filter{}, false
	}
	return events.ForEmployee(uid), true
}
