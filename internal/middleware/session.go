package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/donor-reports-dashboard/internal/service"
	appErrors "github.com/noah-isme/donor-reports-dashboard/pkg/errors"
	"github.com/noah-isme/donor-reports-dashboard/pkg/logger"
	"github.com/noah-isme/donor-reports-dashboard/pkg/response"
)

// ContextDashboardKey is the gin context key storing the session's dashboard.
const ContextDashboardKey = "dashboard"

type sessionLookup interface {
	Lookup(id string) (*service.Dashboard, bool)
}

// Session resolves the dashboard session named by the session cookie.
func Session(sessions sessionLookup, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cookieName)
		if err != nil || id == "" {
			response.Error(c, appErrors.ErrSessionRequired)
			c.Abort()
			return
		}

		dashboard, ok := sessions.Lookup(id)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrSessionRequired, "dashboard session expired, reload the page"))
			c.Abort()
			return
		}

		c.Set(ContextDashboardKey, dashboard)
		c.Set(logger.SessionIDKey, id)
		c.Next()
	}
}

// DashboardFromContext returns the dashboard attached by Session.
func DashboardFromContext(c *gin.Context) *service.Dashboard {
	value, exists := c.Get(ContextDashboardKey)
	if !exists {
		return nil
	}
	dashboard, ok := value.(*service.Dashboard)
	if !ok {
		return nil
	}
	return dashboard
}
