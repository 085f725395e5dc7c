package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/donor-reports-dashboard/internal/middleware"
)

func sessionFromContext(c *gin.Context) dashboardSession {
	value, exists := c.Get(middleware.ContextDashboardKey)
	if !exists {
		return nil
	}
	session, ok := value.(dashboardSession)
	if !ok {
		return nil
	}
	return session
}
