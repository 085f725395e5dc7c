package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/donor-reports-dashboard/internal/service"
)

type sessionOpener interface {
	Open(ctx context.Context, previousID string) *service.Dashboard
}

// PageHandler serves the dashboard page and opens a session per load.
type PageHandler struct {
	sessions   sessionOpener
	cookieName string
	cookieTTL  time.Duration
	secure     bool
}

// NewPageHandler constructs the page handler.
func NewPageHandler(sessions sessionOpener, cookieName string, cookieTTL time.Duration, secure bool) *PageHandler {
	if cookieName == "" {
		cookieName = "dashboard_session"
	}
	return &PageHandler{sessions: sessions, cookieName: cookieName, cookieTTL: cookieTTL, secure: secure}
}

// Index opens a fresh session, replacing the one named by the cookie, and renders the page.
func (h *PageHandler) Index(c *gin.Context) {
	previous, _ := c.Cookie(h.cookieName)
	dashboard := h.sessions.Open(c.Request.Context(), previous)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, dashboard.ID(), int(h.cookieTTL.Seconds()), "/", "", h.secure, true)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}

// Favicon avoids a 404 per page load.
func (h *PageHandler) Favicon(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
