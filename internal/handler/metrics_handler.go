package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/donor-reports-dashboard/internal/service"
)

type sessionCounter interface {
	Len() int
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics  *service.MetricsService
	sessions sessionCounter
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, sessions sessionCounter) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, sessions: sessions}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness checks.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports readiness along with the open session count.
func (h *MetricsHandler) Ready(c *gin.Context) {
	payload := gin.H{"status": "ready"}
	if h.sessions != nil {
		payload["sessions"] = h.sessions.Len()
	}
	c.JSON(http.StatusOK, payload)
}
