package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/coursedl-go/internal/app"
)

const serverVersion = "1.0.0"

// HealthHandler reports liveness and readiness of the download server.
type HealthHandler struct {
	queueMgr *app.QueueManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queueMgr *app.QueueManager) *HealthHandler {
	return &HealthHandler{queueMgr: queueMgr}
}

// Health handles GET /health. It always returns 200 with the queue
// state so operators can tell a stalled queue from a dead process.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"version": serverVersion,
		"queue": gin.H{
			"running": h.queueMgr.IsRunning(),
		},
	}

	if stats, err := h.queueMgr.GetStats(); err == nil {
		resp["tasks"] = gin.H{
			"total":       stats.Total,
			"pending":     stats.Pending,
			"downloading": stats.Downloading,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Ready handles GET /ready. The server is ready once the queue loop
// is accepting work.
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.queueMgr.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue manager not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
