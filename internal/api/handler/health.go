package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/relay/internal/jobstore"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store   *jobstore.Store
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store *jobstore.Store) *HealthHandler {
	return &HealthHandler{
		store:   store,
		started: time.Now(),
	}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"jobs":           h.store.Count(),
	})
}
