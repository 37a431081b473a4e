package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// HealthHandler reports liveness.
type HealthHandler struct {
	service string
	version string
	started time.Time
}

func NewHealthHandler(service, version string) *HealthHandler {
	return &HealthHandler{service: service, version: version, started: time.Now()}
}

func (h *HealthHandler) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   h.service,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}
