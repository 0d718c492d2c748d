package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"persistkit/internal/registration"
)

// HealthHandler provides health check endpoints over the registered contexts.
type HealthHandler struct {
	version       string
	registrations []*registration.Registration
}

func NewHealthHandler(version string, registrations ...*registration.Registration) *HealthHandler {
	return &HealthHandler{version: version, registrations: registrations}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready. Every context store must answer a ping.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := make(map[string]string, len(h.registrations))
	status := http.StatusOK
	for _, r := range h.registrations {
		name := r.Definition().Name()
		if err := r.DB().PingContext(c.Request.Context()); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	body := gin.H{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "error"
	}
	c.JSON(status, body)
}

// Info handles GET /health/info with connection and context pool usage.
func (h *HealthHandler) Info(c *gin.Context) {
	contexts := make(map[string]any, len(h.registrations))
	for _, r := range h.registrations {
		db := r.DB().Stats()
		entry := gin.H{
			"dialect": r.DB().Dialect.Name,
			"database": gin.H{
				"open_conns": db.OpenConns,
				"in_use":     db.InUse,
				"idle":       db.Idle,
				"max_open":   db.MaxOpen,
			},
		}
		if p := r.Pool(); p != nil {
			ps := p.Stats()
			entry["context_pool"] = gin.H{
				"idle":    ps.Idle,
				"size":    ps.Size,
				"created": ps.Created,
				"reused":  ps.Reused,
			}
		}
		contexts[r.Definition().Name()] = entry
	}

	c.JSON(http.StatusOK, gin.H{
		"app":      "persistkit",
		"version":  h.version,
		"contexts": contexts,
	})
}
