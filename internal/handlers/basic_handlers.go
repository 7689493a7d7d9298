package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheckHandler GET /api/health
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "go-agreements",
		"api":     "healthy",
	})
}

// ReadinessHandler GET /api/ready runs every dependency check and reports 503
// if any fails.
func ReadinessHandler(checks map[string]func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		results := make(gin.H, len(checks))
		status := http.StatusOK
		for name, check := range checks {
			if err := check(); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{
			"success": status == http.StatusOK,
			"checks":  results,
		})
	}
}
