package handlers

import (
	"net/http"
	"github.com/gin-gonic/gin"
)

// HealthCheck answers liveness probes; no auth, no dependencies touched.
func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
