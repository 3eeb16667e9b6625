package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReadinessChecker reports whether the knowledge base can be queried
type ReadinessChecker interface {
	Ready() bool
}

// HealthHandler answers liveness probes
type HealthHandler struct {
	kb       ReadinessChecker
	provider string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(kb ReadinessChecker, provider string) *HealthHandler {
	return &HealthHandler{kb: kb, provider: provider}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ready := h.kb != nil && h.kb.Ready()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"kb_ready":       ready,
		"model_provider": h.provider,
	})
}
