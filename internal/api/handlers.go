package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AdrianHagen/chat-ollama/internal/clients"
	"github.com/AdrianHagen/chat-ollama/internal/health"
)

// healthService is the subset of *health.Checker used by the handlers.
type healthService interface {
	RunDeepHealth(ctx context.Context) health.Report
	Ready(ctx context.Context) bool
}

// modelLister is satisfied by *clients.OllamaAPI.
type modelLister interface {
	ListModels(ctx context.Context) ([]clients.Model, error)
}

// titleGenerator is satisfied by *clients.OllamaAPI. It never fails; errors
// degrade to a fallback title.
type titleGenerator interface {
	GenerateTitle(ctx context.Context, firstMessage, model string) string
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	health healthService
	models modelLister
	titles titleGenerator
	chats  chatRepository
}

// Health handles GET /health. It always returns 200; this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": health.StatusHealthy,
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes every dependency and returns 200 only when all of them are OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	report := h.health.RunDeepHealth(c.Request.Context())

	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// Ready handles GET /ready. It returns 200 once the model server answers.
func (h *Handler) Ready(c *gin.Context) {
	if h.health.Ready(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}

// ListModels handles GET /api/v1/models with the locally pulled models.
func (h *Handler) ListModels(c *gin.Context) {
	models, err := h.models.ListModels(c.Request.Context())
	if err != nil {
		slog.WarnContext(c.Request.Context(), "list models failed", "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}
