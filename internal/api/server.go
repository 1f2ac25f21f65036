package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the middleware chain and all routes.
// Middleware order:
//  1. Recovery: panic → 500
//  2. Tracing: trace context per request
//  3. RequestID: correlation id
//  4. RequestLogger: structured request logging
//
// ollamaService is satisfied by *clients.OllamaAPI.
type ollamaService interface {
	modelLister
	titleGenerator
}

// Chat routes are registered only when chats is non-nil, so the status
// endpoints stay up without a chat store.
func NewRouter(health healthService, ollama ollamaService, chats chatRepository) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(Tracing("chat-ollama"))
	engine.Use(RequestID())
	engine.Use(RequestLogger(slog.Default()))

	h := &Handler{health: health, models: ollama, titles: ollama, chats: chats}

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	v1 := engine.Group("/api/v1")
	v1.GET("/models", h.ListModels)

	if chats != nil {
		c := v1.Group("/chats")
		c.GET("", h.ListChats)
		c.POST("", h.CreateChat)
		c.GET("/:id", h.GetChat)
		c.PATCH("/:id", h.UpdateChat)
		c.DELETE("/:id", h.DeleteChat)
		c.GET("/:id/messages", h.GetMessages)
		c.POST("/:id/messages", h.AddMessage)
		c.DELETE("/:id/messages", h.ClearMessages)
		c.POST("/:id/title", h.GenerateTitle)
	}

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
