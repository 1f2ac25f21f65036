package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AdrianHagen/chat-ollama/internal/chatstore"
)

// chatRepository is satisfied by *chatstore.Store.
type chatRepository interface {
	CreateChat(ctx context.Context, title, model string) (int64, error)
	ListChats(ctx context.Context) ([]chatstore.Chat, error)
	SearchChats(ctx context.Context, query string) ([]chatstore.Chat, error)
	GetChat(ctx context.Context, id int64) (*chatstore.Chat, error)
	UpdateChatTitle(ctx context.Context, id int64, title string) error
	DeleteChat(ctx context.Context, id int64) error
	AddMessage(ctx context.Context, chatID int64, role, content string) (int64, error)
	GetMessages(ctx context.Context, chatID int64) ([]chatstore.Message, error)
	ClearMessages(ctx context.Context, chatID int64) error
}

type createChatRequest struct {
	Title string `json:"title" binding:"required"`
	Model string `json:"model" binding:"required"`
}

type updateChatRequest struct {
	Title string `json:"title" binding:"required"`
}

type generateTitleRequest struct {
	Message string `json:"message"`
}

type addMessageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// ListChats handles GET /api/v1/chats. A non-empty ?q= switches to search
// over titles and message contents.
func (h *Handler) ListChats(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		chats []chatstore.Chat
		err   error
	)
	if q := c.Query("q"); q != "" {
		chats, err = h.chats.SearchChats(ctx, q)
	} else {
		chats, err = h.chats.ListChats(ctx)
	}
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// CreateChat handles POST /api/v1/chats.
func (h *Handler) CreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id, err := h.chats.CreateChat(c.Request.Context(), req.Title, req.Model)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetChat handles GET /api/v1/chats/:id.
func (h *Handler) GetChat(c *gin.Context) {
	chat, ok := h.loadChat(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, chat)
}

// UpdateChat handles PATCH /api/v1/chats/:id; only the title is mutable.
func (h *Handler) UpdateChat(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	var req updateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.chats.UpdateChatTitle(c.Request.Context(), id, req.Title); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteChat handles DELETE /api/v1/chats/:id.
func (h *Handler) DeleteChat(c *gin.Context) {
	id, ok := chatID(c)
	if !ok {
		return
	}
	if err := h.chats.DeleteChat(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMessages handles GET /api/v1/chats/:id/messages.
func (h *Handler) GetMessages(c *gin.Context) {
	chat, ok := h.loadChat(c)
	if !ok {
		return
	}
	messages, err := h.chats.GetMessages(c.Request.Context(), chat.ID)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// AddMessage handles POST /api/v1/chats/:id/messages.
func (h *Handler) AddMessage(c *gin.Context) {
	chat, ok := h.loadChat(c)
	if !ok {
		return
	}
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id, err := h.chats.AddMessage(c.Request.Context(), chat.ID, req.Role, req.Content)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// ClearMessages handles DELETE /api/v1/chats/:id/messages.
func (h *Handler) ClearMessages(c *gin.Context) {
	chat, ok := h.loadChat(c)
	if !ok {
		return
	}
	if err := h.chats.ClearMessages(c.Request.Context(), chat.ID); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GenerateTitle handles POST /api/v1/chats/:id/title. The title is derived
// from the request's message, or from the chat's first user message when the
// body is empty, using the chat's model. The generated title is stored and
// returned.
func (h *Handler) GenerateTitle(c *gin.Context) {
	chat, ok := h.loadChat(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req generateTitleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	message := req.Message
	if message == "" {
		messages, err := h.chats.GetMessages(ctx, chat.ID)
		if err != nil {
			storeError(c, err)
			return
		}
		message = firstUserMessage(messages)
	}

	title := h.titles.GenerateTitle(ctx, message, chat.Model)
	if err := h.chats.UpdateChatTitle(ctx, chat.ID, title); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": chat.ID, "title": title})
}

func firstUserMessage(messages []chatstore.Message) string {
	for _, m := range messages {
		if m.Role == chatstore.RoleUser {
			return m.Content
		}
	}
	return ""
}

// loadChat resolves :id to a chat, writing the error response itself when
// it returns false.
func (h *Handler) loadChat(c *gin.Context) (*chatstore.Chat, bool) {
	id, ok := chatID(c)
	if !ok {
		return nil, false
	}
	chat, err := h.chats.GetChat(c.Request.Context(), id)
	if err != nil {
		storeError(c, err)
		return nil, false
	}
	if chat == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": chatstore.ErrChatNotFound.Error()})
		return nil, false
	}
	return chat, true
}

func chatID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid chat id"})
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
}

// storeError maps chatstore sentinels to 4xx and everything else to 500.
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chatstore.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": chatstore.ErrChatNotFound.Error()})
	case errors.Is(err, chatstore.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "chat store error", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "internal server error"})
	}
}
