package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/duochat/internal/chat"
	"github.com/lalith-99/duochat/internal/middleware"
	"go.uber.org/zap"
)

type MessageHandler struct {
	chat   *chat.Service
	logger *zap.Logger
}

func NewMessageHandler(svc *chat.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{chat: svc, logger: logger.Named("api")}
}

type sendGroupRequest struct {
	Content  *string `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

type sendDirectRequest struct {
	ToUser   string  `json:"toUser" binding:"required"`
	Content  *string `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ListGroup handles GET /api/messages/group
func (h *MessageHandler) ListGroup(c *gin.Context) {
	messages, err := h.chat.GroupHistory(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list group messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendGroup handles POST /api/messages/group
func (h *MessageHandler) SendGroup(c *gin.Context) {
	var req sendGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.chat.SendGroup(c.Request.Context(), middleware.GetUsername(c), req.Content, req.ImageURL)
	if err != nil {
		h.writeError(c, "send group message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// EditGroup handles PUT /api/messages/group/:id
func (h *MessageHandler) EditGroup(c *gin.Context) {
	id, req, ok := bindEdit(c)
	if !ok {
		return
	}
	msg, err := h.chat.EditGroup(c.Request.Context(), id, middleware.GetUsername(c), req.Content)
	if err != nil {
		h.writeError(c, "edit group message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ListDirect handles GET /api/messages/direct/:otherUser
func (h *MessageHandler) ListDirect(c *gin.Context) {
	messages, err := h.chat.DirectHistory(c.Request.Context(), middleware.GetUsername(c), c.Param("otherUser"))
	if err != nil {
		h.logger.Error("failed to list direct messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendDirect handles POST /api/messages/direct
func (h *MessageHandler) SendDirect(c *gin.Context) {
	var req sendDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.chat.SendDirect(c.Request.Context(), middleware.GetUsername(c), req.ToUser, req.Content, req.ImageURL)
	if err != nil {
		h.writeError(c, "send direct message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// EditDirect handles PUT /api/messages/direct/:id
func (h *MessageHandler) EditDirect(c *gin.Context) {
	id, req, ok := bindEdit(c)
	if !ok {
		return
	}
	msg, err := h.chat.EditDirect(c.Request.Context(), id, middleware.GetUsername(c), req.Content)
	if err != nil {
		h.writeError(c, "edit direct message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func bindEdit(c *gin.Context) (uuid.UUID, editMessageRequest, bool) {
	var req editMessageRequest
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return uuid.Nil, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return uuid.Nil, req, false
	}
	return id, req, true
}

func (h *MessageHandler) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrUnknownUser),
		errors.Is(err, chat.ErrSelfRecipient):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Error("failed to "+op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + op})
	}
}
