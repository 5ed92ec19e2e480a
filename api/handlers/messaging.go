package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/event-connect/backend/internal/auth"
	"github.com/event-connect/backend/internal/model"
	"github.com/event-connect/backend/internal/repository"
)

// MessagingHandler handles HTTP requests for conversations and messages.
type MessagingHandler struct {
	repo     *repository.MessagingRepository
	verifier auth.Verifier
}

// NewMessagingHandler creates a new MessagingHandler.
func NewMessagingHandler(repo *repository.MessagingRepository, verifier auth.Verifier) *MessagingHandler {
	return &MessagingHandler{
		repo:     repo,
		verifier: verifier,
	}
}

// CreateConversationRequest is the body for creating or fetching the
// conversation with another participant.
type CreateConversationRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

// SendMessageRequest is the body for posting a message over HTTP.
type SendMessageRequest struct {
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"messageType"`
}

// ListConversations handles GET /events/:eventId/conversations.
func (h *MessagingHandler) ListConversations(c *gin.Context) {
	identity, ok := identityFromRequest(c, h.verifier)
	if !ok {
		return
	}

	conversations, err := h.repo.ConversationsForUser(c.Request.Context(), identity.UserID, c.Param("eventId"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list conversations: "+err.Error())
		return
	}

	if conversations == nil {
		conversations = []*model.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// CreateConversation handles POST /events/:eventId/conversations. It returns
// the existing conversation when one already links the two participants.
func (h *MessagingHandler) CreateConversation(c *gin.Context) {
	identity, ok := identityFromRequest(c, h.verifier)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "participantId is required")
		return
	}

	conversation, err := h.repo.CreateOrGetConversation(c.Request.Context(), c.Param("eventId"), identity.UserID, req.ParticipantID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create conversation: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

// ListMessages handles GET /conversations/:id/messages.
func (h *MessagingHandler) ListMessages(c *gin.Context) {
	if _, ok := identityFromRequest(c, h.verifier); !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.repo.Messages(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list messages: "+err.Error())
		return
	}

	if messages == nil {
		messages = []*model.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage handles POST /conversations/:id/messages.
func (h *MessagingHandler) SendMessage(c *gin.Context) {
	identity, ok := identityFromRequest(c, h.verifier)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "content is required")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "content is required")
		return
	}

	message, err := h.repo.SendMessage(c.Request.Context(), c.Param("id"), identity.UserID, content, req.MessageType)
	if err != nil {
		if errors.Is(err, model.ErrConversationNotFound) {
			sendError(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to send message: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// MarkRead handles POST /conversations/:id/read.
func (h *MessagingHandler) MarkRead(c *gin.Context) {
	identity, ok := identityFromRequest(c, h.verifier)
	if !ok {
		return
	}

	if err := h.repo.MarkRead(c.Request.Context(), c.Param("id"), identity.UserID); err != nil {
		if errors.Is(err, model.ErrConversationNotFound) {
			sendError(c, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to mark conversation read: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnreadCount handles GET /events/:eventId/messages/unread.
func (h *MessagingHandler) UnreadCount(c *gin.Context) {
	identity, ok := identityFromRequest(c, h.verifier)
	if !ok {
		return
	}

	count, err := h.repo.UnreadCount(c.Request.Context(), identity.UserID, c.Param("eventId"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to count unread messages: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

// RegisterRoutes registers the messaging routes on a Gin router group.
func (h *MessagingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events/:eventId/conversations", h.ListConversations)
	rg.POST("/events/:eventId/conversations", h.CreateConversation)
	rg.GET("/events/:eventId/messages/unread", h.UnreadCount)
	rg.GET("/conversations/:id/messages", h.ListMessages)
	rg.POST("/conversations/:id/messages", h.SendMessage)
	rg.POST("/conversations/:id/read", h.MarkRead)
}
