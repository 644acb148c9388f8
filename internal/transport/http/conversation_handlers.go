package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
	"github.com/vovakirdan/wirechat-server/internal/service/conversations"
)

// ConversationDeleter removes a conversation and closes its room for live connections.
type ConversationDeleter interface {
	DeleteConversation(ctx context.Context, id, requester string) error
}

// ConversationHandlers provides HTTP handlers for conversation endpoints.
type ConversationHandlers struct {
	svc     *conversations.Service
	deleter ConversationDeleter
	log     *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(svc *conversations.Service, deleter ConversationDeleter, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{svc: svc, deleter: deleter, log: logger}
}

// OpenDirectRequest represents the direct conversation request body.
type OpenDirectRequest struct {
	Peer string `json:"peer" binding:"required"`
}

// CreateGroupRequest represents the group creation request body.
type CreateGroupRequest struct {
	Name         string   `json:"name" binding:"required,max=64"`
	Participants []string `json:"participants"`
}

func (h *ConversationHandlers) identity(c *gin.Context) (string, bool) {
	identity, ok := identityFrom(c)
	if !ok {
		h.log.Error().Msg("identity not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthorized})
	}
	return identity, ok
}

// List handles listing conversations of the caller.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}

	convs, err := h.svc.ListFor(c.Request.Context(), identity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	response := make([]proto.Conversation, 0, len(convs))
	for _, conv := range convs {
		response = append(response, conversationToProto(conv))
	}
	c.JSON(http.StatusOK, response)
}

// Get handles fetching a single conversation.
// GET /api/conversations/:id
func (h *ConversationHandlers) Get(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}

	conv, err := h.svc.Get(c.Request.Context(), c.Param("id"), identity)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conversationToProto(conv))
}

// OpenDirect finds or creates the direct conversation with a peer.
// POST /api/conversations/direct
func (h *ConversationHandlers) OpenDirect(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}

	var req OpenDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid open direct request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	conv, err := h.svc.FindOrCreateDirect(c.Request.Context(), identity, req.Peer)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Info().Str("identity", identity).Str("conversation_id", conv.ID).Msg("direct conversation opened")
	c.JSON(http.StatusOK, conversationToProto(conv))
}

// CreateGroup handles group creation. The caller becomes a participant.
// POST /api/conversations/group
func (h *ConversationHandlers) CreateGroup(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	conv, err := h.svc.CreateGroup(c.Request.Context(), identity, req.Name, req.Participants)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Info().Str("identity", identity).Str("conversation_id", conv.ID).Int("participants", len(conv.Participants)).Msg("group created")
	c.JSON(http.StatusCreated, conversationToProto(conv))
}

// Delete removes a conversation and its messages.
// DELETE /api/conversations/:id
func (h *ConversationHandlers) Delete(c *gin.Context) {
	identity, ok := h.identity(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.deleter.DeleteConversation(c.Request.Context(), id, identity); err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Info().Str("identity", identity).Str("conversation_id", id).Msg("conversation deleted")
	c.Status(http.StatusNoContent)
}
