package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
)

const maxHistoryLimit = 200

// RoomAccess decides whether an identity may read a room.
type RoomAccess interface {
	CanAccess(ctx context.Context, room, identity string) (bool, error)
}

// RoomHandlers serves persisted room history.
type RoomHandlers struct {
	engine       *core.Engine
	access       RoomAccess
	defaultLimit int
	log          *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance. access may be nil, in which case
// every room is readable by any authenticated identity.
func NewRoomHandlers(engine *core.Engine, access RoomAccess, defaultLimit int, logger *zerolog.Logger) *RoomHandlers {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &RoomHandlers{
		engine:       engine,
		access:       access,
		defaultLimit: defaultLimit,
		log:          logger,
	}
}

// HistoryResponse is a page of room history, oldest first.
type HistoryResponse struct {
	Room     string          `json:"room"`
	Messages []proto.Message `json:"messages"`
}

// History handles fetching persisted messages of a room.
// GET /api/rooms/:room/messages?limit=50&before=123
func (h *RoomHandlers) History(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthorized})
		return
	}
	room := c.Param("room")

	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Code: core.ErrCodeBadRequest})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var before *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before", Code: core.ErrCodeBadRequest})
			return
		}
		before = &id
	}

	if h.access != nil {
		allowed, err := h.access.CanAccess(c.Request.Context(), room, identity)
		if err != nil {
			writeError(c, h.log, err)
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant of this conversation", Code: core.ErrCodeUnauthorized})
			return
		}
	}

	messages, err := h.engine.History(c.Request.Context(), room, limit, before)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	response := HistoryResponse{Room: room, Messages: make([]proto.Message, 0, len(messages))}
	for _, msg := range messages {
		response.Messages = append(response.Messages, messageToProto(msg))
	}

	h.log.Debug().Str("identity", identity).Str("room", room).Int("count", len(messages)).Msg("history listed")
	c.JSON(http.StatusOK, response)
}
