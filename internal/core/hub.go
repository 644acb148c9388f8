package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/metrics"
	"github.com/vovakirdan/wirechat-server/internal/store"
)

const defaultHistoryLimit = 50

// RoomAccess decides whether an identity may use a room.
type RoomAccess interface {
	// CanAccess reports whether identity may join, post to or acknowledge in room.
	// Rooms that are not conversations are open to everyone.
	CanAccess(ctx context.Context, room, identity string) (bool, error)
}

// Directory resolves conversations for the hub.
type Directory interface {
	RoomAccess
	// FindOrCreateDirect returns the direct conversation between two identities.
	FindOrCreateDirect(ctx context.Context, identityA, identityB string) (*store.Conversation, error)
	// Delete removes a conversation with its messages on behalf of requester.
	Delete(ctx context.Context, id, requester string) error
}

// Options tune the hub.
type Options struct {
	Moderators   []string
	HistoryLimit int
	Metrics      *metrics.Metrics
}

// Hub coordinates connections, rooms, presence and the message lifecycle.
type Hub struct {
	router    *Router
	presence  *Presence
	engine    *Engine
	typing    *TypingBroadcaster
	directory Directory

	historyLimit int
	metrics      *metrics.Metrics
	log          *zerolog.Logger
}

// NewHub creates a new chat hub instance. dir may be nil, in which case every room is open
// and open_direct is rejected.
func NewHub(st store.MessageStore, dir Directory, opts Options, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}

	router := NewRouter(opts.Metrics, logger)
	presence := NewPresence(router.Broadcast)
	engine := NewEngine(st, router, presence, NewStaticModerators(opts.Moderators), opts.Metrics, logger)
	if dir != nil {
		engine.access = dir
	}

	return &Hub{
		router:       router,
		presence:     presence,
		engine:       engine,
		typing:       NewTypingBroadcaster(router, logger),
		directory:    dir,
		historyLimit: opts.HistoryLimit,
		metrics:      opts.Metrics,
		log:          logger,
	}
}

// Engine exposes the lifecycle engine, e.g. for history fetches.
func (h *Hub) Engine() *Engine { return h.engine }

// Presence exposes the presence registry.
func (h *Hub) Presence() *Presence { return h.presence }

// RegisterClient makes the connection reachable and marks its identity online.
func (h *Hub) RegisterClient(c *Client) {
	h.router.Add(c)
	h.presence.Register(c.Identity, c.ID)
	h.metrics.ConnectionOpened()
	h.log.Info().Str("conn_id", c.ID).Str("identity", c.Identity).Msg("client connected")
}

// UnregisterClient removes the connection from every room and from presence.
// In-flight operations of the connection still complete.
func (h *Hub) UnregisterClient(c *Client) {
	rooms := h.router.Remove(c)
	h.presence.Unregister(c.ID)
	h.metrics.ConnectionClosed()
	h.log.Info().Str("conn_id", c.ID).Str("identity", c.Identity).Int("rooms", len(rooms)).Msg("client disconnected")
}

// Submit queues cmd for the connection's worker. Typing bypasses the queue so it is
// never held up behind a pending persist.
func (h *Hub) Submit(ctx context.Context, c *Client, cmd Command) {
	if typing, ok := cmd.(SetTyping); ok {
		h.typing.SetTyping(typing.Room, c.Identity, c.ID, typing.IsTyping)
		return
	}
	select {
	case c.Commands <- cmd:
	case <-ctx.Done():
	}
}

// Serve processes the connection's queued commands in order until ctx is done.
func (h *Hub) Serve(ctx context.Context, c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			h.Handle(ctx, c, cmd)
		case <-ctx.Done():
			return
		}
	}
}

// Handle executes a single command for c. Failures are reported to c only.
// The error event waits for room in the connection's buffer until ctx is done.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd Command) {
	// A disconnect must not abort a write that already started.
	opCtx := context.WithoutCancel(ctx)

	if err := h.dispatch(opCtx, c, cmd); err != nil {
		ce := AsCoreError(err)
		h.log.Debug().Str("conn_id", c.ID).Str("op", cmd.Kind().String()).Str("code", ce.Code).Msg("operation failed")
		if !h.router.UnicastWait(ctx, c.ID, ErrorEvent{Op: cmd.Kind().String(), Err: ce}) {
			h.log.Debug().Str("conn_id", c.ID).Str("op", cmd.Kind().String()).Msg("error event not delivered, connection gone")
		}
	}
}

// DeleteConversation removes a conversation on behalf of requester. Sends into the
// room are held off while the delete runs; afterwards every joined connection gets
// conversation_deleted and is removed from the room.
func (h *Hub) DeleteConversation(ctx context.Context, id, requester string) error {
	if h.directory == nil {
		return errBadRequest("conversations are not available")
	}

	unlock := h.engine.rooms.Lock(id)
	defer unlock()

	if err := h.directory.Delete(ctx, id, requester); err != nil {
		return err
	}

	h.router.Multicast(id, ConversationDeleted{ConversationID: id}, "")
	evicted := h.router.Evict(id)
	h.log.Info().Str("room", id).Str("identity", requester).Int("evicted", len(evicted)).Msg("conversation deleted")
	return nil
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd Command) error {
	switch cmd := cmd.(type) {
	case JoinRoom:
		return h.join(ctx, c, cmd.Room)
	case LeaveRoom:
		if cmd.Room == "" {
			return errBadRequest("room is required")
		}
		if !h.router.Leave(c.ID, cmd.Room) {
			return errNotFound("not joined to room")
		}
		return nil
	case SendMessage:
		_, err := h.engine.Send(ctx, c.Identity, cmd.Room, cmd.Content)
		return err
	case EditMessage:
		_, err := h.engine.Edit(ctx, cmd.MessageID, c.Identity, cmd.Text)
		return err
	case DeleteMessage:
		return h.engine.Delete(ctx, cmd.MessageID, c.Identity)
	case React:
		_, err := h.engine.ToggleReaction(ctx, cmd.MessageID, c.Identity, cmd.Emoji)
		return err
	case SetTyping:
		h.typing.SetTyping(cmd.Room, c.Identity, c.ID, cmd.IsTyping)
		return nil
	case AckDelivered:
		_, err := h.engine.AcknowledgeDelivered(ctx, cmd.MessageID, c.Identity)
		return err
	case AckRead:
		_, err := h.engine.AcknowledgeRead(ctx, cmd.MessageID, c.Identity)
		return err
	case OpenDirect:
		return h.openDirect(ctx, c, cmd.Peer)
	default:
		return errBadRequest("unknown command")
	}
}

func (h *Hub) join(ctx context.Context, c *Client, room string) error {
	if room == "" {
		return errBadRequest("room is required")
	}

	if err := h.engine.checkAccess(ctx, room, c.Identity); err != nil {
		return err
	}

	if !h.router.Join(c.ID, room) {
		// Already joined; joining is idempotent.
		return nil
	}

	messages, err := h.engine.History(ctx, room, h.historyLimit, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room).Msg("failed to load history on join")
		return nil
	}
	h.router.Unicast(c.ID, History{Room: room, Messages: messages})
	return nil
}

func (h *Hub) openDirect(ctx context.Context, c *Client, peer string) error {
	if h.directory == nil {
		return errBadRequest("conversations are not available")
	}
	if peer == "" {
		return errBadRequest("peer is required")
	}

	conv, err := h.directory.FindOrCreateDirect(ctx, c.Identity, peer)
	if err != nil {
		return err
	}
	h.router.Unicast(c.ID, ConversationOpened{Conversation: conv})
	return h.join(ctx, c, conv.ID)
}
