package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/metrics"
	"github.com/vovakirdan/wirechat-server/internal/store"
)

// Engine drives a message through send, delivery and read acknowledgement, edit and delete.
// Every mutation persists first and fans out only after the store confirmed it.
type Engine struct {
	store    store.MessageStore
	router   *Router
	presence *Presence
	mods     ModeratorPolicy
	access   RoomAccess // nil leaves every room open
	rooms    *roomLocks
	metrics  *metrics.Metrics
	log      *zerolog.Logger
}

// NewEngine wires the lifecycle engine to its collaborators.
func NewEngine(st store.MessageStore, router *Router, presence *Presence, mods ModeratorPolicy, m *metrics.Metrics, logger *zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		router:   router,
		presence: presence,
		mods:     mods,
		rooms:    newRoomLocks(),
		metrics:  m,
		log:      logger,
	}
}

// Send persists a new message and multicasts receive_message with the stored record.
// The sender must be allowed into the room; the check runs under the room lock so a
// concurrent conversation delete cannot be overtaken.
func (e *Engine) Send(ctx context.Context, sender, room string, content Content) (msg *store.Message, err error) {
	defer e.observe(CommandSendMessage, time.Now(), &err)

	if room == "" {
		return nil, errBadRequest("room is required")
	}
	if strings.TrimSpace(content.Text) == "" && content.AttachmentRef == "" {
		return nil, errInvalidArgument("message needs text or an attachment")
	}
	if !Allowed(OpSend, sender, nil, e.mods) {
		return nil, errUnauthorized("not allowed to send")
	}

	if content.ReplyTo != nil {
		parent, err := e.store.GetMessage(ctx, *content.ReplyTo)
		if err != nil {
			if ce := FromStoreError(err); ce.Code != ErrCodeNotFound {
				return nil, ce
			}
			return nil, errInvalidArgument("replyTo references an unknown message")
		}
		if parent.Room != room {
			return nil, errInvalidArgument("replyTo references a message in another room")
		}
	}

	unlock := e.rooms.Lock(room)
	defer unlock()

	if err := e.checkAccess(ctx, room, sender); err != nil {
		return nil, err
	}

	msg = &store.Message{
		Room:          room,
		Sender:        sender,
		Text:          content.Text,
		AttachmentRef: content.AttachmentRef,
		ReplyTo:       content.ReplyTo,
	}
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		e.log.Error().Err(err).Str("room", room).Str("identity", sender).Msg("failed to persist message")
		return nil, FromStoreError(err)
	}

	e.router.Multicast(room, ReceiveMessage{Message: msg}, "")
	e.log.Debug().Int64("message_id", msg.ID).Str("room", room).Str("identity", sender).Msg("message sent")
	return msg, nil
}

// AcknowledgeDelivered adds identity to the delivered set of a message.
func (e *Engine) AcknowledgeDelivered(ctx context.Context, messageID int64, identity string) (msg *store.Message, err error) {
	defer e.observe(CommandAckDelivered, time.Now(), &err)
	return e.acknowledge(ctx, messageID, identity, e.store.MarkDelivered)
}

// AcknowledgeRead adds identity to the read set of a message; reading implies delivery.
func (e *Engine) AcknowledgeRead(ctx context.Context, messageID int64, identity string) (msg *store.Message, err error) {
	defer e.observe(CommandAckRead, time.Now(), &err)
	return e.acknowledge(ctx, messageID, identity, e.store.MarkRead)
}

type markFunc func(ctx context.Context, id int64, identity string) (*store.Message, error)

func (e *Engine) acknowledge(ctx context.Context, messageID int64, identity string, mark markFunc) (*store.Message, error) {
	current, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, FromStoreError(err)
	}
	// A sender acknowledging its own message would fake a recipient tick.
	if current.Sender == identity {
		return current, nil
	}

	unlock := e.rooms.Lock(current.Room)
	defer unlock()

	if err := e.checkAccess(ctx, current.Room, identity); err != nil {
		return nil, err
	}

	msg, err := mark(ctx, messageID, identity)
	if err != nil {
		e.log.Error().Err(err).Int64("message_id", messageID).Str("identity", identity).Msg("failed to persist acknowledgement")
		return nil, FromStoreError(err)
	}

	e.publishToRoomAndSender(msg, MessageStatusUpdate{Message: msg})
	return msg, nil
}

// Edit replaces the text of a message. Only the sender may edit.
func (e *Engine) Edit(ctx context.Context, messageID int64, editor, text string) (msg *store.Message, err error) {
	defer e.observe(CommandEditMessage, time.Now(), &err)

	if strings.TrimSpace(text) == "" {
		return nil, errInvalidArgument("text is required")
	}

	current, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, FromStoreError(err)
	}
	if !Allowed(OpEdit, editor, current, e.mods) {
		return nil, errUnauthorized("only the sender can edit a message")
	}

	unlock := e.rooms.Lock(current.Room)
	defer unlock()

	msg, err = e.store.UpdateMessageText(ctx, messageID, text)
	if err != nil {
		e.log.Error().Err(err).Int64("message_id", messageID).Msg("failed to persist edit")
		return nil, FromStoreError(err)
	}

	e.router.Multicast(msg.Room, MessageEdited{Message: msg}, "")
	return msg, nil
}

// Delete hard-removes a message. The sender and moderators may delete.
func (e *Engine) Delete(ctx context.Context, messageID int64, requester string) (err error) {
	defer e.observe(CommandDeleteMessage, time.Now(), &err)

	current, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return FromStoreError(err)
	}
	if !Allowed(OpDelete, requester, current, e.mods) {
		return errUnauthorized("not allowed to delete this message")
	}

	unlock := e.rooms.Lock(current.Room)
	defer unlock()

	if err := e.store.DeleteMessage(ctx, messageID); err != nil {
		e.log.Error().Err(err).Int64("message_id", messageID).Msg("failed to persist delete")
		return FromStoreError(err)
	}

	e.router.Multicast(current.Room, MessageDeleted{Room: current.Room, MessageID: messageID}, "")
	e.log.Debug().Int64("message_id", messageID).Str("identity", requester).Msg("message deleted")
	return nil
}

// History returns up to limit messages of room, oldest first.
func (e *Engine) History(ctx context.Context, room string, limit int, beforeID *int64) ([]*store.Message, error) {
	messages, err := e.store.ListMessages(ctx, room, limit, beforeID)
	if err != nil {
		return nil, FromStoreError(err)
	}
	return messages, nil
}

// checkAccess rejects identities that may not use room, e.g. outsiders of a private
// conversation or anyone after the conversation was deleted.
func (e *Engine) checkAccess(ctx context.Context, room, identity string) error {
	if e.access == nil {
		return nil
	}
	ok, err := e.access.CanAccess(ctx, room, identity)
	if err != nil {
		return err
	}
	if !ok {
		return errUnauthorized("not a participant of this conversation")
	}
	return nil
}

// publishToRoomAndSender multicasts ev to the message's room and also unicasts it to the
// sender's active connection when that connection is not joined to the room.
func (e *Engine) publishToRoomAndSender(msg *store.Message, ev Event) {
	e.router.Multicast(msg.Room, ev, "")

	if e.presence == nil {
		return
	}
	if connID, ok := e.presence.Connection(msg.Sender); ok && !e.router.IsMember(connID, msg.Room) {
		e.router.Unicast(connID, ev)
	}
}

func (e *Engine) observe(kind CommandKind, started time.Time, errp *error) {
	e.metrics.ObserveOperation(kind.String(), *errp, started)
}
