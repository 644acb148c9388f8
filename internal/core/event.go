package core

import "github.com/vovakirdan/wirechat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage delivers a newly persisted message to a room.
	EventReceiveMessage EventKind = iota
	// EventMessageEdited notifies a room about an edited message.
	EventMessageEdited
	// EventMessageDeleted notifies a room that a message was removed.
	EventMessageDeleted
	// EventMessageStatus carries updated delivery/read sets.
	EventMessageStatus
	// EventReactionUpdate carries the updated reaction set of a message.
	EventReactionUpdate
	// EventTyping relays typing state to the other room members.
	EventTyping
	// EventPresence is broadcast to every connection when an identity goes online or offline.
	EventPresence
	// EventHistory delivers recent messages to a connection upon joining a room.
	EventHistory
	// EventConversationOpened answers an open_direct request.
	EventConversationOpened
	// EventConversationDeleted tells the joined connections that a conversation is gone.
	EventConversationDeleted
	// EventError notifies the originating connection about a failed operation.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event interface {
	Kind() EventKind
}

// PresenceStatus is the online state of an identity.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

type ReceiveMessage struct {
	Message *store.Message
}

type MessageEdited struct {
	Message *store.Message
}

type MessageDeleted struct {
	Room      string
	MessageID int64
}

type MessageStatusUpdate struct {
	Message *store.Message
}

type ReactionUpdate struct {
	Message *store.Message
}

type Typing struct {
	Room     string
	Identity string
	IsTyping bool
}

type PresenceUpdate struct {
	Identity string
	Status   PresenceStatus
}

type History struct {
	Room     string
	Messages []*store.Message
}

type ConversationOpened struct {
	Conversation *store.Conversation
}

type ConversationDeleted struct {
	ConversationID string
}

// ErrorEvent is unicast to the connection whose operation failed.
type ErrorEvent struct {
	Op  string
	Err *CoreError
}

func (ReceiveMessage) Kind() EventKind      { return EventReceiveMessage }
func (MessageEdited) Kind() EventKind       { return EventMessageEdited }
func (MessageDeleted) Kind() EventKind      { return EventMessageDeleted }
func (MessageStatusUpdate) Kind() EventKind { return EventMessageStatus }
func (ReactionUpdate) Kind() EventKind      { return EventReactionUpdate }
func (Typing) Kind() EventKind              { return EventTyping }
func (PresenceUpdate) Kind() EventKind      { return EventPresence }
func (History) Kind() EventKind             { return EventHistory }
func (ConversationOpened) Kind() EventKind  { return EventConversationOpened }
func (ConversationDeleted) Kind() EventKind { return EventConversationDeleted }
func (ErrorEvent) Kind() EventKind          { return EventError }
