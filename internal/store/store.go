package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) when a record does not exist.
var ErrNotFound = errors.New("not found")

// Reaction is a single (identity, emoji) pair owned by a message.
type Reaction struct {
	Identity string
	Emoji    string
}

// Message represents a persisted chat message.
type Message struct {
	ID            int64
	Room          string
	Sender        string
	Text          string
	AttachmentRef string
	ReplyTo       *int64
	Reactions     []Reaction
	DeliveredTo   []string
	ReadBy        []string
	Edited        bool
	CreatedAt     time.Time
}

// MessageStatus is the tick state derived from the acknowledgement sets.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Status derives the UI-facing status from the acknowledgement sets.
func (m *Message) Status() MessageStatus {
	switch {
	case len(m.ReadBy) > 0:
		return MessageStatusRead
	case len(m.DeliveredTo) > 0:
		return MessageStatusDelivered
	default:
		return MessageStatusSent
	}
}

// Conversation represents a direct or group conversation. Its ID doubles as the room name.
type Conversation struct {
	ID            string
	Participants  []string
	IsGroup       bool
	Name          string
	DirectKey     *string // for direct conversations: "dm:{min}:{max}"
	LastMessageID *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasParticipant reports whether identity takes part in the conversation.
func (c *Conversation) HasParticipant(identity string) bool {
	for _, p := range c.Participants {
		if p == identity {
			return true
		}
	}
	return false
}

// MessageStore handles message persistence. Every mutating call is atomic per message
// and returns the fully materialized record after the change.
type MessageStore interface {
	// CreateMessage persists msg, assigning ID and CreatedAt. Conversation rooms get
	// their last message pointer updated in the same transaction.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListMessages returns messages of a room ordered by creation time, oldest first.
	// If beforeID is provided, only messages ordered before that message are considered.
	// Limit caps the result to the newest matching messages.
	ListMessages(ctx context.Context, room string, limit int, beforeID *int64) ([]*Message, error)

	// UpdateMessageText replaces the text and marks the message as edited.
	UpdateMessageText(ctx context.Context, id int64, text string) (*Message, error)

	// DeleteMessage hard-deletes a message with its reactions and receipts.
	DeleteMessage(ctx context.Context, id int64) error

	// ToggleReaction applies toggle semantics for identity's reaction on a message.
	ToggleReaction(ctx context.Context, id int64, identity, emoji string) (*Message, error)

	// MarkDelivered adds identity to the delivered set.
	MarkDelivered(ctx context.Context, id int64, identity string) (*Message, error)

	// MarkRead adds identity to the read set (and the delivered set).
	MarkRead(ctx context.Context, id int64, identity string) (*Message, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateDirectConversation creates a direct conversation for directKey or returns the
	// existing one. Safe against concurrent creation for the same key.
	CreateDirectConversation(ctx context.Context, directKey, identityA, identityB string) (*Conversation, error)

	// CreateGroupConversation creates a named group conversation.
	CreateGroupConversation(ctx context.Context, name string, participants []string) (*Conversation, error)

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// GetConversationByDirectKey retrieves a direct conversation by its direct key.
	GetConversationByDirectKey(ctx context.Context, directKey string) (*Conversation, error)

	// ListConversations lists conversations the identity participates in, most recently updated first.
	ListConversations(ctx context.Context, identity string) ([]*Conversation, error)

	// DeleteConversation removes the conversation and all of its messages and
	// remembers the id as deleted.
	DeleteConversation(ctx context.Context, id string) error

	// IsConversationDeleted reports whether id names a deleted conversation.
	IsConversationDeleted(ctx context.Context, id string) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	ConversationStore

	// Close closes the underlying database connection.
	Close() error
}
