package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 2

	InboundTypeJoinRoom         = "join_room"
	InboundTypeLeaveRoom        = "leave_room"
	InboundTypeSendMessage      = "send_message"
	InboundTypeEditMessage      = "edit_message"
	InboundTypeDeleteMessage    = "delete_message"
	InboundTypeReact            = "react"
	InboundTypeTyping           = "typing"
	InboundTypeMessageDelivered = "message_delivered"
	InboundTypeMessageRead      = "message_read"
	InboundTypeOpenDirect       = "open_direct"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventReceiveMessage      = "receive_message"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventMessageStatusUpdate = "message_status_update"
	EventReactionUpdate      = "reaction_update"
	EventTyping              = "typing"
	EventPresenceUpdate      = "presence_update"
	EventHistory             = "history"
	EventConversationOpened  = "conversation_opened"
	EventConversationDeleted = "conversation_deleted"
	EventErrorMessage        = "error_message"
)

// RoomData addresses a room. join_room also accepts the bare room name as data.
type RoomData struct {
	Room string `json:"room"`
}

// UnmarshalJSON accepts either {"room": "..."} or "...".
func (d *RoomData) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		d.Room = name
		return nil
	}
	type plain RoomData
	return json.Unmarshal(b, (*plain)(d))
}

// MessageContent is the client-supplied body of a new message.
type MessageContent struct {
	Text    string `json:"text"`
	FileURL string `json:"fileUrl,omitempty"`
	ReplyTo *int64 `json:"replyTo,omitempty"`
}

// SendMessageData sends a new message into a room.
type SendMessageData struct {
	Room    string         `json:"room"`
	Message MessageContent `json:"message"`
}

// EditMessageData replaces the text of a message.
type EditMessageData struct {
	Room      string `json:"room"`
	MessageID int64  `json:"messageId"`
	Text      string `json:"text"`
}

// DeleteMessageData removes a message.
type DeleteMessageData struct {
	Room      string `json:"room"`
	MessageID int64  `json:"messageId"`
}

// ReactData toggles a reaction. Identity is optional; when present it must match the connection.
type ReactData struct {
	Room      string `json:"room"`
	MessageID int64  `json:"messageId"`
	Identity  string `json:"identity,omitempty"`
	Emoji     string `json:"emoji"`
}

// TypingData announces typing state.
type TypingData struct {
	Room     string `json:"room"`
	Identity string `json:"identity,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// AckData acknowledges delivery or reading of a message.
type AckData struct {
	MessageID int64  `json:"messageId"`
	Identity  string `json:"identity,omitempty"`
}

// OpenDirectData opens the direct conversation with a peer.
type OpenDirectData struct {
	Peer string `json:"peer"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Reaction is a single identity's reaction on a message.
type Reaction struct {
	Identity string `json:"identity"`
	Emoji    string `json:"emoji"`
}

// Message is the persisted message record as seen by clients.
type Message struct {
	ID            int64      `json:"id"`
	Room          string     `json:"room"`
	Sender        string     `json:"sender"`
	Text          string     `json:"text"`
	AttachmentRef string     `json:"attachmentRef,omitempty"`
	ReplyTo       *int64     `json:"replyTo,omitempty"`
	Reactions     []Reaction `json:"reactions"`
	DeliveredTo   []string   `json:"deliveredTo"`
	ReadBy        []string   `json:"readBy"`
	Edited        bool       `json:"edited"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// EventMessageDeletedData tells room members a message is gone.
type EventMessageDeletedData struct {
	Room      string `json:"room"`
	MessageID int64  `json:"messageId"`
}

// EventConversationDeletedData tells joined connections that a conversation is gone.
type EventConversationDeletedData struct {
	ConversationID string `json:"conversationId"`
}

// EventMessageStatus carries the acknowledgement sets of a message and its derived status.
type EventMessageStatus struct {
	Message
	Status string `json:"status"`
}

// EventTypingData relays typing state of another room member.
type EventTypingData struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	IsTyping bool   `json:"isTyping"`
}

// EventPresence reports an identity going online or offline.
type EventPresence struct {
	Identity string `json:"identity"`
	Status   string `json:"status"`
}

// EventHistoryData carries recent messages of a room, oldest first.
type EventHistoryData struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

// Conversation is a direct or group conversation.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	IsGroup       bool      `json:"isGroup"`
	Name          string    `json:"name,omitempty"`
	LastMessageID *int64    `json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Op   string `json:"op,omitempty"`
}
