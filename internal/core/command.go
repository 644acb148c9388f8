package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the connection to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendMessage persists and fans out a new message.
	CommandSendMessage
	// CommandEditMessage replaces the text of an existing message.
	CommandEditMessage
	// CommandDeleteMessage hard-deletes a message.
	CommandDeleteMessage
	// CommandReact toggles a reaction on a message.
	CommandReact
	// CommandTyping announces typing state to the other room members.
	CommandTyping
	// CommandAckDelivered acknowledges delivery of a message.
	CommandAckDelivered
	// CommandAckRead acknowledges reading of a message.
	CommandAckRead
	// CommandOpenDirect resolves the direct conversation with a peer and joins it.
	CommandOpenDirect
)

var commandNames = map[CommandKind]string{
	CommandJoinRoom:      "join_room",
	CommandLeaveRoom:     "leave_room",
	CommandSendMessage:   "send_message",
	CommandEditMessage:   "edit_message",
	CommandDeleteMessage: "delete_message",
	CommandReact:         "react",
	CommandTyping:        "typing",
	CommandAckDelivered:  "message_delivered",
	CommandAckRead:       "message_read",
	CommandOpenDirect:    "open_direct",
}

// String returns the wire name of the command.
func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client. Each kind has its own payload type.
type Command interface {
	Kind() CommandKind
}

// Content is the client-supplied part of a new message.
type Content struct {
	Text          string
	AttachmentRef string
	ReplyTo       *int64
}

type JoinRoom struct {
	Room string
}

type LeaveRoom struct {
	Room string
}

type SendMessage struct {
	Room    string
	Content Content
}

type EditMessage struct {
	Room      string
	MessageID int64
	Text      string
}

type DeleteMessage struct {
	Room      string
	MessageID int64
}

type React struct {
	Room      string
	MessageID int64
	Emoji     string
}

type SetTyping struct {
	Room     string
	IsTyping bool
}

type AckDelivered struct {
	MessageID int64
}

type AckRead struct {
	MessageID int64
}

type OpenDirect struct {
	Peer string
}

func (JoinRoom) Kind() CommandKind      { return CommandJoinRoom }
func (LeaveRoom) Kind() CommandKind     { return CommandLeaveRoom }
func (SendMessage) Kind() CommandKind   { return CommandSendMessage }
func (EditMessage) Kind() CommandKind   { return CommandEditMessage }
func (DeleteMessage) Kind() CommandKind { return CommandDeleteMessage }
func (React) Kind() CommandKind         { return CommandReact }
func (SetTyping) Kind() CommandKind     { return CommandTyping }
func (AckDelivered) Kind() CommandKind  { return CommandAckDelivered }
func (AckRead) Kind() CommandKind       { return CommandAckRead }
func (OpenDirect) Kind() CommandKind    { return CommandOpenDirect }
