package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAddUser binds the connection to a user identity.
	CommandAddUser CommandKind = iota
	// CommandJoinChannel subscribes the connection to a channel room.
	CommandJoinChannel
	// CommandLeaveChannel unsubscribes the connection from a channel room.
	CommandLeaveChannel
	// CommandSendDirect persists and delivers a direct message.
	CommandSendDirect
	// CommandSendChannel persists and broadcasts a channel message.
	CommandSendChannel
	// CommandTyping relays a typing signal.
	CommandTyping
	// CommandStopTyping relays the end of a typing signal.
	CommandStopTyping
	// CommandDeleteMessage deletes a persisted message and notifies its conversation.
	CommandDeleteMessage
)

func (k CommandKind) String() string {
	switch k {
	case CommandAddUser:
		return "add_user"
	case CommandJoinChannel:
		return "join_channel"
	case CommandLeaveChannel:
		return "leave_channel"
	case CommandSendDirect:
		return "send_direct"
	case CommandSendChannel:
		return "send_channel"
	case CommandTyping:
		return "typing"
	case CommandStopTyping:
		return "stop_typing"
	case CommandDeleteMessage:
		return "delete_message"
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	// add-user
	User   string
	Name   string
	Avatar string

	// join/leave, typing, send
	Channel string
	To      string
	Target  ConversationKind

	Message   Message
	MessageID string
}
