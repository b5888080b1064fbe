package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventOnlineUsers carries the full set of online identities.
	EventOnlineUsers EventKind = iota
	// EventDirectMessage delivers a DM to its recipient.
	EventDirectMessage
	// EventChannelMessage delivers a channel message to room members.
	EventChannelMessage
	// EventDisplayTyping tells a peer that someone started typing.
	EventDisplayTyping
	// EventHideTyping tells a peer that someone stopped typing.
	EventHideTyping
	// EventMessageDeleted carries the id of a deleted message.
	EventMessageDeleted
	// EventError notifies the client about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOnlineUsers:
		return "online_users"
	case EventDirectMessage:
		return "direct_message"
	case EventChannelMessage:
		return "channel_message"
	case EventDisplayTyping:
		return "display_typing"
	case EventHideTyping:
		return "hide_typing"
	case EventMessageDeleted:
		return "message_deleted"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Typing describes a typing signal as relayed to peers.
type Typing struct {
	To   string
	From string
	Name string
	Kind ConversationKind
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind

	Online       []string
	Message      Message
	Typing       Typing
	MessageID    string
	Conversation ConversationKey
	Error        *CoreError
}
