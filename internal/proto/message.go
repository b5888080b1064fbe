package proto

import (
	"bytes"
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeAddUser        = "add-user"
	InboundTypeJoinChannel    = "join-channel"
	InboundTypeLeaveChannel   = "leave-channel"
	InboundTypeSendMsg        = "send-msg"
	InboundTypeSendChannelMsg = "send-channel-msg"
	InboundTypeTyping         = "typing"
	InboundTypeStopTyping     = "stop-typing"
	InboundTypeMsgDelete      = "msg-delete"

	// Event names keep the spelling existing clients listen for.
	EventOnlineUsers       = "online-users"
	EventMsgReceive        = "msg-recieve"
	EventChannelMsgReceive = "channel-msg-recieve"
	EventDisplayTyping     = "display-typing"
	EventHideTyping        = "hide-typing"
	EventMsgDeleted        = "msg-deleted"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	ConversationDM      = "dm"
	ConversationChannel = "channel"
)

// AddUserData binds a connection to a user identity. It accepts either a bare
// identity string or an object.
type AddUserData struct {
	User     string `json:"user"`
	Token    string `json:"token,omitempty"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

func (d *AddUserData) UnmarshalJSON(b []byte) error {
	if s, ok, err := bareString(b); ok || err != nil {
		d.User = s
		return err
	}
	type plain AddUserData
	return json.Unmarshal(b, (*plain)(d))
}

// ChannelData names a channel to join or leave. A bare string is accepted.
type ChannelData struct {
	Channel string `json:"channel"`
}

func (d *ChannelData) UnmarshalJSON(b []byte) error {
	if s, ok, err := bareString(b); ok || err != nil {
		d.Channel = s
		return err
	}
	type plain ChannelData
	return json.Unmarshal(b, (*plain)(d))
}

// Payload is a message body. Text messages travel as a plain JSON string,
// attachments as an object.
type Payload struct {
	Type     string  `json:"type"`
	Text     string  `json:"text,omitempty"`
	AudioURL string  `json:"audioUrl,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	FileURL  string  `json:"fileUrl,omitempty"`
	FileName string  `json:"fileName,omitempty"`
	FileSize int64   `json:"fileSize,omitempty"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Type == "" || p.Type == "text" {
		return json.Marshal(p.Text)
	}
	type plain Payload
	return json.Marshal(plain(p))
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	if s, ok, err := bareString(b); ok || err != nil {
		*p = Payload{Type: "text", Text: s}
		return err
	}
	type plain Payload
	if err := json.Unmarshal(b, (*plain)(p)); err != nil {
		return err
	}
	if p.Type == "" {
		p.Type = "text"
	}
	return nil
}

// SendData is a message sent by the client, to a user (send-msg) or a channel
// (send-channel-msg).
type SendData struct {
	To         string  `json:"to"`
	From       string  `json:"from,omitempty"`
	Msg        Payload `json:"msg"`
	SenderName string  `json:"senderName,omitempty"`
	Avatar     string  `json:"avatar,omitempty"`
	Type       string  `json:"type,omitempty"`
}

// TypingData is used in both directions for typing signals.
type TypingData struct {
	To         string `json:"to"`
	From       string `json:"from"`
	Type       string `json:"type"`
	SenderName string `json:"senderName,omitempty"`
}

// DeleteData asks the server to delete a message.
type DeleteData struct {
	ID   string `json:"id"`
	To   string `json:"to,omitempty"`
	Type string `json:"type,omitempty"`
}

// MessageData is a persisted message as delivered live and by history fetches.
type MessageData struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	From       string    `json:"from"`
	Msg        Payload   `json:"msg"`
	SenderName string    `json:"senderName,omitempty"`
	Avatar     string    `json:"avatar,omitempty"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HistoryResponse is returned by the message history endpoint, oldest first.
type HistoryResponse struct {
	Messages []MessageData `json:"messages"`
	HasMore  bool          `json:"hasMore"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// RawOutbound is Outbound as read by clients, with Data left undecoded.
type RawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// bareString reports whether b is a JSON string and decodes it.
func bareString(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '"' {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", true, err
	}
	return s, true, nil
}
