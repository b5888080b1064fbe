package core

import (
	"fmt"
	"strings"
	"time"
)

// ConversationKind distinguishes direct messages from channel messages.
type ConversationKind string

const (
	ConversationDirect  ConversationKind = "dm"
	ConversationChannel ConversationKind = "channel"
)

// ConversationKey identifies where a message lives: an unordered pair of users
// for direct messages or a single channel.
type ConversationKey struct {
	Kind    ConversationKind
	Channel string
	Users   [2]string // sorted; set only for direct conversations
}

// DirectKey builds the conversation key for a DM between a and b.
func DirectKey(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey{Kind: ConversationDirect, Users: [2]string{a, b}}
}

// ChannelKey builds the conversation key for a channel.
func ChannelKey(channelID string) ConversationKey {
	return ConversationKey{Kind: ConversationChannel, Channel: channelID}
}

// ConversationFor resolves the wire pair (type, to) into a key as seen by self.
func ConversationFor(kind ConversationKind, to, self string) (ConversationKey, error) {
	if to == "" {
		return ConversationKey{}, fmt.Errorf("%w: recipient is required", ErrBadRequest)
	}
	switch kind {
	case ConversationChannel:
		return ChannelKey(to), nil
	case ConversationDirect, "":
		if self == "" {
			return ConversationKey{}, fmt.Errorf("%w: sender is required", ErrBadRequest)
		}
		return DirectKey(self, to), nil
	default:
		return ConversationKey{}, fmt.Errorf("%w: unknown conversation type %q", ErrBadRequest, kind)
	}
}

// String renders the key in its storage form: "dm:<a>:<b>" or "channel:<id>".
func (k ConversationKey) String() string {
	if k.Kind == ConversationDirect {
		return "dm:" + k.Users[0] + ":" + k.Users[1]
	}
	return "channel:" + k.Channel
}

// ParseConversationKey is the inverse of String.
func ParseConversationKey(s string) (ConversationKey, error) {
	switch {
	case strings.HasPrefix(s, "dm:"):
		parts := strings.Split(strings.TrimPrefix(s, "dm:"), ":")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return ConversationKey{}, fmt.Errorf("%w: malformed direct key %q", ErrBadRequest, s)
		}
		return DirectKey(parts[0], parts[1]), nil
	case strings.HasPrefix(s, "channel:"):
		id := strings.TrimPrefix(s, "channel:")
		if id == "" {
			return ConversationKey{}, fmt.Errorf("%w: malformed channel key %q", ErrBadRequest, s)
		}
		return ChannelKey(id), nil
	}
	return ConversationKey{}, fmt.Errorf("%w: malformed conversation key %q", ErrBadRequest, s)
}

// Peer returns the other participant of a DM from self's point of view.
// For channels it returns the channel id.
func (k ConversationKey) Peer(self string) string {
	if k.Kind != ConversationDirect {
		return k.Channel
	}
	if k.Users[0] == self {
		return k.Users[1]
	}
	return k.Users[0]
}

// Includes reports whether user takes part in a direct conversation.
func (k ConversationKey) Includes(user string) bool {
	return k.Kind == ConversationDirect && (k.Users[0] == user || k.Users[1] == user)
}

// PayloadType is the message body variant.
type PayloadType string

const (
	PayloadText  PayloadType = "text"
	PayloadVoice PayloadType = "voice"
	PayloadImage PayloadType = "image"
	PayloadFile  PayloadType = "file"
)

// Payload is the body of a message. Attachments are referenced by URL only.
type Payload struct {
	Type     PayloadType
	Text     string
	AudioURL string
	Duration float64
	FileURL  string
	FileName string
	FileSize int64
}

// Validate checks that the variant carries the fields it needs.
func (p Payload) Validate(maxTextBytes int) error {
	switch p.Type {
	case PayloadText, "":
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("%w: message text is empty", ErrBadRequest)
		}
		if maxTextBytes > 0 && len(p.Text) > maxTextBytes {
			return fmt.Errorf("%w: message text exceeds %d bytes", ErrBadRequest, maxTextBytes)
		}
	case PayloadVoice:
		if p.AudioURL == "" {
			return fmt.Errorf("%w: voice message requires audio url", ErrBadRequest)
		}
	case PayloadImage, PayloadFile:
		if p.FileURL == "" {
			return fmt.Errorf("%w: %s message requires file url", ErrBadRequest, p.Type)
		}
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrBadRequest, p.Type)
	}
	return nil
}

// Message is the domain model for a chat message.
type Message struct {
	ID           string
	Conversation ConversationKey
	From         string
	SenderName   string
	Avatar       string
	Payload      Payload
	CreatedAt    time.Time
}
