package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("already exists")
)

// User represents a registered user.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	AvatarImage  string
	CreatedAt    time.Time
}

// ChannelType defines channel visibility.
type ChannelType string

const (
	ChannelTypePublic  ChannelType = "public"
	ChannelTypePrivate ChannelType = "private"
)

// Channel is a named group conversation. Channels may nest under a parent.
type Channel struct {
	ID          string
	Name        string
	Description string
	ParentID    *string
	Type        ChannelType
	AdminID     string
	CreatedAt   time.Time
}

// Message represents a persisted chat message. Conversation holds the
// conversation key ("dm:<a>:<b>" or "channel:<id>"); ChannelID or the
// UserA/UserB pair mirror it for foreign keys and contact lookups.
type Message struct {
	Seq          int64
	ID           string
	Conversation string
	ChannelID    *string
	UserA        *string
	UserB        *string
	SenderID     string
	SenderName   string
	Avatar       string
	Type         string
	Text         string
	AudioURL     string
	Duration     float64
	FileURL      string
	FileName     string
	FileSize     int64
	CreatedAt    time.Time
}

// MessageQuery selects a page of a conversation. A zero BeforeSeq means the
// newest messages.
type MessageQuery struct {
	Conversation string
	Limit        int
	BeforeSeq    int64
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts u. Returns ErrConflict if the username is taken.
	CreateUser(ctx context.Context, u *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers lists every user except excludeID, ordered by username.
	ListUsers(ctx context.Context, excludeID string) ([]*User, error)

	// SearchUsers finds users whose username contains query, case-insensitively.
	SearchUsers(ctx context.Context, query, excludeID string) ([]*User, error)

	// ListDirectContacts lists users that share at least one direct message with userID.
	ListDirectContacts(ctx context.Context, userID string) ([]*User, error)

	// DeleteUser removes a user with the channels it administers, its
	// memberships and its join requests. Direct messages stay with the peer.
	DeleteUser(ctx context.Context, id string) error
}

// ChannelStore handles channel persistence.
type ChannelStore interface {
	// CreateChannel inserts ch and adds its admin as the first member.
	CreateChannel(ctx context.Context, ch *Channel) error

	GetChannelByID(ctx context.Context, id string) (*Channel, error)
	GetChannelByName(ctx context.Context, name string) (*Channel, error)

	// ListChannelsForUser lists public channels and private channels userID belongs to.
	ListChannelsForUser(ctx context.Context, userID string) ([]*Channel, error)

	// SearchChannels is ListChannelsForUser filtered by name.
	SearchChannels(ctx context.Context, query, userID string) ([]*Channel, error)

	// DeleteChannel removes a channel with its sub-channels, members, requests and messages.
	DeleteChannel(ctx context.Context, id string) error

	// AddMember adds a user to a channel. Adding an existing member is a no-op.
	AddMember(ctx context.Context, userID, channelID string) error

	// RemoveMember removes a user from a channel.
	RemoveMember(ctx context.Context, userID, channelID string) error

	IsMember(ctx context.Context, userID, channelID string) (bool, error)
	ListMembers(ctx context.Context, channelID string) ([]*User, error)

	// AddJoinRequest records a pending request. Duplicate requests are a no-op.
	AddJoinRequest(ctx context.Context, userID, channelID string) error

	// RemoveJoinRequest deletes a pending request and reports whether it existed.
	RemoveJoinRequest(ctx context.Context, userID, channelID string) (bool, error)

	ListJoinRequests(ctx context.Context, channelID string) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists msg and sets its Seq.
	SaveMessage(ctx context.Context, msg *Message) error

	GetMessage(ctx context.Context, id string) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error

	// ListMessages returns up to q.Limit messages of a conversation, oldest first.
	ListMessages(ctx context.Context, q MessageQuery) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
