// Package messages persists chat messages and serves conversation history.
package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/store"
)

// DefaultHistoryLimit caps a history page when the caller asks for none or too many.
const DefaultHistoryLimit = 100

var (
	ErrMessageNotFound = core.NewError(core.ErrNotFound, "Message not found")
	ErrNotSender       = core.NewError(core.ErrForbidden, "Not authorized to delete this message")
	ErrNoChannelAccess = core.NewError(core.ErrForbidden, "not a member of this channel")
	ErrBadCursor       = core.NewError(core.ErrBadRequest, "before does not belong to this conversation")
)

// Service implements core.MessageService on top of a store.
type Service struct {
	store        store.Store
	access       core.AccessChecker
	historyLimit int
	maxBytes     int
}

var _ core.MessageService = (*Service)(nil)

// New creates a message service. access may be nil, in which case channel
// history is not access-checked.
func New(st store.Store, access core.AccessChecker, historyLimit, maxMessageBytes int) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{
		store:        st,
		access:       access,
		historyLimit: historyLimit,
		maxBytes:     maxMessageBytes,
	}
}

// CreateMessage persists msg. ID and CreatedAt are assigned here; a missing
// sender name or avatar is taken from the sender's account when one exists.
func (s *Service) CreateMessage(ctx context.Context, msg core.Message) (core.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Payload.Type == "" {
		msg.Payload.Type = core.PayloadText
	}
	if msg.SenderName == "" || msg.Avatar == "" {
		if u, err := s.store.GetUserByID(ctx, msg.From); err == nil {
			if msg.SenderName == "" {
				msg.SenderName = u.Username
			}
			if msg.Avatar == "" {
				msg.Avatar = u.AvatarImage
			}
		}
	}

	row := toRow(msg)
	if err := s.store.SaveMessage(ctx, row); err != nil {
		return core.Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// Send validates and persists a message posted by from outside a live
// connection. The caller publishes the result.
func (s *Service) Send(ctx context.Context, from string, kind core.ConversationKind, to string, payload core.Payload) (core.Message, error) {
	conv, err := core.ConversationFor(kind, to, from)
	if err != nil {
		return core.Message{}, err
	}
	if err := payload.Validate(s.maxBytes); err != nil {
		return core.Message{}, err
	}
	if err := s.checkAccess(ctx, from, conv); err != nil {
		return core.Message{}, err
	}
	return s.CreateMessage(ctx, core.Message{Conversation: conv, From: from, Payload: payload})
}

// DeleteMessage removes a message if requester sent it.
func (s *Service) DeleteMessage(ctx context.Context, id, requester string) (core.Message, error) {
	row, err := s.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Message{}, ErrMessageNotFound
		}
		return core.Message{}, fmt.Errorf("get message: %w", err)
	}
	if row.SenderID != requester {
		return core.Message{}, ErrNotSender
	}

	msg, err := fromRow(row)
	if err != nil {
		return core.Message{}, err
	}
	if err := s.store.DeleteMessage(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Message{}, ErrMessageNotFound
		}
		return core.Message{}, fmt.Errorf("delete message: %w", err)
	}
	return msg, nil
}

// History returns up to limit messages of the conversation (kind, to) as seen
// by requester, oldest first. beforeID pages backwards from that message.
// hasMore reports whether older messages remain.
func (s *Service) History(ctx context.Context, requester string, kind core.ConversationKind, to string, limit int, beforeID string) (msgs []core.Message, hasMore bool, err error) {
	conv, err := core.ConversationFor(kind, to, requester)
	if err != nil {
		return nil, false, err
	}
	if err := s.checkAccess(ctx, requester, conv); err != nil {
		return nil, false, err
	}

	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	q := store.MessageQuery{Conversation: conv.String(), Limit: limit + 1}
	if beforeID != "" {
		cursor, err := s.store.GetMessage(ctx, beforeID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, false, ErrMessageNotFound
			}
			return nil, false, fmt.Errorf("get cursor: %w", err)
		}
		if cursor.Conversation != q.Conversation {
			return nil, false, ErrBadCursor
		}
		q.BeforeSeq = cursor.Seq
	}

	rows, err := s.store.ListMessages(ctx, q)
	if err != nil {
		return nil, false, fmt.Errorf("list messages: %w", err)
	}
	if len(rows) > limit {
		hasMore = true
		rows = rows[len(rows)-limit:]
	}

	msgs = make([]core.Message, 0, len(rows))
	for _, row := range rows {
		m, err := fromRow(row)
		if err != nil {
			return nil, false, err
		}
		msgs = append(msgs, m)
	}
	return msgs, hasMore, nil
}

// Contacts lists users requester has exchanged direct messages with.
func (s *Service) Contacts(ctx context.Context, requester string) ([]*store.User, error) {
	users, err := s.store.ListDirectContacts(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return users, nil
}

func (s *Service) checkAccess(ctx context.Context, user string, conv core.ConversationKey) error {
	if conv.Kind != core.ConversationChannel || s.access == nil {
		return nil
	}
	ok, err := s.access.CanAccessChannel(ctx, user, conv.Channel)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoChannelAccess
	}
	return nil
}

func toRow(m core.Message) *store.Message {
	row := &store.Message{
		ID:           m.ID,
		Conversation: m.Conversation.String(),
		SenderID:     m.From,
		SenderName:   m.SenderName,
		Avatar:       m.Avatar,
		Type:         string(m.Payload.Type),
		Text:         m.Payload.Text,
		AudioURL:     m.Payload.AudioURL,
		Duration:     m.Payload.Duration,
		FileURL:      m.Payload.FileURL,
		FileName:     m.Payload.FileName,
		FileSize:     m.Payload.FileSize,
		CreatedAt:    m.CreatedAt,
	}
	if m.Conversation.Kind == core.ConversationChannel {
		ch := m.Conversation.Channel
		row.ChannelID = &ch
	} else {
		a, b := m.Conversation.Users[0], m.Conversation.Users[1]
		row.UserA, row.UserB = &a, &b
	}
	return row
}

func fromRow(row *store.Message) (core.Message, error) {
	conv, err := core.ParseConversationKey(row.Conversation)
	if err != nil {
		return core.Message{}, fmt.Errorf("message %s: %w", row.ID, err)
	}
	return core.Message{
		ID:           row.ID,
		Conversation: conv,
		From:         row.SenderID,
		SenderName:   row.SenderName,
		Avatar:       row.Avatar,
		Payload: core.Payload{
			Type:     core.PayloadType(row.Type),
			Text:     row.Text,
			AudioURL: row.AudioURL,
			Duration: row.Duration,
			FileURL:  row.FileURL,
			FileName: row.FileName,
			FileSize: row.FileSize,
		},
		CreatedAt: row.CreatedAt,
	}, nil
}
