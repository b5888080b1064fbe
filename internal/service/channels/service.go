// Package channels manages channels, their membership and join requests.
package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/store"
)

// Common errors for channel operations.
var (
	ErrInvalidName      = core.NewError(core.ErrBadRequest, "Channel name must be 3-20 characters")
	ErrInvalidType      = core.NewError(core.ErrBadRequest, "Channel type must be public or private")
	ErrInvalidAction    = core.NewError(core.ErrBadRequest, "Action must be approve or reject")
	ErrNameTaken        = core.NewError(core.ErrBadRequest, "Channel name already taken")
	ErrChannelNotFound  = core.NewError(core.ErrNotFound, "Channel not found")
	ErrParentNotFound   = core.NewError(core.ErrNotFound, "Parent channel not found")
	ErrUserNotFound     = core.NewError(core.ErrNotFound, "User not found")
	ErrRequestNotFound  = core.NewError(core.ErrNotFound, "Join request not found")
	ErrPrivateChannel   = core.NewError(core.ErrForbidden, "Channel is private, request to join instead")
	ErrNotMember        = core.NewError(core.ErrForbidden, "not a member of this channel")
	ErrAdminCannotLeave = core.NewError(core.ErrBadRequest, "Admin cannot leave channel. Delete it instead.")
	ErrNotAdminDelete   = core.NewError(core.ErrForbidden, "Only admin can delete channel")
	ErrNotAdminAdd      = core.NewError(core.ErrForbidden, "Only admin can add members")
	ErrNotAdminRequests = core.NewError(core.ErrForbidden, "Only admin can manage requests")
)

const (
	minNameLen = 3
	maxNameLen = 20
)

// Action is an admin's answer to a join request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// CreateParams describes a new channel.
type CreateParams struct {
	Name        string
	Description string
	Type        store.ChannelType
	ParentID    string
}

// Details is a channel with its members and pending join requests.
type Details struct {
	Channel  *store.Channel
	Members  []*store.User
	Requests []*store.User
}

// Service provides channel business logic.
type Service struct {
	store store.Store
}

var _ core.AccessChecker = (*Service)(nil)

// New creates a new channel service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Create makes a channel with adminID as its admin and first member.
func (s *Service) Create(ctx context.Context, adminID string, p CreateParams) (*store.Channel, error) {
	name := strings.TrimSpace(p.Name)
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return nil, ErrInvalidName
	}
	if p.Type == "" {
		p.Type = store.ChannelTypePublic
	}
	if p.Type != store.ChannelTypePublic && p.Type != store.ChannelTypePrivate {
		return nil, ErrInvalidType
	}

	ch := &store.Channel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(p.Description),
		Type:        p.Type,
		AdminID:     adminID,
	}
	if p.ParentID != "" {
		if _, err := s.store.GetChannelByID(ctx, p.ParentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, fmt.Errorf("get parent channel: %w", err)
		}
		parent := p.ParentID
		ch.ParentID = &parent
	}

	if err := s.store.CreateChannel(ctx, ch); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return ch, nil
}

// List returns public channels and private channels userID belongs to.
func (s *Service) List(ctx context.Context, userID string) ([]*store.Channel, error) {
	channels, err := s.store.ListChannelsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// Search filters List by a case-insensitive name fragment. An empty query
// matches nothing.
func (s *Service) Search(ctx context.Context, userID, query string) ([]*store.Channel, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*store.Channel{}, nil
	}
	channels, err := s.store.SearchChannels(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("search channels: %w", err)
	}
	return channels, nil
}

// Details returns a channel with members and join requests. Private channels
// are only visible to their members.
func (s *Service) Details(ctx context.Context, userID, channelID string) (*Details, error) {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.Type == store.ChannelTypePrivate {
		member, err := s.store.IsMember(ctx, userID, channelID)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if !member {
			return nil, ErrNotMember
		}
	}

	members, err := s.store.ListMembers(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	requests, err := s.store.ListJoinRequests(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	return &Details{Channel: ch, Members: members, Requests: requests}, nil
}

// Join adds userID to a public channel.
func (s *Service) Join(ctx context.Context, userID, channelID string) (*store.Channel, error) {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.Type != store.ChannelTypePublic {
		return nil, ErrPrivateChannel
	}
	if err := s.store.AddMember(ctx, userID, channelID); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return ch, nil
}

// Leave removes userID from a channel. The admin cannot leave.
func (s *Service) Leave(ctx context.Context, userID, channelID string) error {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.AdminID == userID {
		return ErrAdminCannotLeave
	}
	if err := s.store.RemoveMember(ctx, userID, channelID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// Delete removes a channel and its sub-channels. Only the admin may do this.
func (s *Service) Delete(ctx context.Context, userID, channelID string) error {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.AdminID != userID {
		return ErrNotAdminDelete
	}
	if err := s.store.DeleteChannel(ctx, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChannelNotFound
		}
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// AddMember lets the admin add memberID directly.
func (s *Service) AddMember(ctx context.Context, adminID, channelID, memberID string) error {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.AdminID != adminID {
		return ErrNotAdminAdd
	}
	if _, err := s.store.GetUserByID(ctx, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}
	if err := s.store.AddMember(ctx, memberID, channelID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RequestJoin records that userID wants to join a channel. Members have
// nothing to request and the call is a no-op for them.
func (s *Service) RequestJoin(ctx context.Context, userID, channelID string) error {
	if _, err := s.channel(ctx, channelID); err != nil {
		return err
	}
	member, err := s.store.IsMember(ctx, userID, channelID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if member {
		return nil
	}
	if err := s.store.AddJoinRequest(ctx, userID, channelID); err != nil {
		return fmt.Errorf("add join request: %w", err)
	}
	return nil
}

// HandleRequest approves or rejects userID's pending request.
func (s *Service) HandleRequest(ctx context.Context, adminID, channelID, userID string, action Action) error {
	if action != ActionApprove && action != ActionReject {
		return ErrInvalidAction
	}
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.AdminID != adminID {
		return ErrNotAdminRequests
	}

	removed, err := s.store.RemoveJoinRequest(ctx, userID, channelID)
	if err != nil {
		return fmt.Errorf("remove join request: %w", err)
	}
	if !removed {
		return ErrRequestNotFound
	}
	if action == ActionApprove {
		if err := s.store.AddMember(ctx, userID, channelID); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
	}
	return nil
}

// CanAccessChannel reports whether userID may subscribe to or post into a
// channel: it must be public or userID must be a member.
func (s *Service) CanAccessChannel(ctx context.Context, userID, channelID string) (bool, error) {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if ch.Type == store.ChannelTypePublic {
		return true, nil
	}
	member, err := s.store.IsMember(ctx, userID, channelID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

func (s *Service) channel(ctx context.Context, id string) (*store.Channel, error) {
	ch, err := s.store.GetChannelByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}
