package core

import (
	"context"
	"strings"
	"time"
)

// session reads c's commands in order and performs their I/O before handing
// them to the dispatch loop. It exits when the handle is released.
func (h *Hub) session(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			prepared, err := h.prepare(ctx, c, cmd)
			d := dispatch{client: c, cmd: prepared, err: err}
			select {
			case h.inbound <- d:
			case <-h.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// prepare validates cmd, runs persistence and access checks, and returns the
// command the dispatch loop should route.
func (h *Hub) prepare(ctx context.Context, c *Client, cmd *Command) (*Command, *CoreError) {
	if cmd.Kind == CommandAddUser {
		user := strings.TrimSpace(cmd.User)
		if user == "" {
			return nil, badRequest("user identity is required")
		}
		c.bind(user, cmd.Name, cmd.Avatar)
		out := *cmd
		out.User = user
		return &out, nil
	}

	identity := c.Identity()
	if identity == "" {
		return nil, coreError(ErrCodeNotRegistered, "add-user must be sent first")
	}

	opCtx, cancel := context.WithTimeout(ctx, h.opTimeout)
	defer cancel()

	switch cmd.Kind {
	case CommandJoinChannel:
		if cmd.Channel == "" {
			return nil, badRequest("channel is required")
		}
		if err := h.checkChannel(opCtx, identity, cmd.Channel); err != nil {
			return nil, err
		}
		return cmd, nil

	case CommandLeaveChannel:
		if cmd.Channel == "" {
			return nil, badRequest("channel is required")
		}
		return cmd, nil

	case CommandTyping, CommandStopTyping:
		if cmd.To == "" {
			return nil, badRequest("typing target is required")
		}
		if cmd.Target == ConversationChannel {
			if ce := h.checkChannel(opCtx, identity, cmd.To); ce != nil {
				return nil, ce
			}
		}
		return cmd, nil

	case CommandSendDirect, CommandSendChannel:
		return h.prepareSend(opCtx, c, identity, cmd)

	case CommandDeleteMessage:
		return h.prepareDelete(opCtx, identity, cmd)
	}
	return nil, badRequest("unsupported command %s", cmd.Kind)
}

func (h *Hub) prepareSend(ctx context.Context, c *Client, identity string, cmd *Command) (*Command, *CoreError) {
	target := ConversationDirect
	if cmd.Kind == CommandSendChannel {
		target = ConversationChannel
	}
	conv, err := ConversationFor(target, cmd.To, identity)
	if err != nil {
		return nil, AsCoreError(err)
	}
	if err := cmd.Message.Payload.Validate(h.maxMessageBytes); err != nil {
		return nil, AsCoreError(err)
	}
	if target == ConversationChannel {
		if ce := h.checkChannel(ctx, identity, conv.Channel); ce != nil {
			return nil, ce
		}
	}

	msg := cmd.Message
	msg.Conversation = conv
	msg.From = identity
	name, avatar := c.profile()
	if msg.SenderName == "" {
		msg.SenderName = name
	}
	if msg.Avatar == "" {
		msg.Avatar = avatar
	}

	if h.messages == nil {
		msg.ID = h.newMessageID()
		msg.CreatedAt = time.Now().UTC()
	} else {
		saved, err := h.messages.CreateMessage(ctx, msg)
		if err != nil {
			h.log.Warn().Err(err).Str("user", identity).Str("to", conv.String()).Msg("persist message failed")
			return nil, AsCoreError(err)
		}
		msg = saved
	}

	out := *cmd
	out.Message = msg
	return &out, nil
}

func (h *Hub) prepareDelete(ctx context.Context, identity string, cmd *Command) (*Command, *CoreError) {
	if cmd.MessageID == "" {
		return nil, badRequest("message id is required")
	}

	var msg Message
	if h.messages == nil {
		conv, err := ConversationFor(cmd.Target, cmd.To, identity)
		if err != nil {
			return nil, AsCoreError(err)
		}
		msg = Message{ID: cmd.MessageID, Conversation: conv, From: identity}
	} else {
		deleted, err := h.messages.DeleteMessage(ctx, cmd.MessageID, identity)
		if err != nil {
			h.log.Debug().Err(err).Str("user", identity).Str("message_id", cmd.MessageID).Msg("delete message rejected")
			return nil, AsCoreError(err)
		}
		msg = deleted
	}

	out := *cmd
	out.Message = msg
	return &out, nil
}

func (h *Hub) checkChannel(ctx context.Context, identity, channel string) *CoreError {
	if h.access == nil {
		return nil
	}
	ok, err := h.access.CanAccessChannel(ctx, identity, channel)
	if err != nil {
		ce := AsCoreError(err)
		if ce.Code == ErrCodePersistFailed {
			h.log.Warn().Err(err).Str("channel", channel).Msg("channel access check failed")
			return coreError(ErrCodePersistFailed, "failed to check channel access")
		}
		return ce
	}
	if !ok {
		return coreError(ErrCodeForbidden, "not a member of this channel")
	}
	return nil
}
