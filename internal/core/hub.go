package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

// ErrHubStopped is returned when the dispatch loop is no longer running.
var ErrHubStopped = errors.New("hub stopped")

// MessageService persists messages before they are routed live.
type MessageService interface {
	// CreateMessage stores msg and returns it with ID and CreatedAt assigned.
	CreateMessage(ctx context.Context, msg Message) (Message, error)
	// DeleteMessage removes a message sent by requester and returns what was removed.
	DeleteMessage(ctx context.Context, id, requester string) (Message, error)
}

// AccessChecker decides whether a user may subscribe to or post into a channel.
type AccessChecker interface {
	CanAccessChannel(ctx context.Context, userID, channelID string) (bool, error)
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l.With().Str("component", "hub").Logger()
		}
	}
}

// WithMaxMessageBytes limits the size of text payloads.
func WithMaxMessageBytes(n int) Option {
	return func(h *Hub) { h.maxMessageBytes = n }
}

// WithMeter records delivery metrics on meter.
func WithMeter(m metric.Meter) Option {
	return func(h *Hub) { h.meter = m }
}

// WithOpTimeout bounds each persistence or access call made on behalf of a client.
func WithOpTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.opTimeout = d
		}
	}
}

type dispatch struct {
	client *Client
	cmd    *Command
	err    *CoreError
}

type publication struct {
	kind   EventKind
	msg    Message
	origin string
}

// Hub is the single dispatch loop that owns presence and room membership.
// Only the goroutine running Run touches them.
type Hub struct {
	log             zerolog.Logger
	messages        MessageService
	access          AccessChecker
	maxMessageBytes int
	opTimeout       time.Duration
	meter           metric.Meter
	metrics         *hubMetrics

	presence *Presence
	rooms    *Rooms
	clients  map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan dispatch
	publish    chan publication
	queries    chan func()
	done       chan struct{}
}

// NewHub creates a hub. Both collaborators are optional: without a message
// service messages are routed with generated ids, without an access checker
// every channel is open.
func NewHub(messages MessageService, access AccessChecker, opts ...Option) *Hub {
	h := &Hub{
		log:        zerolog.Nop(),
		messages:   messages,
		access:     access,
		opTimeout:  5 * time.Second,
		presence:   NewPresence(),
		rooms:      NewRooms(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan dispatch, 64),
		publish:    make(chan publication, 64),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.metrics = newHubMetrics(h.meter)
	return h
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.session(ctx, c)
		case c := <-h.unregister:
			h.removeClient(ctx, c)
		case d := <-h.inbound:
			h.handle(ctx, d)
		case p := <-h.publish:
			h.handlePublication(ctx, p)
		case q := <-h.queries:
			q()
		}
	}
}

// RegisterClient attaches a connection handle to the hub and starts its session.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient detaches a handle: presence entry, every room and the event
// channel are released in one step. Unknown handles are ignored.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// PublishMessage routes an already persisted message. The origin identity's
// current connection is excluded from the fan-out.
func (h *Hub) PublishMessage(ctx context.Context, msg Message) error {
	kind := EventDirectMessage
	if msg.Conversation.Kind == ConversationChannel {
		kind = EventChannelMessage
	}
	return h.enqueue(ctx, publication{kind: kind, msg: msg, origin: msg.From})
}

// PublishDeletion notifies the conversation of msg that it was deleted by origin.
func (h *Hub) PublishDeletion(ctx context.Context, msg Message, origin string) error {
	return h.enqueue(ctx, publication{kind: EventMessageDeleted, msg: msg, origin: origin})
}

func (h *Hub) enqueue(ctx context.Context, p publication) error {
	select {
	case h.publish <- p:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnlineUsers returns the identities currently registered.
func (h *Hub) OnlineUsers(ctx context.Context) ([]string, error) {
	var online []string
	err := h.query(ctx, func() { online = h.presence.Online() })
	return online, err
}

// IsOnline reports whether identity has a registered connection.
func (h *Hub) IsOnline(ctx context.Context, identity string) (bool, error) {
	var ok bool
	err := h.query(ctx, func() { ok = h.presence.Resolve(identity) != nil })
	return ok, err
}

func (h *Hub) query(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		fn()
		close(ran)
	}
	select {
	case h.queries <- wrapped:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

func (h *Hub) handle(ctx context.Context, d dispatch) {
	c := d.client
	_, live := h.clients[c]

	if d.err != nil {
		if live {
			h.reject(ctx, c, d.err)
		}
		return
	}

	cmd := d.cmd
	switch cmd.Kind {
	case CommandAddUser:
		if !live {
			return
		}
		before := h.presence.Len()
		if evicted := h.presence.Register(cmd.User, c); evicted != nil {
			h.log.Info().
				Str("user", cmd.User).
				Str("client_id", c.ID).
				Str("evicted_client_id", evicted.ID).
				Msg("presence replaced by newer connection")
		}
		if diff := h.presence.Len() - before; diff != 0 {
			h.metrics.online.Add(ctx, int64(diff))
		}
		h.log.Debug().Str("user", cmd.User).Str("client_id", c.ID).Msg("user registered")
		h.broadcastOnline(ctx)

	case CommandJoinChannel:
		// A handle that disconnected while its access check was in flight must
		// not be added back to a room.
		if !live {
			return
		}
		if h.rooms.Join(c, cmd.Channel) {
			h.log.Debug().Str("channel", cmd.Channel).Str("client_id", c.ID).Msg("joined channel")
		}

	case CommandLeaveChannel:
		if live {
			h.rooms.Leave(c, cmd.Channel)
		}

	case CommandSendDirect, CommandSendChannel:
		kind := EventDirectMessage
		if cmd.Kind == CommandSendChannel {
			kind = EventChannelMessage
		}
		h.route(ctx, cmd.Message.Conversation, &Event{Kind: kind, Message: cmd.Message}, c, cmd.Message.From)

	case CommandTyping, CommandStopTyping:
		if !live {
			return
		}
		kind := EventDisplayTyping
		if cmd.Kind == CommandStopTyping {
			kind = EventHideTyping
		}
		from := c.Identity()
		name, _ := c.profile()
		ev := &Event{Kind: kind, Typing: Typing{To: cmd.To, From: from, Name: name, Kind: cmd.Target}}
		conv := ChannelKey(cmd.To)
		if cmd.Target != ConversationChannel {
			conv = DirectKey(from, cmd.To)
		}
		h.route(ctx, conv, ev, c, from)

	case CommandDeleteMessage:
		ev := &Event{Kind: EventMessageDeleted, MessageID: cmd.Message.ID, Conversation: cmd.Message.Conversation}
		h.route(ctx, cmd.Message.Conversation, ev, c, c.Identity())
	}
}

func (h *Hub) handlePublication(ctx context.Context, p publication) {
	origin := h.presence.Resolve(p.origin)
	switch p.kind {
	case EventMessageDeleted:
		ev := &Event{Kind: EventMessageDeleted, MessageID: p.msg.ID, Conversation: p.msg.Conversation}
		h.route(ctx, p.msg.Conversation, ev, origin, p.origin)
	default:
		h.route(ctx, p.msg.Conversation, &Event{Kind: p.kind, Message: p.msg}, origin, p.origin)
	}
}

// route resolves targets at dispatch time. Channel events go to the room
// without the sender's handle; DM events go to the peer's current handle.
func (h *Hub) route(ctx context.Context, conv ConversationKey, ev *Event, sender *Client, from string) {
	switch conv.Kind {
	case ConversationChannel:
		delivered, dropped := h.rooms.Broadcast(conv.Channel, ev, sender)
		h.metrics.record(ctx, ev.Kind, delivered, dropped)
		if delivered+dropped == 0 {
			h.log.Debug().Str("channel", conv.Channel).Stringer("event", ev.Kind).Msg("no room members to deliver to")
		}
	case ConversationDirect:
		peer := conv.Peer(from)
		if peer == from {
			return
		}
		target := h.presence.Resolve(peer)
		if target == nil || target == sender {
			h.metrics.record(ctx, ev.Kind, 0, 1)
			h.log.Debug().Str("to", peer).Stringer("event", ev.Kind).Msg("recipient offline, event dropped")
			return
		}
		if deliver(target, ev) {
			h.metrics.record(ctx, ev.Kind, 1, 0)
		} else {
			h.metrics.record(ctx, ev.Kind, 0, 1)
			h.log.Debug().Str("to", peer).Stringer("event", ev.Kind).Msg("slow consumer, event dropped")
		}
	}
}

func (h *Hub) broadcastOnline(ctx context.Context) {
	online := h.presence.Online()
	delivered, dropped := 0, 0
	for c := range h.clients {
		if deliver(c, &Event{Kind: EventOnlineUsers, Online: online}) {
			delivered++
		} else {
			dropped++
		}
	}
	h.metrics.record(ctx, EventOnlineUsers, delivered, dropped)
}

func (h *Hub) reject(ctx context.Context, c *Client, err *CoreError) {
	h.metrics.reject(ctx, err.Code)
	if !deliver(c, &Event{Kind: EventError, Error: err}) {
		h.log.Debug().Str("client_id", c.ID).Str("code", err.Code).Msg("error event dropped")
	}
}

func (h *Hub) removeClient(ctx context.Context, c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	left := h.rooms.LeaveAll(c)
	identity, wasOnline := h.presence.Unregister(c)
	close(c.done)
	close(c.Events)

	h.log.Debug().
		Str("client_id", c.ID).
		Str("user", identity).
		Int("rooms_left", left).
		Msg("client unregistered")

	if wasOnline {
		h.metrics.online.Add(ctx, -1)
		h.broadcastOnline(ctx)
	}
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		h.rooms.LeaveAll(c)
		h.presence.Unregister(c)
		close(c.done)
		close(c.Events)
		delete(h.clients, c)
	}
}

func (h *Hub) newMessageID() string {
	return uuid.NewString()
}
