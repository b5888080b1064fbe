// Package client is the consuming side of the protocol: a websocket
// connection, a REST client and a Timeline that reconciles fetched history
// with live events for the selected conversation.
package client

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/vovakirdan/commhub-server/internal/proto"
)

// ErrSuperseded is returned by Select and LoadOlder when another conversation
// was selected while the fetch was in flight. The result was discarded.
var ErrSuperseded = errors.New("conversation selection superseded")

// Conversation identifies what the timeline shows: a peer for direct messages
// or a channel id.
type Conversation struct {
	Kind string
	To   string
}

// Fetcher loads one page of history, oldest first.
type Fetcher interface {
	History(ctx context.Context, conv Conversation, limit int, before string) (proto.HistoryResponse, error)
}

// Timeline is the message view of one conversation at a time. History and live
// events are de-duplicated by message id. Live events that arrive while the
// history fetch is in flight are held back and merged once it lands.
type Timeline struct {
	self  string
	fetch Fetcher
	limit int

	mu       sync.Mutex
	conv     Conversation
	gen      uint64
	loading  bool
	messages []proto.MessageData
	ids      map[string]struct{}
	pending  []proto.MessageData
	hasMore  bool
	// deleted holds ids removed since the last Select so that a page fetched
	// before the deletion cannot bring them back.
	deleted map[string]struct{}
}

// NewTimeline creates a timeline for the user self. A limit of 0 lets the
// server pick the page size.
func NewTimeline(self string, fetch Fetcher, limit int) *Timeline {
	return &Timeline{
		self:  self,
		fetch: fetch,
		limit: limit,
		ids:     make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
}

// Select switches the view to conv and fetches its history once. Events for
// the previous conversation are ignored from the moment Select is called.
func (t *Timeline) Select(ctx context.Context, conv Conversation) error {
	if conv.Kind == "" {
		conv.Kind = proto.ConversationDM
	}

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.conv = conv
	t.loading = true
	t.messages = nil
	t.pending = nil
	t.hasMore = false
	clear(t.ids)
	clear(t.deleted)
	t.mu.Unlock()

	page, err := t.fetch.History(ctx, conv, t.limit, "")

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return ErrSuperseded
	}
	t.loading = false
	if err != nil {
		// Keep whatever arrived live so the view is not empty on a failed fetch.
		for _, m := range t.pending {
			t.appendLocked(m)
		}
		t.pending = nil
		return err
	}
	for _, m := range page.Messages {
		t.appendLocked(m)
	}
	for _, m := range t.pending {
		t.appendLocked(m)
	}
	t.pending = nil
	t.hasMore = page.HasMore
	return nil
}

// LoadOlder fetches the page before the oldest message shown and prepends it.
// It reports how many messages were added.
func (t *Timeline) LoadOlder(ctx context.Context) (int, error) {
	t.mu.Lock()
	if t.loading || !t.hasMore || len(t.messages) == 0 {
		t.mu.Unlock()
		return 0, nil
	}
	gen, conv, before := t.gen, t.conv, t.messages[0].ID
	t.mu.Unlock()

	page, err := t.fetch.History(ctx, conv, t.limit, before)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return 0, ErrSuperseded
	}
	older := make([]proto.MessageData, 0, len(page.Messages))
	for _, m := range page.Messages {
		if _, dup := t.ids[m.ID]; dup {
			continue
		}
		if _, gone := t.deleted[m.ID]; gone {
			continue
		}
		t.ids[m.ID] = struct{}{}
		older = append(older, m)
	}
	t.messages = append(older, t.messages...)
	t.hasMore = page.HasMore
	return len(older), nil
}

// Live offers a message received over the websocket. It reports whether the
// message belongs to the selected conversation; duplicates are dropped.
func (t *Timeline) Live(m proto.MessageData) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.belongsLocked(m) {
		return false
	}
	if t.loading {
		t.pending = append(t.pending, m)
		return true
	}
	t.appendLocked(m)
	return true
}

// Deleted removes a message from the view and from the pending buffer. The id
// stays suppressed until the next Select, including in pages still in flight.
func (t *Timeline) Deleted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = slices.DeleteFunc(t.pending, func(m proto.MessageData) bool { return m.ID == id })
	t.deleted[id] = struct{}{}
	if _, ok := t.ids[id]; !ok {
		return false
	}
	delete(t.ids, id)
	t.messages = slices.DeleteFunc(t.messages, func(m proto.MessageData) bool { return m.ID == id })
	return true
}

// Messages returns a copy of the current view, oldest first.
func (t *Timeline) Messages() []proto.MessageData {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages)
}

// Conversation returns the selected conversation.
func (t *Timeline) Conversation() Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conv
}

// HasMore reports whether older history exists on the server.
func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

func (t *Timeline) appendLocked(m proto.MessageData) {
	if m.ID != "" {
		if _, dup := t.ids[m.ID]; dup {
			return
		}
		if _, gone := t.deleted[m.ID]; gone {
			return
		}
		t.ids[m.ID] = struct{}{}
	}
	t.messages = append(t.messages, m)
}

func (t *Timeline) belongsLocked(m proto.MessageData) bool {
	if t.conv.To == "" {
		return false
	}
	if t.conv.Kind == proto.ConversationChannel {
		return m.Type == proto.ConversationChannel && m.To == t.conv.To
	}
	if m.Type == proto.ConversationChannel {
		return false
	}
	return (m.From == t.conv.To && m.To == t.self) || (m.From == t.self && m.To == t.conv.To)
}
