package core

import "sync"

// Client is a connection handle as seen by the core layer. The transport feeds
// Commands and drains Events; the hub closes Events once the handle is gone.
type Client struct {
	ID       string
	Name     string
	Commands chan *Command
	Events   chan *Event

	mu       sync.RWMutex
	identity string
	display  string
	avatar   string
	done     chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, name string) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:       id,
		Name:     name,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 64),
		done:     make(chan struct{}),
	}
}

// Identity returns the user identity bound by add-user, or "" before that.
func (c *Client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Done is closed when the hub has released the handle.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) bind(identity, name, avatar string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	if name != "" {
		c.Name = name
		c.display = name
	}
	if avatar != "" {
		c.avatar = avatar
	}
}

// profile returns the display name and avatar given at add-user. Both are
// empty when the client sent none.
func (c *Client) profile() (name, avatar string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.display, c.avatar
}
