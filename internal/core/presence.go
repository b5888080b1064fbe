package core

import "sort"

// Presence maps user identities to their active connection handle. It is owned
// by the hub goroutine and is not safe for concurrent use.
type Presence struct {
	byIdentity map[string]*Client
	byClient   map[*Client]string
}

// NewPresence returns an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byIdentity: make(map[string]*Client),
		byClient:   make(map[*Client]string),
	}
}

// Register binds identity to c. A previous handle for the same identity loses
// its entry and is returned; it stays connected but is no longer resolvable.
// Re-registering c under a new identity drops its old binding.
func (p *Presence) Register(identity string, c *Client) (evicted *Client) {
	if old, ok := p.byClient[c]; ok && old != identity {
		delete(p.byIdentity, old)
	}
	if prev, ok := p.byIdentity[identity]; ok && prev != c {
		delete(p.byClient, prev)
		evicted = prev
	}
	p.byIdentity[identity] = c
	p.byClient[c] = identity
	return evicted
}

// Unregister removes the entry owned by c. Unknown handles are a no-op.
func (p *Presence) Unregister(c *Client) (string, bool) {
	identity, ok := p.byClient[c]
	if !ok {
		return "", false
	}
	delete(p.byClient, c)
	if p.byIdentity[identity] == c {
		delete(p.byIdentity, identity)
	}
	return identity, true
}

// Resolve returns the handle registered for identity, or nil when offline.
func (p *Presence) Resolve(identity string) *Client {
	return p.byIdentity[identity]
}

// IdentityOf returns the identity c is registered under.
func (p *Presence) IdentityOf(c *Client) (string, bool) {
	id, ok := p.byClient[c]
	return id, ok
}

// Online returns the sorted set of online identities.
func (p *Presence) Online() []string {
	out := make([]string, 0, len(p.byIdentity))
	for id := range p.byIdentity {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of online identities.
func (p *Presence) Len() int {
	return len(p.byIdentity)
}
