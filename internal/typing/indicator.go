package typing

import (
	"sort"
	"sync"
)

// Peer describes someone currently shown as typing.
type Peer struct {
	From string
	Name string
	To   string
	Kind string
}

// Indicator holds the receiving side of typing signals, keyed by sender. It has
// no timeout of its own: an indicator stays until hide-typing arrives for that
// sender or Reset is called.
type Indicator struct {
	mu    sync.Mutex
	peers map[string]Peer
}

// NewIndicator returns an empty indicator.
func NewIndicator() *Indicator {
	return &Indicator{peers: make(map[string]Peer)}
}

// Show marks p.From as typing.
func (i *Indicator) Show(p Peer) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.peers[p.From] = p
}

// Hide clears the indicator for from.
func (i *Indicator) Hide(from string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.peers, from)
}

// IsTyping reports whether from is shown as typing.
func (i *Indicator) IsTyping(from string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.peers[from]
	return ok
}

// In returns the peers typing in the given conversation, sorted by sender.
// For direct messages the conversation is the peer itself.
func (i *Indicator) In(kind, to, self string) []Peer {
	i.mu.Lock()
	defer i.mu.Unlock()
	var out []Peer
	for _, p := range i.peers {
		switch {
		case kind == "channel" && p.Kind == "channel" && p.To == to:
			out = append(out, p)
		case kind != "channel" && p.Kind != "channel" && p.From == to && p.To == self:
			out = append(out, p)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].From < out[b].From })
	return out
}

// Reset clears every indicator, e.g. on conversation switch.
func (i *Indicator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	clear(i.peers)
}
