package core

// room groups clients subscribed to the same channel.
type room struct {
	name    string
	clients map[*Client]struct{}
}

func newRoom(name string) *room {
	return &room{
		name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// Rooms tracks channel subscriptions per connection handle. Like Presence it is
// owned by the hub goroutine.
type Rooms struct {
	rooms  map[string]*room
	member map[*Client]map[string]struct{}
}

// NewRooms returns an empty membership manager.
func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]*room),
		member: make(map[*Client]map[string]struct{}),
	}
}

// Join subscribes c to channel. Returns false if it was already a member.
func (r *Rooms) Join(c *Client, channel string) bool {
	rm, ok := r.rooms[channel]
	if !ok {
		rm = newRoom(channel)
		r.rooms[channel] = rm
	}
	if _, exists := rm.clients[c]; exists {
		return false
	}
	rm.clients[c] = struct{}{}

	set, ok := r.member[c]
	if !ok {
		set = make(map[string]struct{})
		r.member[c] = set
	}
	set[channel] = struct{}{}
	return true
}

// Leave unsubscribes c from channel. Returns false if it was not a member.
func (r *Rooms) Leave(c *Client, channel string) bool {
	rm, ok := r.rooms[channel]
	if !ok {
		return false
	}
	if _, exists := rm.clients[c]; !exists {
		return false
	}
	delete(rm.clients, c)
	if len(rm.clients) == 0 {
		delete(r.rooms, channel)
	}
	if set, ok := r.member[c]; ok {
		delete(set, channel)
		if len(set) == 0 {
			delete(r.member, c)
		}
	}
	return true
}

// LeaveAll removes c from every room it joined and returns how many.
func (r *Rooms) LeaveAll(c *Client) int {
	set := r.member[c]
	n := 0
	for channel := range set {
		if rm, ok := r.rooms[channel]; ok {
			delete(rm.clients, c)
			if len(rm.clients) == 0 {
				delete(r.rooms, channel)
			}
			n++
		}
	}
	delete(r.member, c)
	return n
}

// Broadcast sends ev to every member of channel except exclude. Slow consumers
// are skipped. It returns the delivered and dropped counts.
func (r *Rooms) Broadcast(channel string, ev *Event, exclude *Client) (delivered, dropped int) {
	rm, ok := r.rooms[channel]
	if !ok {
		return 0, 0
	}
	for c := range rm.clients {
		if c == exclude {
			continue
		}
		if deliver(c, ev) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// Members returns the handles subscribed to channel.
func (r *Rooms) Members(channel string) []*Client {
	rm, ok := r.rooms[channel]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(rm.clients))
	for c := range rm.clients {
		out = append(out, c)
	}
	return out
}

// ChannelsOf returns the channels c is subscribed to.
func (r *Rooms) ChannelsOf(c *Client) []string {
	set := r.member[c]
	out := make([]string, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}

// IsMember reports whether c is subscribed to channel.
func (r *Rooms) IsMember(c *Client, channel string) bool {
	_, ok := r.member[c][channel]
	return ok
}

// deliver does a non-blocking send; a full buffer drops the event.
func deliver(c *Client, ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
