package core

import (
	"reflect"
	"testing"
)

func TestPresenceRegisterResolveUnregister(t *testing.T) {
	p := NewPresence()
	a := NewClient("1", "alice")
	b := NewClient("2", "bob")

	if ev := p.Register("alice", a); ev != nil {
		t.Fatalf("unexpected eviction: %v", ev.ID)
	}
	p.Register("bob", b)

	if got := p.Resolve("alice"); got != a {
		t.Fatalf("resolve alice: got %v", got)
	}
	if got := p.Online(); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Fatalf("online: %v", got)
	}

	id, ok := p.Unregister(a)
	if !ok || id != "alice" {
		t.Fatalf("unregister: %q %v", id, ok)
	}
	if p.Resolve("alice") != nil {
		t.Fatal("alice still resolvable")
	}
	if _, ok := p.Unregister(a); ok {
		t.Fatal("double unregister should be a no-op")
	}
	if p.Len() != 1 {
		t.Fatalf("len = %d", p.Len())
	}
}

func TestPresenceLastWriteWins(t *testing.T) {
	p := NewPresence()
	first := NewClient("1", "alice")
	second := NewClient("2", "alice")

	p.Register("alice", first)
	evicted := p.Register("alice", second)
	if evicted != first {
		t.Fatalf("expected first handle evicted, got %v", evicted)
	}
	if p.Resolve("alice") != second {
		t.Fatal("newest handle should own the entry")
	}

	// The evicted handle disconnecting must not remove the newer entry.
	if _, ok := p.Unregister(first); ok {
		t.Fatal("evicted handle should no longer be registered")
	}
	if p.Resolve("alice") != second {
		t.Fatal("entry lost after evicted handle left")
	}
}

func TestPresenceRebindHandle(t *testing.T) {
	p := NewPresence()
	c := NewClient("1", "")
	p.Register("alice", c)
	p.Register("carol", c)

	if p.Resolve("alice") != nil {
		t.Fatal("old identity should be released")
	}
	if got := p.Online(); !reflect.DeepEqual(got, []string{"carol"}) {
		t.Fatalf("online: %v", got)
	}
}

// For any sequence of operations the online set equals the identities whose
// latest registration has not been undone by its own handle.
func TestPresenceSequenceModel(t *testing.T) {
	p := NewPresence()
	handles := map[string]*Client{}
	for i, id := range []string{"a", "b", "c", "d"} {
		handles[id] = NewClient(string(rune('0'+i)), id)
	}
	model := map[string]*Client{}

	steps := []struct {
		op   string
		user string
		h    string
	}{
		{"reg", "a", "a"}, {"reg", "b", "b"}, {"unreg", "", "a"},
		{"reg", "c", "c"}, {"reg", "c", "d"}, {"unreg", "", "c"},
		{"unreg", "", "b"}, {"reg", "a", "a"}, {"unreg", "", "b"},
	}
	for _, s := range steps {
		h := handles[s.h]
		switch s.op {
		case "reg":
			for id, owner := range model {
				if owner == h {
					delete(model, id)
				}
			}
			model[s.user] = h
			p.Register(s.user, h)
		case "unreg":
			for id, owner := range model {
				if owner == h {
					delete(model, id)
				}
			}
			p.Unregister(h)
		}

		if p.Len() != len(model) {
			t.Fatalf("after %+v: len %d, model %d", s, p.Len(), len(model))
		}
		for id, owner := range model {
			if p.Resolve(id) != owner {
				t.Fatalf("after %+v: %s resolves to wrong handle", s, id)
			}
		}
	}
}
