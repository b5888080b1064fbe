package core

import (
	"context"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drainNo reads everything currently buffered on ch and fails if an event of
// kind is among it. Returns how many events were drained.
func drainNo(t *testing.T, ch <-chan *Event, kind EventKind) int {
	t.Helper()
	n := 0
	for {
		select {
		case ev := <-ch:
			if ev == nil {
				return n
			}
			if ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
			n++
		default:
			return n
		}
	}
}

// barrier waits until every command c sent before it has been dispatched.
// It relies on per-connection ordering: an invalid leave is answered with an
// error only after the previous commands went through the hub.
func barrier(t *testing.T, c *Client) {
	t.Helper()
	c.Commands <- &Command{Kind: CommandLeaveChannel}
	ev := mustEvent(t, c.Events, EventError)
	if ev.Error.Code != ErrCodeBadRequest && ev.Error.Code != ErrCodeNotRegistered {
		t.Fatalf("unexpected barrier error: %+v", ev.Error)
	}
}

func startHub(t *testing.T, messages MessageService, access AccessChecker, opts ...Option) (*Hub, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	hub := NewHub(messages, access, opts...)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func connect(t *testing.T, hub *Hub, id, user string) *Client {
	t.Helper()
	c := NewClient(id, user)
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandAddUser, User: user}
	barrier(t, c)
	return c
}

func textMessage(text string) Message {
	return Message{Payload: Payload{Type: PayloadText, Text: text}}
}
