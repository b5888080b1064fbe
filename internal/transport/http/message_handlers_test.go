package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/vovakirdan/commhub-server/internal/proto"
)

func TestMessageLifecycleOverREST(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken, aliceID := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	connB := env.dial(t)
	addUser(t, connB, bobToken, bobID)

	var created proto.MessageData
	body := CreateMessageRequest{To: bobID, Type: proto.ConversationDM, Msg: proto.Payload{Type: "text", Text: "over rest"}}
	if code := env.do(t, http.MethodPost, "/api/messages", aliceToken, body, &created); code != http.StatusCreated {
		t.Fatalf("create message: %d", code)
	}
	if created.ID == "" || created.CreatedAt.IsZero() || created.From != aliceID {
		t.Fatalf("unexpected created message: %+v", created)
	}

	// The live copy reaches the recipient.
	out := readEvent(t, connB, proto.EventMsgReceive)
	var live proto.MessageData
	if err := json.Unmarshal(out.Data, &live); err != nil || live.ID != created.ID {
		t.Fatalf("live message mismatch: %+v %v", live, err)
	}

	var errResp ErrorResponse
	if code := env.do(t, http.MethodDelete, "/api/messages/"+created.ID, bobToken, nil, &errResp); code != http.StatusForbidden {
		t.Fatalf("delete by recipient should be forbidden, got %d", code)
	}
	if errResp.Error != "Not authorized to delete this message" {
		t.Fatalf("unexpected error: %q", errResp.Error)
	}

	if code := env.do(t, http.MethodDelete, "/api/messages/"+created.ID, aliceToken, nil, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	deleted := readEvent(t, connB, proto.EventMsgDeleted)
	var id string
	if err := json.Unmarshal(deleted.Data, &id); err != nil || id != created.ID {
		t.Fatalf("unexpected msg-deleted payload %s: %v", deleted.Data, err)
	}

	if code := env.do(t, http.MethodDelete, "/api/messages/"+created.ID, aliceToken, nil, nil); code != http.StatusNotFound {
		t.Fatalf("second delete should be 404, got %d", code)
	}

	var contacts []UserResponse
	if code := env.do(t, http.MethodGet, "/api/contacts", bobToken, nil, &contacts); code != http.StatusOK || len(contacts) != 0 {
		t.Fatalf("contacts after delete: %d %+v", code, contacts)
	}
}

func TestHistoryPagingOverREST(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken, _ := env.register(t, "alice")
	_, bobID := env.register(t, "bob")

	for _, text := range []string{"one", "two", "three"} {
		body := CreateMessageRequest{To: bobID, Msg: proto.Payload{Type: "text", Text: text}}
		if code := env.do(t, http.MethodPost, "/api/messages", aliceToken, body, nil); code != http.StatusCreated {
			t.Fatalf("create %s: %d", text, code)
		}
	}

	var page proto.HistoryResponse
	if code := env.do(t, http.MethodGet, "/api/messages?type=dm&to="+bobID+"&limit=2", aliceToken, nil, &page); code != http.StatusOK {
		t.Fatalf("history: %d", code)
	}
	if !page.HasMore || len(page.Messages) != 2 || page.Messages[0].Msg.Text != "two" || page.Messages[1].Msg.Text != "three" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	var older proto.HistoryResponse
	path := "/api/messages?type=dm&to=" + bobID + "&limit=2&before=" + page.Messages[0].ID
	if code := env.do(t, http.MethodGet, path, aliceToken, nil, &older); code != http.StatusOK {
		t.Fatalf("older history: %d", code)
	}
	if older.HasMore || len(older.Messages) != 1 || older.Messages[0].Msg.Text != "one" {
		t.Fatalf("unexpected older page: %+v", older)
	}

	if code := env.do(t, http.MethodGet, "/api/messages?type=dm&to="+bobID+"&limit=abc", aliceToken, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit should be 400, got %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/messages", aliceToken, CreateMessageRequest{To: bobID, Msg: proto.Payload{Type: "voice"}}, nil); code != http.StatusBadRequest {
		t.Fatalf("voice without url should be 400, got %d", code)
	}
}
