package http

import (
	"net/http"
	"testing"
)

func TestCreateChannel(t *testing.T) {
	env := newTestEnv(t, nil)
	token, uid := env.register(t, "testuser")

	var ch ChannelResponse
	if code := env.do(t, http.MethodPost, "/api/channels", token, CreateChannelRequest{Name: "my-channel"}, &ch); code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if ch.Name != "my-channel" || ch.Type != "public" || ch.AdminID != uid {
		t.Errorf("unexpected channel: %+v", ch)
	}

	var errResp ErrorResponse
	if code := env.do(t, http.MethodPost, "/api/channels", token, CreateChannelRequest{Name: "my-channel"}, &errResp); code != http.StatusConflict {
		t.Errorf("expected status 409 for duplicate, got %d", code)
	}
	if errResp.Error != "Channel name already taken" {
		t.Errorf("unexpected error message: %q", errResp.Error)
	}

	if code := env.do(t, http.MethodPost, "/api/channels", token, CreateChannelRequest{Name: "ab"}, nil); code != http.StatusBadRequest {
		t.Errorf("expected status 400 for short name, got %d", code)
	}

	if code := env.do(t, http.MethodPost, "/api/channels", "", CreateChannelRequest{Name: "no-auth"}, nil); code != http.StatusUnauthorized {
		t.Errorf("expected status 401 without token, got %d", code)
	}

	var sub ChannelResponse
	if code := env.do(t, http.MethodPost, "/api/channels", token, CreateChannelRequest{Name: "sub", ParentID: ch.ID}, &sub); code != http.StatusCreated {
		t.Fatalf("expected status 201 for sub-channel, got %d", code)
	}
	if sub.ParentID == nil || *sub.ParentID != ch.ID {
		t.Errorf("sub-channel parent not set: %+v", sub)
	}

	var list []ChannelResponse
	if code := env.do(t, http.MethodGet, "/api/channels", token, nil, &list); code != http.StatusOK || len(list) != 2 {
		t.Fatalf("list: status %d, %d channels", code, len(list))
	}
}

func TestPrivateChannelJoinFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	adminToken, _ := env.register(t, "admin")
	bobToken, bobID := env.register(t, "bob")

	var ch ChannelResponse
	if code := env.do(t, http.MethodPost, "/api/channels", adminToken, CreateChannelRequest{Name: "staff", Type: "private"}, &ch); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}

	if code := env.do(t, http.MethodPost, "/api/channels/"+ch.ID+"/join", bobToken, nil, nil); code != http.StatusForbidden {
		t.Fatalf("joining a private channel should be forbidden, got %d", code)
	}
	if code := env.do(t, http.MethodGet, "/api/channels/"+ch.ID, bobToken, nil, nil); code != http.StatusForbidden {
		t.Fatalf("details of a private channel should be forbidden, got %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/channels/"+ch.ID+"/requests", bobToken, nil, nil); code != http.StatusAccepted {
		t.Fatalf("request join: %d", code)
	}

	var details ChannelDetailsResponse
	if code := env.do(t, http.MethodGet, "/api/channels/"+ch.ID, adminToken, nil, &details); code != http.StatusOK {
		t.Fatalf("details: %d", code)
	}
	if len(details.JoinRequests) != 1 || details.JoinRequests[0].ID != bobID {
		t.Fatalf("unexpected join requests: %+v", details.JoinRequests)
	}

	path := "/api/channels/" + ch.ID + "/requests/" + bobID
	if code := env.do(t, http.MethodPost, path, bobToken, HandleRequestRequest{Action: "approve"}, nil); code != http.StatusForbidden {
		t.Fatalf("non-admin approval should be forbidden, got %d", code)
	}
	if code := env.do(t, http.MethodPost, path, adminToken, HandleRequestRequest{Action: "approve"}, nil); code != http.StatusNoContent {
		t.Fatalf("approve: %d", code)
	}

	if code := env.do(t, http.MethodGet, "/api/channels/"+ch.ID, bobToken, nil, &details); code != http.StatusOK || len(details.Members) != 2 {
		t.Fatalf("bob should now see the channel: %d %+v", code, details.Members)
	}

	var errResp ErrorResponse
	if code := env.do(t, http.MethodPost, "/api/channels/"+ch.ID+"/leave", adminToken, nil, &errResp); code != http.StatusBadRequest {
		t.Fatalf("admin leave should fail, got %d", code)
	}
	if errResp.Error != "Admin cannot leave channel. Delete it instead." {
		t.Fatalf("unexpected error: %q", errResp.Error)
	}

	if code := env.do(t, http.MethodDelete, "/api/channels/"+ch.ID, bobToken, nil, nil); code != http.StatusForbidden {
		t.Fatalf("non-admin delete should be forbidden, got %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/api/channels/"+ch.ID, adminToken, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	if code := env.do(t, http.MethodGet, "/api/channels/"+ch.ID, adminToken, nil, nil); code != http.StatusNotFound {
		t.Fatalf("deleted channel should be gone, got %d", code)
	}
}

func TestUserEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken, _ := env.register(t, "alice")
	env.register(t, "alan")
	env.register(t, "bob")

	var users []UserResponse
	if code := env.do(t, http.MethodGet, "/api/users", aliceToken, nil, &users); code != http.StatusOK || len(users) != 2 {
		t.Fatalf("list users: %d %+v", code, users)
	}

	if code := env.do(t, http.MethodGet, "/api/users/search?q=AL", aliceToken, nil, &users); code != http.StatusOK {
		t.Fatalf("search: %d", code)
	}
	if len(users) != 1 || users[0].Username != "alan" {
		t.Fatalf("search should exclude the caller: %+v", users)
	}

	var online []string
	if code := env.do(t, http.MethodGet, "/api/online", aliceToken, nil, &online); code != http.StatusOK || len(online) != 0 {
		t.Fatalf("online: %d %v", code, online)
	}
}

func TestDeleteUserEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken, aliceID := env.register(t, "alice")
	bobToken, _ := env.register(t, "bob")

	if code := env.do(t, http.MethodDelete, "/api/auth/delete/"+aliceID, "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/api/auth/delete/"+aliceID, bobToken, nil, nil); code != http.StatusForbidden {
		t.Fatalf("deleting another account should be forbidden, got %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/api/auth/delete/"+aliceID, aliceToken, nil, nil); code != http.StatusOK {
		t.Fatalf("delete own account: %d", code)
	}

	var users []UserResponse
	if code := env.do(t, http.MethodGet, "/api/users", bobToken, nil, &users); code != http.StatusOK || len(users) != 0 {
		t.Fatalf("deleted user still listed: %d %+v", code, users)
	}
}
