package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vovakirdan/commhub-server/internal/proto"
)

// User is a user as returned by the REST API.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	AvatarImage string `json:"avatarImage,omitempty"`
}

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// HistoryClient talks to the REST API: login and message history.
type HistoryClient struct {
	http *resty.Client
}

// NewHistoryClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewHistoryClient(baseURL string, timeout time.Duration) *HistoryClient {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HistoryClient{http: r}
}

// SetToken sets the bearer token sent with every request.
func (c *HistoryClient) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// Login authenticates and stores the returned token on the client.
func (c *HistoryClient) Login(ctx context.Context, username, password string) (string, User, error) {
	var out authResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/auth/login")
	if err != nil {
		return "", User{}, fmt.Errorf("login: %w", err)
	}
	if resp.IsError() {
		return "", User{}, &APIError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	c.SetToken(out.Token)
	return out.Token, out.User, nil
}

// History fetches one page of conv. An empty before returns the newest page.
func (c *HistoryClient) History(ctx context.Context, conv Conversation, limit int, before string) (proto.HistoryResponse, error) {
	kind := conv.Kind
	if kind == "" {
		kind = proto.ConversationDM
	}
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("type", kind).
		SetQueryParam("to", conv.To)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if before != "" {
		req.SetQueryParam("before", before)
	}

	var out proto.HistoryResponse
	var apiErr errorResponse
	resp, err := req.SetResult(&out).SetError(&apiErr).Get("/api/messages")
	if err != nil {
		return proto.HistoryResponse{}, fmt.Errorf("fetch history: %w", err)
	}
	if resp.IsError() {
		return proto.HistoryResponse{}, &APIError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	return out, nil
}
