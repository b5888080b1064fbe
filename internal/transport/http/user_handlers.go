package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/commhub-server/internal/service/messages"
	"github.com/vovakirdan/commhub-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store    store.UserStore
	messages *messages.Service
	hub      Hub
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, msgs *messages.Service, hub Hub, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:    st,
		messages: msgs,
		hub:      hub,
		log:      logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	AvatarImage string `json:"avatarImage,omitempty"`
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		AvatarImage: u.AvatarImage,
	}
}

func usersResponse(users []*store.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse(u))
	}
	return out
}

// SearchUsers handles searching for users.
// GET /api/users/search?q=query
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	trimmed := strings.TrimSpace(c.Query("q"))
	if trimmed == "" {
		c.JSON(http.StatusOK, []UserResponse{})
		return
	}

	users, err := h.store.SearchUsers(c.Request.Context(), trimmed, currentUser(c))
	if err != nil {
		h.log.Error().Err(err).Str("query", trimmed).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, usersResponse(users))
}

// ListUsers returns every user except the caller.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context(), currentUser(c))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, usersResponse(users))
}

// Contacts returns users the caller has exchanged direct messages with.
// GET /api/contacts
func (h *UserHandlers) Contacts(c *gin.Context) {
	users, err := h.messages.Contacts(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err, "contacts")
		return
	}
	c.JSON(http.StatusOK, usersResponse(users))
}

// Online returns the identities with a live connection.
// GET /api/online
func (h *UserHandlers) Online(c *gin.Context) {
	online, err := h.hub.OnlineUsers(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to read presence")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence unavailable"})
		return
	}
	if online == nil {
		online = []string{}
	}
	c.JSON(http.StatusOK, online)
}
