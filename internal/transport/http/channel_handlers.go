package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/commhub-server/internal/service/channels"
	"github.com/vovakirdan/commhub-server/internal/store"
)

// ChannelHandlers provides HTTP handlers for channel management endpoints.
type ChannelHandlers struct {
	service *channels.Service
	log     *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(svc *channels.Service, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{
		service: svc,
		log:     logger,
	}
}

// CreateChannelRequest represents the create channel request body.
type CreateChannelRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Type        string `json:"type"`
	ParentID    string `json:"parentId"`
}

// AddMemberRequest names the user an admin adds to a channel.
type AddMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// HandleRequestRequest carries an admin's decision on a join request.
type HandleRequestRequest struct {
	Action string `json:"action" binding:"required"`
}

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	ParentID    *string   `json:"parentId,omitempty"`
	AdminID     string    `json:"adminId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChannelDetailsResponse is a channel with members and pending requests.
type ChannelDetailsResponse struct {
	ChannelResponse
	Members      []UserResponse `json:"members"`
	JoinRequests []UserResponse `json:"joinRequests"`
}

func channelResponse(ch *store.Channel) ChannelResponse {
	return ChannelResponse{
		ID:          ch.ID,
		Name:        ch.Name,
		Description: ch.Description,
		Type:        string(ch.Type),
		ParentID:    ch.ParentID,
		AdminID:     ch.AdminID,
		CreatedAt:   ch.CreatedAt,
	}
}

func channelsResponse(list []*store.Channel) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(list))
	for _, ch := range list {
		out = append(out, channelResponse(ch))
	}
	return out
}

// CreateChannel handles channel creation.
// POST /api/channels
func (h *ChannelHandlers) CreateChannel(c *gin.Context) {
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create channel request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	uid := currentUser(c)
	ch, err := h.service.Create(c.Request.Context(), uid, channels.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		Type:        store.ChannelType(req.Type),
		ParentID:    req.ParentID,
	})
	if err != nil {
		if errors.Is(err, channels.ErrNameTaken) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		respondError(c, h.log, err, "create channel")
		return
	}

	h.log.Info().Str("channel_name", ch.Name).Str("channel_id", ch.ID).Str("admin_id", uid).Msg("channel created successfully")
	c.JSON(http.StatusCreated, channelResponse(ch))
}

// ListChannels handles listing accessible channels.
// GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.log, err, "list channels")
		return
	}
	c.JSON(http.StatusOK, channelsResponse(list))
}

// SearchChannels filters accessible channels by name.
// GET /api/channels/search?q=query
func (h *ChannelHandlers) SearchChannels(c *gin.Context) {
	list, err := h.service.Search(c.Request.Context(), currentUser(c), c.Query("q"))
	if err != nil {
		respondError(c, h.log, err, "search channels")
		return
	}
	c.JSON(http.StatusOK, channelsResponse(list))
}

// GetChannel returns channel details.
// GET /api/channels/:id
func (h *ChannelHandlers) GetChannel(c *gin.Context) {
	details, err := h.service.Details(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "channel details")
		return
	}
	c.JSON(http.StatusOK, ChannelDetailsResponse{
		ChannelResponse: channelResponse(details.Channel),
		Members:         usersResponse(details.Members),
		JoinRequests:    usersResponse(details.Requests),
	})
}

// JoinChannel joins a public channel.
// POST /api/channels/:id/join
func (h *ChannelHandlers) JoinChannel(c *gin.Context) {
	ch, err := h.service.Join(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, "join channel")
		return
	}
	c.JSON(http.StatusOK, channelResponse(ch))
}

// LeaveChannel leaves a channel.
// POST /api/channels/:id/leave
func (h *ChannelHandlers) LeaveChannel(c *gin.Context) {
	if err := h.service.Leave(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		respondError(c, h.log, err, "leave channel")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteChannel deletes a channel with its sub-channels.
// DELETE /api/channels/:id
func (h *ChannelHandlers) DeleteChannel(c *gin.Context) {
	uid, id := currentUser(c), c.Param("id")
	if err := h.service.Delete(c.Request.Context(), uid, id); err != nil {
		respondError(c, h.log, err, "delete channel")
		return
	}
	h.log.Info().Str("channel_id", id).Str("user_id", uid).Msg("channel deleted")
	c.Status(http.StatusNoContent)
}

// AddMember lets the admin add a user.
// POST /api/channels/:id/members
func (h *ChannelHandlers) AddMember(c *gin.Context) {
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.service.AddMember(c.Request.Context(), currentUser(c), c.Param("id"), req.UserID); err != nil {
		respondError(c, h.log, err, "add member")
		return
	}
	c.Status(http.StatusNoContent)
}

// RequestJoin records a join request for a private channel.
// POST /api/channels/:id/requests
func (h *ChannelHandlers) RequestJoin(c *gin.Context) {
	if err := h.service.RequestJoin(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		respondError(c, h.log, err, "request join")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"msg": "Request sent"})
}

// HandleRequest approves or rejects a join request.
// POST /api/channels/:id/requests/:userId
func (h *ChannelHandlers) HandleRequest(c *gin.Context) {
	var req HandleRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	err := h.service.HandleRequest(c.Request.Context(), currentUser(c), c.Param("id"), c.Param("userId"), channels.Action(req.Action))
	if err != nil {
		respondError(c, h.log, err, "handle join request")
		return
	}
	c.Status(http.StatusNoContent)
}
