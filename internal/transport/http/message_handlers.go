package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/commhub-server/internal/proto"
	"github.com/vovakirdan/commhub-server/internal/service/messages"
)

// MessageHandlers serves message history and message writes made over REST.
// Writes are published to live connections through the hub.
type MessageHandlers struct {
	service *messages.Service
	hub     Hub
	log     *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messages.Service, hub Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		service: svc,
		hub:     hub,
		log:     logger,
	}
}

// CreateMessageRequest is a message posted over REST.
type CreateMessageRequest struct {
	To   string        `json:"to" binding:"required"`
	Type string        `json:"type"`
	Msg  proto.Payload `json:"msg"`
}

// History returns a page of a conversation, oldest first.
// GET /api/messages?type=dm|channel&to=<id>&limit=<n>&before=<message id>
func (h *MessageHandlers) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	msgs, hasMore, err := h.service.History(
		c.Request.Context(),
		currentUser(c),
		conversationKind(c.Query("type")),
		c.Query("to"),
		limit,
		c.Query("before"),
	)
	if err != nil {
		respondError(c, h.log, err, "history")
		return
	}

	resp := proto.HistoryResponse{Messages: make([]proto.MessageData, 0, len(msgs)), HasMore: hasMore}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageData(m))
	}
	c.JSON(http.StatusOK, resp)
}

// CreateMessage persists a message and publishes it live.
// POST /api/messages
func (h *MessageHandlers) CreateMessage(c *gin.Context) {
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	uid := currentUser(c)
	msg, err := h.service.Send(c.Request.Context(), uid, conversationKind(req.Type), req.To, payloadFromProto(req.Msg))
	if err != nil {
		respondError(c, h.log, err, "create message")
		return
	}

	// The message is durable at this point; a stopped hub only costs the live copy.
	if err := h.hub.PublishMessage(c.Request.Context(), msg); err != nil {
		h.log.Warn().Err(err).Str("message_id", msg.ID).Msg("publish message failed")
	}
	c.JSON(http.StatusCreated, messageData(msg))
}

// DeleteMessage deletes a message sent by the caller and notifies its conversation.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	uid := currentUser(c)
	msg, err := h.service.DeleteMessage(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondError(c, h.log, err, "delete message")
		return
	}

	if err := h.hub.PublishDeletion(c.Request.Context(), msg, uid); err != nil {
		h.log.Warn().Err(err).Str("message_id", msg.ID).Msg("publish deletion failed")
	}
	c.JSON(http.StatusOK, gin.H{"id": msg.ID})
}
