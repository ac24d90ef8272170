package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/connectus-realtime/internal/core"
	"github.com/vovakirdan/connectus-realtime/internal/store"
)

// PushHandlers lets the CRUD layer push committed changes to live connections.
type PushHandlers struct {
	hub      *core.Hub
	messages store.MessageStore
	log      *zerolog.Logger
}

// NewPushHandlers creates a new push handlers instance. messages may be nil,
// in which case delivery flags are left to the caller.
func NewPushHandlers(hub *core.Hub, messages store.MessageStore, logger *zerolog.Logger) *PushHandlers {
	return &PushHandlers{
		hub:      hub,
		messages: messages,
		log:      logger,
	}
}

// DeliveredResponse reports how many live connections an event reached.
type DeliveredResponse struct {
	Delivered int `json:"delivered"`
}

// MessageDeletedRequest names where a deleted message had been delivered.
type MessageDeletedRequest struct {
	ReceiverID *int64 `json:"receiverId"`
	GroupID    *int64 `json:"groupId"`
	ChannelID  *int64 `json:"channelId"`
}

// BroadcastRequest pushes a named event to every connection except one user.
type BroadcastRequest struct {
	Event         string          `json:"event" binding:"required"`
	Data          json.RawMessage `json:"data"`
	ExcludeUserID int64           `json:"excludeUserId"`
}

// exactlyOne reports whether exactly one destination is set.
func exactlyOne(ids ...*int64) bool {
	n := 0
	for _, id := range ids {
		if id != nil {
			n++
		}
	}
	return n == 1
}

// PushMessage routes a stored message to its live recipients.
// POST /api/push/messages
func (h *PushHandlers) PushMessage(c *gin.Context) {
	var msg core.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		h.log.Debug().Err(err).Msg("invalid push message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if msg.ID <= 0 || !exactlyOne(msg.ReceiverID, msg.GroupID, msg.ChannelID) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message needs an id and exactly one of receiverId, groupId, channelId"})
		return
	}

	var delivered int
	switch {
	case msg.ReceiverID != nil:
		delivered = h.hub.NotifyUser(*msg.ReceiverID, core.ReceiveMessage{Message: msg})
	case msg.GroupID != nil:
		delivered = h.hub.NotifyRoom(core.GroupRoom(*msg.GroupID), core.ReceiveGroupMessage{Message: msg})
	default:
		delivered = h.hub.NotifyRoom(core.ChannelRoom(*msg.ChannelID), core.ReceiveChannelMessage{Message: msg})
	}

	if delivered > 0 && h.messages != nil {
		if err := h.messages.MarkDelivered(c.Request.Context(), msg.ID); err != nil {
			h.log.Error().Err(err).Int64("message_id", msg.ID).Msg("failed to mark message delivered")
		}
	}

	c.JSON(http.StatusOK, DeliveredResponse{Delivered: delivered})
}

// PushMessageDeleted tells recipients a message was retracted.
// POST /api/push/messages/:id/deleted
func (h *PushHandlers) PushMessageDeleted(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || messageID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	var req MessageDeletedRequest
	if err := c.ShouldBindJSON(&req); err != nil || !exactlyOne(req.ReceiverID, req.GroupID, req.ChannelID) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "exactly one of receiverId, groupId, channelId is required"})
		return
	}

	ev := core.MessageDeleted{MessageID: messageID}
	var delivered int
	switch {
	case req.ReceiverID != nil:
		delivered = h.hub.NotifyUser(*req.ReceiverID, ev)
	case req.GroupID != nil:
		delivered = h.hub.NotifyRoom(core.GroupRoom(*req.GroupID), ev)
	default:
		delivered = h.hub.NotifyRoom(core.ChannelRoom(*req.ChannelID), ev)
	}

	c.JSON(http.StatusOK, DeliveredResponse{Delivered: delivered})
}

// Broadcast pushes an event to everyone except the excluded user. Without
// excludeUserId every connection receives it.
// POST /api/push/broadcast
func (h *PushHandlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid broadcast request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ev, err := eventFromPush(req.Event, req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	delivered := h.hub.NotifyAllExcept(req.ExcludeUserID, ev)

	h.log.Info().Str("event", req.Event).Int64("exclude_user_id", req.ExcludeUserID).Int("delivered", delivered).Msg("broadcast pushed")
	c.JSON(http.StatusOK, DeliveredResponse{Delivered: delivered})
}
