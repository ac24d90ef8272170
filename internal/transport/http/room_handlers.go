package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/connectus-realtime/internal/core"
)

// RoomHandlers exposes the room hooks and presence lookups.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

// RoomHookRequest moves a user's live connection in or out of a room.
type RoomHookRequest struct {
	UserID int64  `json:"userId" binding:"required,gt=0"`
	Kind   string `json:"kind" binding:"required,oneof=group channel"`
	ID     int64  `json:"id" binding:"required,gt=0"`
}

func (r RoomHookRequest) room() core.RoomID {
	if r.Kind == "channel" {
		return core.ChannelRoom(r.ID)
	}
	return core.GroupRoom(r.ID)
}

// RoomHookResponse reports whether the membership changed. A user without a
// live connection reports false; they join on their next connect.
type RoomHookResponse struct {
	Room    string `json:"room"`
	Changed bool   `json:"changed"`
}

// PresenceResponse reports a user's live presence.
type PresenceResponse struct {
	UserID int64 `json:"userId"`
	Online bool  `json:"online"`
}

// Join subscribes the user's live connection to a room. The user must be an
// active member of the group or channel.
// POST /api/rooms/join
func (h *RoomHandlers) Join(c *gin.Context) {
	var req RoomHookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid room join request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room := req.room()
	changed, err := h.hub.JoinUserRoom(c.Request.Context(), req.UserID, room)
	if err != nil {
		if errors.Is(err, core.ErrNotRoomMember) {
			h.log.Warn().Int64("user_id", req.UserID).Str("room", string(room)).Msg("room join hook for non-member")
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "user is not a member of the room"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", req.UserID).Str("room", string(room)).Msg("room join hook failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	h.log.Debug().Int64("user_id", req.UserID).Str("room", string(room)).Bool("changed", changed).Msg("room join hook")
	c.JSON(http.StatusOK, RoomHookResponse{Room: string(room), Changed: changed})
}

// Leave unsubscribes the user's live connection from a room.
// POST /api/rooms/leave
func (h *RoomHandlers) Leave(c *gin.Context) {
	var req RoomHookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid room leave request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room := req.room()
	changed := h.hub.LeaveUserRoom(req.UserID, room)
	h.log.Debug().Int64("user_id", req.UserID).Str("room", string(room)).Bool("changed", changed).Msg("room leave hook")
	c.JSON(http.StatusOK, RoomHookResponse{Room: string(room), Changed: changed})
}

// Presence reports whether a user is connected right now.
// GET /api/presence/:userId
func (h *RoomHandlers) Presence(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}
	c.JSON(http.StatusOK, PresenceResponse{UserID: userID, Online: h.hub.IsOnline(userID)})
}
