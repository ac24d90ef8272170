package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/connectus-realtime/internal/service/calls"
	"github.com/vovakirdan/connectus-realtime/internal/store"
)

// CallsHandlers provides HTTP handlers for call log endpoints.
type CallsHandlers struct {
	service *calls.Service
	log     *zerolog.Logger
}

// NewCallsHandlers creates a new calls handlers instance.
func NewCallsHandlers(svc *calls.Service, logger *zerolog.Logger) *CallsHandlers {
	return &CallsHandlers{
		service: svc,
		log:     logger,
	}
}

// InitiateCallRequest represents the request body for starting a call.
type InitiateCallRequest struct {
	ReceiverID int64  `json:"receiverId" binding:"required,gt=0"`
	CallType   string `json:"callType"`
}

// CallResponse represents a call log in API responses.
type CallResponse struct {
	ID              string  `json:"id"`
	CallerID        int64   `json:"callerId"`
	ReceiverID      int64   `json:"receiverId"`
	CallType        string  `json:"callType"`
	Status          string  `json:"status"`
	StartedAt       string  `json:"startedAt"`
	AnsweredAt      *string `json:"answeredAt,omitempty"`
	EndedAt         *string `json:"endedAt,omitempty"`
	DurationSeconds *int64  `json:"durationSeconds,omitempty"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// callToResponse converts a store.CallLog to CallResponse.
func callToResponse(call *store.CallLog) CallResponse {
	return CallResponse{
		ID:              call.ID,
		CallerID:        call.CallerID,
		ReceiverID:      call.ReceiverID,
		CallType:        string(call.Type),
		Status:          string(call.Status),
		StartedAt:       call.StartedAt.UTC().Format(time.RFC3339),
		AnsweredAt:      formatTime(call.AnsweredAt),
		EndedAt:         formatTime(call.EndedAt),
		DurationSeconds: call.DurationSeconds,
	}
}

// writeCallError maps service errors onto HTTP statuses.
func (h *CallsHandlers) writeCallError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, calls.ErrCallNotFound), errors.Is(err, calls.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, calls.ErrNotParticipant), errors.Is(err, calls.ErrNotReceiver):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, calls.ErrCallEnded), errors.Is(err, calls.ErrNotRinging):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, calls.ErrCannotCallSelf), errors.Is(err, calls.ErrInvalidCallType):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("op", op).Msg("call operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// Initiate starts a call from the authenticated user.
// POST /api/calls
func (h *CallsHandlers) Initiate(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid initiate call request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	call, err := h.service.Initiate(c.Request.Context(), uid, req.ReceiverID, store.CallType(req.CallType))
	if err != nil {
		h.writeCallError(c, err, "initiate")
		return
	}

	h.log.Info().Str("call_id", call.ID).Int64("caller_id", uid).Int64("receiver_id", req.ReceiverID).Str("status", string(call.Status)).Msg("call initiated")
	c.JSON(http.StatusCreated, callToResponse(call))
}

// Get returns a call log visible to its participants.
// GET /api/calls/:id
func (h *CallsHandlers) Get(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	call, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeCallError(c, err, "get")
		return
	}
	if call.CallerID != uid && call.ReceiverID != uid {
		h.writeCallError(c, calls.ErrNotParticipant, "get")
		return
	}
	c.JSON(http.StatusOK, callToResponse(call))
}

// Answer accepts a ringing call.
// POST /api/calls/:id/answer
func (h *CallsHandlers) Answer(c *gin.Context) {
	h.transition(c, "answer", h.service.Answer)
}

// Reject declines a ringing call.
// POST /api/calls/:id/reject
func (h *CallsHandlers) Reject(c *gin.Context) {
	h.transition(c, "reject", h.service.Reject)
}

// End hangs up a call.
// POST /api/calls/:id/end
func (h *CallsHandlers) End(c *gin.Context) {
	h.transition(c, "end", h.service.End)
}

func (h *CallsHandlers) transition(
	c *gin.Context,
	op string,
	apply func(ctx context.Context, callID string, byUserID int64) (*store.CallLog, error),
) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	call, err := apply(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		h.writeCallError(c, err, op)
		return
	}

	h.log.Info().Str("call_id", call.ID).Int64("user_id", uid).Str("status", string(call.Status)).Msg("call " + op)
	c.JSON(http.StatusOK, callToResponse(call))
}
