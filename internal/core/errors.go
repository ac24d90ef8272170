package core

import "errors"

// Error codes sent back to the acting connection.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeUnknownCommand = "unknown_command"
	ErrCodeNotRoomMember  = "not_room_member"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeInternal       = "internal_error"
)

var (
	// ErrUnauthenticated rejects a connect attempt without a valid identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConnectionClosed is returned by sinks that no longer accept events.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBackpressure is returned by sinks whose outbound queue is full.
	ErrBackpressure = errors.New("backpressure")
	// ErrUnknownCommand is returned for a command kind the hub does not handle.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotRoomMember rejects a client-initiated join to a room the user does not belong to.
	ErrNotRoomMember = errors.New("not a room member")
	// ErrBadRequest marks malformed command arguments.
	ErrBadRequest = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ToCoreError maps a handler error onto the code reported to the client.
func ToCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrUnknownCommand):
		return coreError(ErrCodeUnknownCommand, err.Error())
	case errors.Is(err, ErrNotRoomMember):
		return coreError(ErrCodeNotRoomMember, err.Error())
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrUnauthenticated):
		return coreError(ErrCodeUnauthorized, err.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
