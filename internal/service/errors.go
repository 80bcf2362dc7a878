package service

import "net/http"

// Error is a service failure with a fixed HTTP status.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string   { return e.Message }
func (e *Error) StatusCode() int { return e.Code }

var (
	// ErrSessionBusy rejects a second concurrent turn for one session.
	ErrSessionBusy = &Error{Code: http.StatusConflict, Message: "another message for this session is still being processed"}
	// ErrTurnTimeout is returned when a turn exceeds TURN_TIMEOUT. Callers may retry.
	ErrTurnTimeout = &Error{Code: http.StatusGatewayTimeout, Message: "the request took too long to process, please retry"}
	ErrForbidden   = &Error{Code: http.StatusForbidden, Message: "user_id does not match the authenticated user"}
)
