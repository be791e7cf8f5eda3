package brainstorm

import "fmt"

// Error is a rejected command carrying a stable code for API clients.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors by code so wrapped or re-worded errors still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Errorf returns an error with the same code as base and a custom message.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidRequest     = &Error{Code: "INVALID_REQUEST", Message: "invalid request body"}
	ErrTopicRequired      = &Error{Code: "TOPIC_REQUIRED", Message: "topic is required"}
	ErrInvalidSettings    = &Error{Code: "INVALID_SETTINGS", Message: "invalid session settings"}
	ErrBackendUnavailable = &Error{Code: "BACKEND_UNAVAILABLE", Message: "ai backend unavailable"}
	ErrEmptyMessage       = &Error{Code: "EMPTY_MESSAGE", Message: "message content or attachments required"}
	ErrInvalidFormat      = &Error{Code: "INVALID_FORMAT", Message: "unsupported export format"}

	ErrSessionNotFound         = &Error{Code: "SESSION_NOT_FOUND", Message: "session not found"}
	ErrSessionNotActive        = &Error{Code: "SESSION_NOT_ACTIVE", Message: "session is not active"}
	ErrSessionNotPaused        = &Error{Code: "SESSION_NOT_PAUSED", Message: "session is not paused"}
	ErrSessionAlreadyCompleted = &Error{Code: "SESSION_ALREADY_COMPLETED", Message: "session already completed"}
	ErrSessionNotCompleted     = &Error{Code: "SESSION_NOT_COMPLETED", Message: "session is not completed yet"}
)
