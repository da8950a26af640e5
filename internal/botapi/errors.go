package botapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBadRequest matches API errors with code 400.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized matches API errors with code 401, usually an invalid token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches API errors with code 403, for example a bot blocked by the user.
	ErrForbidden = errors.New("forbidden")
	// ErrTooManyRequests matches API errors with code 429.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrChatMigrated matches API errors that carry a migrate_to_chat_id parameter.
	ErrChatMigrated = errors.New("chat migrated")
)

// ResponseParameters are the optional hints attached to a failed call.
type ResponseParameters struct {
	MigrateToChatID int64
	RetryAfter      int
}

// APIError is a call the Bot API answered with ok=false.
type APIError struct {
	Method      string
	Args        Args
	Code        int
	Description string
	Parameters  ResponseParameters
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Is maps the error code and parameters onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Code == http.StatusBadRequest
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrTooManyRequests:
		return e.Code == http.StatusTooManyRequests
	case ErrChatMigrated:
		return e.Parameters.MigrateToChatID != 0
	default:
		return false
	}
}
