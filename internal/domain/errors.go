package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal server error")

	// Gateway and delivery failures.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrRateLimited          = errors.New("rate limited")
	ErrPersistenceFailed    = errors.New("persistence failed")

	// Non-fatal: logged at the boundary, never returned to a client.
	ErrDeliveryDegraded    = errors.New("delivery degraded")
	ErrPresenceWriteFailed = errors.New("presence write failed")
)

// Reason maps an error onto the short code sent to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal_error"
	}
}
