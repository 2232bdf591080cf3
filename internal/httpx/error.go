package httpx

import "fmt"

// Error is a Kind-tagged error a handler returns instead of writing the
// response itself. WriteError does the Kind -> status/body translation.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; only meaningful for KindRateLimited
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error carrying an underlying cause (reported by Error and
// Unwrap, never written to the response body).
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func AuthFailure(message string) *Error      { return New(KindAuthFailure, message) }
func Forbidden(message string) *Error        { return New(KindForbidden, message) }
func AdminUnavailable(message string) *Error { return New(KindAdminUnavailable, message) }
func BadRequest(message string) *Error       { return New(KindBadRequest, message) }
func NotFound(message string) *Error         { return New(KindNotFound, message) }
func Gone(message string) *Error             { return New(KindGone, message) }
func NotImplemented(message string) *Error   { return New(KindNotImplemented, message) }
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}
func ProviderMisconfigured(message string) *Error {
	return New(KindProviderMisconfigured, message)
}

// RateLimited builds a 429 carrying the Retry-After value in seconds.
func RateLimited(retryAfterSeconds int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded", RetryAfter: retryAfterSeconds}
}

// PayloadTooLarge builds a 413 for a request body over the configured cap.
func PayloadTooLarge(limitBytes int64) *Error {
	return &Error{Kind: KindPayloadTooLarge, Message: fmt.Sprintf("request body exceeds %d bytes", limitBytes)}
}
