// Package httpx translates domain-level error kinds into the HTTP
// responses the sidecar's handlers must return, per the error handling
// table in §7: each Kind maps to exactly one status code and payload
// shape, so handlers never hand-roll status codes themselves.
package httpx

import "net/http"

// Kind is a sentinel error category a handler can return from its core
// logic without knowing anything about HTTP.
type Kind string

const (
	KindAuthFailure           Kind = "auth_failure"
	KindForbidden             Kind = "forbidden"
	KindAdminUnavailable      Kind = "admin_unavailable"
	KindRateLimited           Kind = "rate_limited"
	KindPayloadTooLarge       Kind = "payload_too_large"
	KindBadRequest            Kind = "bad_request"
	KindNotFound              Kind = "not_found"
	KindGone                  Kind = "gone"
	KindProviderMisconfigured Kind = "provider_misconfigured"
	KindNotImplemented        Kind = "not_implemented"
	KindInternal              Kind = "internal"
)

// statusFor is the one place the Kind -> HTTP status mapping lives.
func statusFor(kind Kind) int {
	switch kind {
	case KindAuthFailure:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindAdminUnavailable:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound, KindGone:
		return http.StatusNotFound
	case KindProviderMisconfigured, KindInternal:
		return http.StatusInternalServerError
	case KindNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
