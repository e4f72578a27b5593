package testutil

import (
	"net/http"
	"time"

	"veris/pkg/domain"
	"veris/pkg/requestcontext"
)

// WithAccount attaches an authenticated account to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithAccount(req *http.Request, account domain.Address) *http.Request {
	return req.WithContext(requestcontext.WithAccount(req.Context(), account))
}

// WithRequestTime pins the request time so timestamp assertions are exact.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}

// WithRequestID attaches a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
