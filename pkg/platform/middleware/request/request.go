// Package request assigns each HTTP request a unique ID for log and event
// correlation.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"veris/pkg/requestcontext"
)

// Header is the response header echoing the assigned request ID.
const Header = "X-Request-ID"

// ID generates a request ID for every request (honoring one supplied by a
// trusted proxy), stores it in the context, and echoes it in the response.
func ID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
