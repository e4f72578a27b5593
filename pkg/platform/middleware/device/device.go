// Package device derives a coarse device summary from the User-Agent so the
// event trail records what kind of client performed a mutation without
// storing the raw header.
package device

import (
	"fmt"
	"net/http"

	"github.com/mssola/useragent"

	"veris/pkg/requestcontext"
)

// Middleware parses the User-Agent captured by the metadata middleware and
// stores a human-readable device summary in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ua := requestcontext.UserAgent(ctx); ua != "" {
			ctx = requestcontext.WithDevice(ctx, Summary(ua))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Summary renders "browser/version on platform" from a raw User-Agent, or
// "bot" for crawlers.
func Summary(rawUA string) string {
	ua := useragent.New(rawUA)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}
	if platform == "" {
		return fmt.Sprintf("%s/%s", name, version)
	}
	return fmt.Sprintf("%s/%s on %s", name, version, platform)
}
