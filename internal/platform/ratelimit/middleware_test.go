package ratelimit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"veris/internal/platform/ratelimit"
	"veris/pkg/domain"
	"veris/pkg/testutil"
)

func testAccount(b byte) domain.Address {
	var a domain.Address
	a[len(a)-1] = b
	return a
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimit.Result, error) {
	return nil, errors.New("store unreachable")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMiddlewareThrottlesAfterLimit(t *testing.T) {
	limiter := ratelimit.NewInMemory(2, time.Minute)
	handler := ratelimit.Middleware(limiter, discardLogger())(okHandler())

	for i := 0; i < 2; i++ {
		rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodPost, "/identities"))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	}

	rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodPost, "/identities"))
	testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestMiddlewareKeysByAccountWhenAuthenticated(t *testing.T) {
	limiter := ratelimit.NewInMemory(1, time.Minute)
	handler := ratelimit.Middleware(limiter, discardLogger())(okHandler())

	// Same IP, different accounts: each gets its own window.
	first := testutil.WithAccount(testutil.NewRequest(t, http.MethodPost, "/identities"), testAccount(0x01))
	second := testutil.WithAccount(testutil.NewRequest(t, http.MethodPost, "/identities"), testAccount(0x02))

	testutil.AssertStatus(t, testutil.DoRequest(handler, first), http.StatusNoContent)
	testutil.AssertStatus(t, testutil.DoRequest(handler, second), http.StatusNoContent)
}

func TestMiddlewareFailsOpenOnLimiterError(t *testing.T) {
	handler := ratelimit.Middleware(failingLimiter{}, discardLogger())(okHandler())

	rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodPost, "/identities"))

	testutil.AssertStatus(t, rr, http.StatusNoContent)
}
