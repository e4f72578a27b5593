package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"veris/pkg/domain"
	"veris/pkg/platform/middleware/auth"
	"veris/pkg/requestcontext"
	"veris/pkg/testutil"
)

type stubValidator struct {
	claims *auth.JWTClaims
	err    error
}

func (s *stubValidator) ValidateToken(string) (*auth.JWTClaims, error) {
	return s.claims, s.err
}

type stubRevocationChecker struct {
	revoked bool
	err     error
}

func (s *stubRevocationChecker) IsTokenRevoked(context.Context, string) (bool, error) {
	return s.revoked, s.err
}

func testAccount(b byte) domain.Address {
	var a domain.Address
	a[len(a)-1] = b
	return a
}

func protected(validator auth.JWTValidator, checker auth.TokenRevocationChecker, captured *domain.Address) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = requestcontext.Account(r.Context())
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return auth.RequireAuth(validator, checker, logger)(next)
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	handler := protected(&stubValidator{}, nil, nil)

	rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodPost, "/identities"))

	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	handler := protected(&stubValidator{err: errors.New("signature invalid")}, nil, nil)

	req := testutil.NewRequest(t, http.MethodPost, "/identities")
	req.Header.Set("Authorization", "Bearer bad-token")
	rr := testutil.DoRequest(handler, req)

	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
}

func TestRequireAuthRejectsZeroAccount(t *testing.T) {
	handler := protected(&stubValidator{claims: &auth.JWTClaims{JTI: "jti-1"}}, nil, nil)

	req := testutil.NewRequest(t, http.MethodPost, "/identities")
	req.Header.Set("Authorization", "Bearer token")
	rr := testutil.DoRequest(handler, req)

	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestRequireAuthPlacesAccountInContext(t *testing.T) {
	account := testAccount(0xA1)
	var got domain.Address
	handler := protected(&stubValidator{claims: &auth.JWTClaims{Account: account, JTI: "jti-1"}}, nil, &got)

	req := testutil.NewRequest(t, http.MethodPost, "/identities")
	req.Header.Set("Authorization", "Bearer token")
	rr := testutil.DoRequest(handler, req)

	testutil.AssertStatus(t, rr, http.StatusNoContent)
	assert.Equal(t, account, got)
}

func TestRequireAuthRevocation(t *testing.T) {
	account := testAccount(0xA1)

	tests := []struct {
		name       string
		claims     *auth.JWTClaims
		checker    auth.TokenRevocationChecker
		wantStatus int
	}{
		{
			name:       "revoked token rejected",
			claims:     &auth.JWTClaims{Account: account, JTI: "jti-1"},
			checker:    &stubRevocationChecker{revoked: true},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "checker failure surfaces as internal error",
			claims:     &auth.JWTClaims{Account: account, JTI: "jti-1"},
			checker:    &stubRevocationChecker{err: errors.New("redis down")},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "token without jti rejected when checking is enabled",
			claims:     &auth.JWTClaims{Account: account},
			checker:    &stubRevocationChecker{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "nil checker skips revocation",
			claims:     &auth.JWTClaims{Account: account},
			checker:    nil,
			wantStatus: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := protected(&stubValidator{claims: tt.claims}, tt.checker, nil)

			req := testutil.NewRequest(t, http.MethodPost, "/identities")
			req.Header.Set("Authorization", "Bearer token")
			rr := testutil.DoRequest(handler, req)

			testutil.AssertStatus(t, rr, tt.wantStatus)
		})
	}
}
