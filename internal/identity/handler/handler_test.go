package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"veris/internal/events"
	eventsmemory "veris/internal/events/store/memory"
	"veris/internal/identity/derive"
	"veris/internal/identity/handler/mocks"
	"veris/internal/identity/service"
	identitystore "veris/internal/identity/store/identity"
	"veris/internal/identity/store/membership"
	"veris/pkg/domain"
	dErrors "veris/pkg/domain-errors"
	"veris/pkg/requestcontext"
)

const accountHeader = "X-Account"

func testAccount(b byte) domain.Address {
	var a domain.Address
	a[domain.AddressLen-1] = b
	return a
}

// newRegistryRouter wires the handler to a real service over in-memory
// stores. Authentication is simulated by a header-reading middleware so these
// tests exercise handler and service behavior, not token verification.
func newRegistryRouter(t *testing.T) chi.Router {
	t.Helper()

	trail := events.NewPublisher(eventsmemory.NewStore())
	svc := service.New(
		identitystore.NewInMemory(),
		membership.NewInMemory(),
		service.WithSink(trail),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	h := New(svc, trail, slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get(accountHeader); raw != "" {
				account, err := domain.ParseAddress(raw)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				r = r.WithContext(requestcontext.WithAccount(r.Context(), account))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.Register(router, router)
	return router
}

func doJSON(t *testing.T, router chi.Router, method, path string, caller domain.Address, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if !caller.IsZero() {
		req.Header.Set(accountHeader, caller.String())
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createIdentity(t *testing.T, router chi.Router, caller domain.Address, nonce uint64, name string) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/identities", caller, map[string]any{
		"nonce": nonce,
		"name":  name,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating identity, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	if resp.Identifier == "" {
		t.Fatalf("expected identifier in response")
	}
	return resp.Identifier
}

func TestAuthenticationRequiredForMutations(t *testing.T) {
	router := newRegistryRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/identities", domain.Address{}, map[string]any{
		"nonce": 1,
		"name":  "alpha",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an account, got %d", rec.Code)
	}
}

func TestLifecycleViaHandlers(t *testing.T) {
	router := newRegistryRouter(t)
	ownerA := testAccount(0xA)
	candidateB := testAccount(0xB)

	idHex := createIdentity(t, router, ownerA, 1, "alpha")

	id, err := domain.ParseIdentifier(idHex)
	if err != nil {
		t.Fatalf("returned identifier does not parse: %v", err)
	}
	if want := derive.Identifier(1, ownerA); id != want {
		t.Fatalf("expected derived identifier %s, got %s", want, id)
	}

	// Lookup by identifier.
	rec := doJSON(t, router, http.MethodGet, "/identities/"+idHex, domain.Address{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching identity, got %d", rec.Code)
	}
	var got IdentityResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode identity response: %v", err)
	}
	if got.Name != "alpha" || got.Owner != ownerA.String() {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Lookup by anchor.
	anchor := derive.Anchor(id, "alpha")
	rec = doJSON(t, router, http.MethodGet, "/identities/anchor/"+anchor.String(), domain.Address{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching by anchor, got %d", rec.Code)
	}

	// Rename and follow the anchor.
	rec = doJSON(t, router, http.MethodPut, "/identities/"+idHex+"/name", ownerA, map[string]string{"name": "omega"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 renaming, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodGet, "/identities/anchor/"+anchor.String(), domain.Address{}, nil)
	var stale IdentityResponse
	if err := json.NewDecoder(rec.Body).Decode(&stale); err != nil {
		t.Fatalf("failed to decode stale anchor response: %v", err)
	}
	if stale.Name != "" {
		t.Fatalf("expected zero record at retired anchor, got %+v", stale)
	}

	// Ownership handshake.
	rec = doJSON(t, router, http.MethodPut, "/identities/"+idHex+"/owner", ownerA, map[string]string{"candidate": candidateB.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 proposing owner, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodPost, "/identities/"+idHex+"/owner/accept", candidateB, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 accepting ownership, got %d: %s", rec.Code, rec.Body.String())
	}
	var transferred IdentityResponse
	if err := json.NewDecoder(rec.Body).Decode(&transferred); err != nil {
		t.Fatalf("failed to decode transfer response: %v", err)
	}
	if transferred.Owner != candidateB.String() {
		t.Fatalf("expected owner %s after acceptance, got %s", candidateB, transferred.Owner)
	}

	// Membership and the access predicates.
	memberC := testAccount(0xC)
	rec = doJSON(t, router, http.MethodPost, "/identities/"+idHex+"/members", candidateB, map[string]any{
		"accounts": []string{memberC.String()},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 adding members, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/identities/%s/access/%s", idHex, memberC), domain.Address{}, nil)
	var access AccessResponse
	if err := json.NewDecoder(rec.Body).Decode(&access); err != nil {
		t.Fatalf("failed to decode access response: %v", err)
	}
	if access.Owner || !access.Member || !access.OwnerOrMember {
		t.Fatalf("unexpected access flags: %+v", access)
	}

	// Event trail covers every mutation in order.
	rec = doJSON(t, router, http.MethodGet, "/identities/"+idHex+"/events", domain.Address{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing events, got %d", rec.Code)
	}
	var trail []events.Record
	if err := json.NewDecoder(rec.Body).Decode(&trail); err != nil {
		t.Fatalf("failed to decode event trail: %v", err)
	}
	wantKinds := []events.Kind{
		events.KindIdentityCreated,
		events.KindNameUpdated,
		events.KindPendingOwnerUpdated,
		events.KindOwnerUpdated,
		events.KindMembersAdded,
	}
	if len(trail) != len(wantKinds) {
		t.Fatalf("expected %d events, got %d", len(wantKinds), len(trail))
	}
	for i, kind := range wantKinds {
		if trail[i].Kind != kind {
			t.Fatalf("event %d: expected kind %s, got %s", i, kind, trail[i].Kind)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	router := newRegistryRouter(t)
	ownerA := testAccount(0xA)
	strangerC := testAccount(0xC)

	idHex := createIdentity(t, router, ownerA, 1, "alpha")

	// Occupied slot -> 409.
	rec := doJSON(t, router, http.MethodPost, "/identities", ownerA, map[string]any{
		"nonce": 1,
		"name":  "clone",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on occupied slot, got %d", rec.Code)
	}

	// Non-owner mutation -> 403.
	rec = doJSON(t, router, http.MethodPut, "/identities/"+idHex+"/name", strangerC, map[string]string{"name": "stolen"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rec.Code)
	}

	// Acceptance without a proposal -> 403.
	rec = doJSON(t, router, http.MethodPost, "/identities/"+idHex+"/owner/accept", strangerC, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-candidate, got %d", rec.Code)
	}

	// Malformed identifier -> 400.
	rec = doJSON(t, router, http.MethodGet, "/identities/not-hex", domain.Address{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed identifier, got %d", rec.Code)
	}

	// Malformed member address -> 400, before any service call.
	rec = doJSON(t, router, http.MethodPost, "/identities/"+idHex+"/members", ownerA, map[string]any{
		"accounts": []string{"bogus"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed account, got %d", rec.Code)
	}
}

func TestVacantSlotReadsReturnZeroRecord(t *testing.T) {
	router := newRegistryRouter(t)

	var missing domain.Identifier
	missing[0] = 0xff

	rec := doJSON(t, router, http.MethodGet, "/identities/"+missing.String(), domain.Address{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for vacant slot, got %d", rec.Code)
	}
	var got IdentityResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Identifier != (domain.Identifier{}).String() {
		t.Fatalf("expected zero identifier, got %s", got.Identifier)
	}
}

func TestListEventsFilteredByKind(t *testing.T) {
	router := newRegistryRouter(t)
	ownerA := testAccount(0xA)

	idHex := createIdentity(t, router, ownerA, 1, "alpha")
	rec := doJSON(t, router, http.MethodPut, "/identities/"+idHex+"/name", ownerA, map[string]string{"name": "beta"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 renaming, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/identities/"+idHex+"/events?kinds=identity_name_updated", domain.Address{}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing filtered events, got %d", rec.Code)
	}
	var trail []events.Record
	if err := json.NewDecoder(rec.Body).Decode(&trail); err != nil {
		t.Fatalf("failed to decode event trail: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected 1 filtered event, got %d", len(trail))
	}
	if trail[0].Kind != events.KindNameUpdated {
		t.Fatalf("expected kind %s, got %s", events.KindNameUpdated, trail[0].Kind)
	}

	// Unknown kind names are rejected, not silently ignored.
	rec = doJSON(t, router, http.MethodGet, "/identities/"+idHex+"/events?kinds=identity_exploded", domain.Address{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestInternalErrorsOmitDetails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockService := mocks.NewMockService(ctrl)
	mockTrail := mocks.NewMockEventLister(ctrl)
	h := New(mockService, mockTrail, slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := chi.NewRouter()
	h.Register(router, router)

	var id domain.Identifier
	id[0] = 0x01
	mockService.EXPECT().GetByID(gomock.Any(), id).
		Return(nil, dErrors.New(dErrors.CodeInternal, "connection refused to 10.0.0.5:5432"))

	req := httptest.NewRequest(http.MethodGet, "/identities/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Description != "" {
		t.Fatalf("internal error description must not leak, got %q", body.Description)
	}
}
