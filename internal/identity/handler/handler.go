// Package handler exposes the identity registry over HTTP.
//
// Reads are public; every mutation requires an authenticated account, which
// the auth middleware has already placed in the request context.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"veris/internal/events"
	"veris/internal/identity/models"
	"veris/pkg/domain"
	dErrors "veris/pkg/domain-errors"
	"veris/pkg/platform/httputil"
	stringsutil "veris/pkg/platform/strings"
	"veris/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,EventLister

// Service defines the registry operations the handler dispatches to.
type Service interface {
	Create(ctx context.Context, nonce uint64, name string, metadata []byte, owner domain.Address, accounts []domain.Address) (domain.Identifier, error)
	GetByID(ctx context.Context, id domain.Identifier) (*models.Identity, error)
	GetByAnchor(ctx context.Context, anchor domain.Address) (*models.Identity, error)
	UpdateName(ctx context.Context, id domain.Identifier, name string) (*models.Identity, error)
	UpdateMetadata(ctx context.Context, id domain.Identifier, metadata []byte) (*models.Identity, error)
	ProposeOwner(ctx context.Context, id domain.Identifier, candidate domain.Address) (*models.Identity, error)
	AcceptOwnership(ctx context.Context, id domain.Identifier) (*models.Identity, error)
	AddMembers(ctx context.Context, id domain.Identifier, accounts []domain.Address) error
	RemoveMembers(ctx context.Context, id domain.Identifier, accounts []domain.Address) error
	IsOwner(ctx context.Context, id domain.Identifier, account domain.Address) (bool, error)
	IsMember(ctx context.Context, id domain.Identifier, account domain.Address) (bool, error)
	IsOwnerOrMember(ctx context.Context, id domain.Identifier, account domain.Address) (bool, error)
}

// EventLister reads back the stored event trail for an identity.
type EventLister interface {
	List(ctx context.Context, id domain.Identifier) ([]events.Record, error)
	ListByKinds(ctx context.Context, id domain.Identifier, kinds []events.Kind) ([]events.Record, error)
}

// Handler wires registry endpoints to the identity service.
type Handler struct {
	service Service
	trail   EventLister
	logger  *slog.Logger
}

// New constructs an identity handler with its dependencies.
func New(service Service, trail EventLister, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		trail:   trail,
		logger:  logger,
	}
}

// Register mounts registry endpoints on the router. The caller wraps the
// mutating subtree with the auth middleware.
func (h *Handler) Register(public chi.Router, authed chi.Router) {
	public.Get("/identities/{identifier}", h.HandleGetByID)
	public.Get("/identities/anchor/{anchor}", h.HandleGetByAnchor)
	public.Get("/identities/{identifier}/access/{account}", h.HandleAccess)
	public.Get("/identities/{identifier}/events", h.HandleListEvents)

	authed.Post("/identities", h.HandleCreate)
	authed.Put("/identities/{identifier}/name", h.HandleUpdateName)
	authed.Put("/identities/{identifier}/metadata", h.HandleUpdateMetadata)
	authed.Put("/identities/{identifier}/owner", h.HandleProposeOwner)
	authed.Post("/identities/{identifier}/owner/accept", h.HandleAcceptOwnership)
	authed.Post("/identities/{identifier}/members", h.HandleAddMembers)
	authed.Delete("/identities/{identifier}/members", h.HandleRemoveMembers)
}

// HandleCreate handles POST /identities requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateIdentityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	id, err := h.service.Create(ctx, req.Nonce, req.Name, req.Metadata, req.ParsedOwner(), req.ParsedMembers())
	if err != nil {
		h.logError(ctx, "identity creation failed", requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, CreateIdentityResponse{Identifier: id.String()})
}

// HandleGetByID handles GET /identities/{identifier} requests.
func (h *Handler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseIdentifier(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.GetByID(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(rec))
}

// HandleGetByAnchor handles GET /identities/anchor/{anchor} requests.
func (h *Handler) HandleGetByAnchor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	anchor, err := domain.ParseAddress(chi.URLParam(r, "anchor"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.GetByAnchor(ctx, anchor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(rec))
}

// HandleAccess handles GET /identities/{identifier}/access/{account} requests.
func (h *Handler) HandleAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseIdentifier(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	owner, err := h.service.IsOwner(ctx, id, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	member, err := h.service.IsMember(ctx, id, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, AccessResponse{
		Owner:         owner,
		Member:        member,
		OwnerOrMember: owner || member,
	})
}

// HandleListEvents handles GET /identities/{identifier}/events requests.
// An optional comma-separated "kinds" query parameter restricts the trail to
// the named event kinds.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseIdentifier(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	kinds, err := parseKindsParam(r.URL.Query().Get("kinds"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid kinds parameter"))
		return
	}

	var records []events.Record
	if len(kinds) > 0 {
		records, err = h.trail.ListByKinds(ctx, id, kinds)
	} else {
		records, err = h.trail.List(ctx, id)
	}
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}
	if records == nil {
		records = []events.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

// HandleUpdateName handles PUT /identities/{identifier}/name requests.
func (h *Handler) HandleUpdateName(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseIdentifier(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateNameRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.UpdateName(ctx, id, req.Name)
	if err != nil {
		h.logError(ctx, "identity rename failed", requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(rec))
}

// HandleUpdateMetadata handles PUT /identities/{identifier}/metadata requests.
func (h *Handler) HandleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseIdentifier(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateMetadataRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.UpdateMetadata(ctx, id, req.Metadata)
	if err != nil {
		h.logError(ctx, "identity metadata update failed", requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(rec))
}

// HandleProposeOwner handles PUT /identities/{identifier}/owner requests.
func (h *Handler) HandleProposeOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseIdentifier(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[ProposeOwnerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.ProposeOwner(ctx, id, req.ParsedCandidate())
	if err != nil {
		h.logError(ctx, "owner proposal failed", requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(rec))
}

// HandleAcceptOwnership handles POST /identities/{identifier}/owner/accept requests.
func (h *Handler) HandleAcceptOwnership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseIdentifier(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.AcceptOwnership(ctx, id)
	if err != nil {
		h.logError(ctx, "ownership acceptance failed", requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromIdentity(rec))
}

// HandleAddMembers handles POST /identities/{identifier}/members requests.
func (h *Handler) HandleAddMembers(w http.ResponseWriter, r *http.Request) {
	h.handleMembers(w, r, h.service.AddMembers, "membership grant failed")
}

// HandleRemoveMembers handles DELETE /identities/{identifier}/members requests.
func (h *Handler) HandleRemoveMembers(w http.ResponseWriter, r *http.Request) {
	h.handleMembers(w, r, h.service.RemoveMembers, "membership revocation failed")
}

func (h *Handler) handleMembers(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, domain.Identifier, []domain.Address) error,
	failureMsg string,
) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	id, err := domain.ParseIdentifier(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[MembersRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := apply(ctx, id, req.ParsedAccounts()); err != nil {
		h.logError(ctx, failureMsg, requestID, caller, err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseKindsParam(raw string) ([]events.Kind, error) {
	if raw == "" {
		return nil, nil
	}
	names := stringsutil.DedupeAndTrim(strings.Split(raw, ","))
	kinds := make([]events.Kind, 0, len(names))
	for _, name := range names {
		k, err := events.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (h *Handler) requireCaller(w http.ResponseWriter, ctx context.Context) (domain.Address, bool) {
	caller := requestcontext.Account(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Address{}, false
	}
	return caller, true
}

func (h *Handler) logError(ctx context.Context, msg, requestID string, caller domain.Address, err error) {
	if h.logger == nil {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestID,
		"caller", caller,
		"error", err,
	)
}
