// Package handler exposes operator endpoints for role grants and identity
// registration. These routes sit behind the static admin token, not the
// holder JWT flow.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tranche/internal/authz"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/httputil"
	"tranche/pkg/requestcontext"
)

// RoleStore is the role-assignment table behind the admin surface.
type RoleStore interface {
	Grant(ctx context.Context, account id.AccountID, role authz.Role) error
	Revoke(ctx context.Context, account id.AccountID, role authz.Role) error
	Roles(ctx context.Context, account id.AccountID) []authz.Role
}

// IdentityRegistrar manages the verified-account set.
type IdentityRegistrar interface {
	Register(ctx context.Context, account id.AccountID)
	Unregister(ctx context.Context, account id.AccountID)
	IsVerified(ctx context.Context, account id.AccountID) (bool, error)
}

type Handler struct {
	roles    RoleStore
	identity IdentityRegistrar
	logger   *slog.Logger
}

func New(roles RoleStore, identity IdentityRegistrar, logger *slog.Logger) *Handler {
	return &Handler{roles: roles, identity: identity, logger: logger}
}

// Register mounts admin endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/roles/grant", h.HandleGrant)
	r.Post("/roles/revoke", h.HandleRevoke)
	r.Get("/roles/{accountID}", h.HandleRoles)
	r.Put("/identity/{accountID}", h.HandleSetVerified)
	r.Get("/identity/{accountID}", h.HandleVerified)
}

func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.roles.Grant(ctx, req.ParsedAccount(), req.ParsedRole()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "role granted", "account", req.Account, "role", req.Role)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.roles.Revoke(ctx, req.ParsedAccount(), req.ParsedRole()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "role revoked", "account", req.Account, "role", req.Role)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := accountFromPath(w, r)
	if !ok {
		return
	}

	roles := h.roles.Roles(ctx, account)
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	httputil.WriteJSON(w, http.StatusOK, RolesResponse{Account: account.String(), Roles: out})
}

func (h *Handler) HandleSetVerified(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := accountFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifiedRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if req.Verified {
		h.identity.Register(ctx, account)
	} else {
		h.identity.Unregister(ctx, account)
	}
	h.logger.InfoContext(ctx, "identity verification updated", "account", account, "verified", req.Verified)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleVerified(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := accountFromPath(w, r)
	if !ok {
		return
	}

	verified, err := h.identity.IsVerified(ctx, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifiedResponse{Account: account.String(), Verified: verified})
}

func accountFromPath(w http.ResponseWriter, r *http.Request) (id.AccountID, bool) {
	account, err := id.ParseAccountID(strings.TrimSpace(chi.URLParam(r, "accountID")))
	if err != nil {
		httputil.WriteError(w, err)
		return id.AccountID{}, false
	}
	return account, true
}

// RoleRequest names an account and a role.
type RoleRequest struct {
	Account string `json:"account"`
	Role    string `json:"role"`

	parsedAccount id.AccountID
	parsedRole    authz.Role
}

func (r *RoleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	account, err := id.ParseAccountID(strings.TrimSpace(r.Account))
	if err != nil {
		return err
	}
	role := authz.Role(strings.TrimSpace(r.Role))
	if !role.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", r.Role)
	}
	r.parsedAccount = account
	r.parsedRole = role
	return nil
}

func (r *RoleRequest) ParsedAccount() id.AccountID { return r.parsedAccount }
func (r *RoleRequest) ParsedRole() authz.Role      { return r.parsedRole }

type VerifiedRequest struct {
	Verified bool `json:"verified"`
}

func (r *VerifiedRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// RolesResponse lists an account's grants.
type RolesResponse struct {
	Account string   `json:"account"`
	Roles   []string `json:"roles"`
}

// VerifiedResponse reports an account's verification state.
type VerifiedResponse struct {
	Account  string `json:"account"`
	Verified bool   `json:"verified"`
}
