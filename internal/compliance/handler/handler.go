package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tranche/internal/compliance/models"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/httputil"
	"tranche/pkg/requestcontext"
)

// Service defines the compliance configuration operations the HTTP layer
// exposes.
type Service interface {
	SetPaused(ctx context.Context, asset id.AssetID, paused bool) error
	SetGlobalThresholds(ctx context.Context, asset id.AssetID, minInvestment, maxHolding, supplyCap int64) error
	SetProfile(ctx context.Context, asset id.AssetID, account id.AccountID, profile models.AccountProfile) error
	SetSanctioned(ctx context.Context, asset id.AssetID, account id.AccountID, sanctioned bool) error
	SetTransferLimits(ctx context.Context, asset id.AssetID, account id.AccountID, limits models.TransferLimits) error
	ConfigOf(ctx context.Context, asset id.AssetID) (models.Config, error)
	ProfileOf(ctx context.Context, asset id.AssetID, account id.AccountID) (models.AccountProfile, error)
	Headroom(ctx context.Context, asset id.AssetID, account id.AccountID) (models.TransferLimits, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts compliance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/assets/{assetID}/compliance", func(r chi.Router) {
		r.Get("/", h.HandleConfig)
		r.Put("/thresholds", h.HandleSetThresholds)
		r.Put("/pause", h.HandleSetPaused)
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/profile", h.HandleProfile)
			r.Put("/profile", h.HandleSetProfile)
			r.Put("/sanction", h.HandleSetSanctioned)
			r.Put("/limits", h.HandleSetLimits)
			r.Get("/headroom", h.HandleHeadroom)
		})
	})
}

func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}

	cfg, err := h.service.ConfigOf(ctx, asset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) HandleSetThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ThresholdsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetGlobalThresholds(ctx, asset, req.MinInvestment, req.MaxHolding, req.SupplyCap); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "compliance thresholds updated", "asset", asset)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetPaused(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PauseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetPaused(ctx, asset, req.Paused); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "compliance pause flag updated", "asset", asset, "paused", req.Paused)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, account, ok := assetAccountFromPath(w, r)
	if !ok {
		return
	}

	profile, err := h.service.ProfileOf(ctx, asset, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) HandleSetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, account, ok := assetAccountFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProfileRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	profile := models.AccountProfile{
		MinInvestment: req.MinInvestment,
		MaxHolding:    req.MaxHolding,
		Whitelisted:   req.Whitelisted,
	}
	if err := h.service.SetProfile(ctx, asset, account, profile); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetSanctioned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, account, ok := assetAccountFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SanctionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetSanctioned(ctx, asset, account, req.Sanctioned); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "sanction flag updated", "asset", asset, "account", account, "sanctioned", req.Sanctioned)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, account, ok := assetAccountFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[LimitsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	limits := models.TransferLimits{Daily: req.Daily, Monthly: req.Monthly}
	if err := h.service.SetTransferLimits(ctx, asset, account, limits); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleHeadroom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, account, ok := assetAccountFromPath(w, r)
	if !ok {
		return
	}

	headroom, err := h.service.Headroom(ctx, asset, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HeadroomResponse{
		Asset:   asset.String(),
		Account: account.String(),
		Daily:   headroom.Daily,
		Monthly: headroom.Monthly,
	})
}

func assetFromPath(w http.ResponseWriter, r *http.Request) (id.AssetID, bool) {
	asset, err := id.ParseAssetID(chi.URLParam(r, "assetID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return asset, true
}

func assetAccountFromPath(w http.ResponseWriter, r *http.Request) (id.AssetID, id.AccountID, bool) {
	asset, ok := assetFromPath(w, r)
	if !ok {
		return "", id.AccountID{}, false
	}
	account, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", id.AccountID{}, false
	}
	return asset, account, true
}
