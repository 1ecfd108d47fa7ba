package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "tranche/pkg/domain"
	"tranche/pkg/platform/httputil"
	"tranche/pkg/requestcontext"
)

// Service defines the ledger operations the HTTP layer exposes.
type Service interface {
	Mint(ctx context.Context, asset id.AssetID, to id.AccountID, amount int64) error
	Burn(ctx context.Context, asset id.AssetID, from id.AccountID, amount int64) error
	Transfer(ctx context.Context, asset id.AssetID, to id.AccountID, amount int64) error
	TransferFrom(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error
	ForcedTransfer(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64, transferID string) error
	SetWalletFrozen(ctx context.Context, asset id.AssetID, account id.AccountID, frozen bool) error
	SetTokenFrozen(ctx context.Context, asset id.AssetID, frozen bool) error
	BalanceOf(ctx context.Context, asset id.AssetID, account id.AccountID) (int64, error)
	TotalSupply(ctx context.Context, asset id.AssetID) (int64, error)
	IsWalletFrozen(ctx context.Context, asset id.AssetID, account id.AccountID) (bool, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/assets/{assetID}/mint", h.HandleMint)
	r.Post("/assets/{assetID}/burn", h.HandleBurn)
	r.Post("/assets/{assetID}/transfers", h.HandleTransfer)
	r.Post("/assets/{assetID}/transfers/authorized", h.HandleTransferFrom)
	r.Post("/assets/{assetID}/transfers/forced", h.HandleForcedTransfer)
	r.Put("/assets/{assetID}/frozen", h.HandleSetTokenFrozen)
	r.Put("/assets/{assetID}/accounts/{accountID}/frozen", h.HandleSetWalletFrozen)
	r.Get("/assets/{assetID}/supply", h.HandleTotalSupply)
	r.Get("/assets/{assetID}/accounts/{accountID}", h.HandleAccount)
}

func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[MintRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Mint(ctx, asset, req.ParsedAccount(), req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "mint accepted", "asset", asset, "to", req.Account, "amount", req.Amount)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[MintRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Burn(ctx, asset, req.ParsedAccount(), req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "burn accepted", "asset", asset, "from", req.Account, "amount", req.Amount)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Transfer(ctx, asset, req.ParsedTo(), req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleTransferFrom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferFromRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.TransferFrom(ctx, asset, req.ParsedFrom(), req.ParsedTo(), req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleForcedTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ForcedTransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.ForcedTransfer(ctx, asset, req.ParsedFrom(), req.ParsedTo(), req.Amount, req.TransferID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "forced transfer accepted",
		"asset", asset, "from", req.From, "to", req.To, "transfer_id", req.TransferID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetTokenFrozen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[FrozenRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetTokenFrozen(ctx, asset, req.Frozen); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSetWalletFrozen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	account, ok := accountFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[FrozenRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetWalletFrozen(ctx, asset, account, req.Frozen); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleTotalSupply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}

	supply, err := h.service.TotalSupply(ctx, asset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SupplyResponse{Asset: asset.String(), TotalSupply: supply})
}

func (h *Handler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asset, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	account, ok := accountFromPath(w, r)
	if !ok {
		return
	}

	balance, err := h.service.BalanceOf(ctx, asset, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	frozen, err := h.service.IsWalletFrozen(ctx, asset, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AccountResponse{
		Asset:   asset.String(),
		Account: account.String(),
		Balance: balance,
		Frozen:  frozen,
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

func accountFromPath(w http.ResponseWriter, r *http.Request) (id.AccountID, bool) {
	account, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.AccountID{}, false
	}
	return account, true
}
