package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tranche/internal/registry/models"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/httputil"
	"tranche/pkg/requestcontext"
)

// Service defines the registry operations the HTTP layer exposes.
type Service interface {
	CreateInvoiceToken(ctx context.Context, assetID id.AssetID, issuer id.AccountID, faceValue, markupBps int64, maturity time.Time, description string, initialSupply int64) (models.Asset, error)
	DeactivateInvoice(ctx context.Context, assetID id.AssetID) error
	CalculateMaturityValue(ctx context.Context, assetID id.AssetID) (int64, error)
	GetAsset(ctx context.Context, assetID id.AssetID) (models.Asset, error)
	GetActiveInvoices(ctx context.Context, offset, limit int) ([]models.Asset, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/invoices", h.HandleCreate)
	r.Get("/invoices", h.HandleListActive)
	r.Get("/invoices/{assetID}", h.HandleGet)
	r.Get("/invoices/{assetID}/maturity-value", h.HandleMaturityValue)
	r.Post("/invoices/{assetID}/deactivate", h.HandleDeactivate)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateInvoiceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	asset, err := h.service.CreateInvoiceToken(ctx, req.ParsedAssetID(), req.ParsedIssuer(),
		req.FaceValue, req.MarkupBps, req.Maturity, req.Description, req.InitialSupply)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "invoice token created", "asset", asset.ID, "issuer", asset.Issuer)
	httputil.WriteJSON(w, http.StatusCreated, FromAsset(asset))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	asset, err := h.service.GetAsset(ctx, assetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAsset(asset))
}

func (h *Handler) HandleMaturityValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	value, err := h.service.CalculateMaturityValue(ctx, assetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MaturityValueResponse{Asset: assetID.String(), MaturityValue: value})
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.DeactivateInvoice(ctx, assetID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "invoice deactivated", "asset", assetID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)

	assets, err := h.service.GetActiveInvoices(ctx, offset, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]*AssetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, FromAsset(a))
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Invoices: out, Offset: offset, Limit: limit})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
