package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"tranche/internal/distribution/models"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/httputil"
	"tranche/pkg/requestcontext"
)

// Service defines the distribution operations the HTTP layer exposes.
type Service interface {
	CreateDistribution(ctx context.Context, asset, paymentAsset id.AssetID, totalAmount decimal.Decimal, claimableFrom, claimableUntil time.Time) (models.Distribution, error)
	ClaimProfit(ctx context.Context, distID id.DistributionID) (models.Claim, error)
	ClaimMultiple(ctx context.Context, distIDs []id.DistributionID) []models.Claim
	CancelDistribution(ctx context.Context, distID id.DistributionID) error
	RecoverUnclaimedFunds(ctx context.Context, distID id.DistributionID, recipient id.AccountID) (decimal.Decimal, error)
	GetDistribution(ctx context.Context, distID id.DistributionID) (models.Distribution, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts distribution endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/distributions", h.HandleCreate)
	r.Post("/distributions/claims", h.HandleClaimMultiple)
	r.Get("/distributions/{distributionID}", h.HandleGet)
	r.Post("/distributions/{distributionID}/claim", h.HandleClaim)
	r.Post("/distributions/{distributionID}/cancel", h.HandleCancel)
	r.Post("/distributions/{distributionID}/recover", h.HandleRecover)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateDistributionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	dist, err := h.service.CreateDistribution(ctx, req.ParsedAsset(), req.ParsedPaymentAsset(),
		req.ParsedTotalAmount(), req.ClaimableFrom, req.ClaimableUntil)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "distribution created", "distribution", dist.ID, "asset", dist.Asset)
	httputil.WriteJSON(w, http.StatusCreated, FromDistribution(dist))
}

func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	distID, ok := distributionFromPath(w, r)
	if !ok {
		return
	}

	claim, err := h.service.ClaimProfit(ctx, distID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "profit claimed", "distribution", distID, "amount", claim.Amount)
	httputil.WriteJSON(w, http.StatusOK, FromClaim(claim))
}

func (h *Handler) HandleClaimMultiple(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ClaimMultipleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	claims := h.service.ClaimMultiple(ctx, req.ParsedIDs())
	out := make([]*ClaimResponse, 0, len(claims))
	for _, c := range claims {
		out = append(out, FromClaim(c))
	}
	httputil.WriteJSON(w, http.StatusOK, ClaimListResponse{Claims: out})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	distID, ok := distributionFromPath(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelDistribution(ctx, distID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "distribution cancelled", "distribution", distID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	distID, ok := distributionFromPath(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecoverRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	swept, err := h.service.RecoverUnclaimedFunds(ctx, distID, req.ParsedRecipient())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "unclaimed funds recovered", "distribution", distID, "amount", swept)
	httputil.WriteJSON(w, http.StatusOK, RecoverResponse{
		Distribution: distID.String(),
		Recipient:    req.Recipient,
		Amount:       swept.String(),
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	distID, ok := distributionFromPath(w, r)
	if !ok {
		return
	}

	dist, err := h.service.GetDistribution(ctx, distID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDistribution(dist))
}

func distributionFromPath(w http.ResponseWriter, r *http.Request) (id.DistributionID, bool) {
	distID, err := id.ParseDistributionID(chi.URLParam(r, "distributionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DistributionID{}, false
	}
	return distID, true
}
