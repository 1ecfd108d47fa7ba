// Package service implements the profit distribution engine. A distribution
// escrows its full amount at creation and records the ledger's total supply
// at that moment; holders then claim pro-rata shares computed from their
// balance read at claim time.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tranche/internal/audit"
	"tranche/internal/authz"
	distributionmetrics "tranche/internal/distribution/metrics"
	"tranche/internal/distribution/models"
	"tranche/internal/paymentasset"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/requestcontext"
)

var tracer = otel.Tracer("tranche/internal/distribution")

// Store persists distributions and their terminal per-holder claims.
// CreateClaim accrues the claim's amount into TotalClaimed atomically with
// recording it, and DeleteClaim returns it, so concurrent claims never lose
// updates. Deactivate transitions active to inactive exactly once and
// returns the snapshot at that instant.
type Store interface {
	Create(ctx context.Context, dist models.Distribution) error
	Get(ctx context.Context, distID id.DistributionID) (models.Distribution, error)
	Deactivate(ctx context.Context, distID id.DistributionID) (models.Distribution, error)
	Reactivate(ctx context.Context, distID id.DistributionID) error
	GetClaim(ctx context.Context, distID id.DistributionID, holder id.AccountID) (models.Claim, error)
	CreateClaim(ctx context.Context, claim models.Claim) error
	DeleteClaim(ctx context.Context, distID id.DistributionID, holder id.AccountID) error
}

// Ledger is the read-only slice of ledger state the engine consults.
type Ledger interface {
	TotalSupply(ctx context.Context, asset id.AssetID) (int64, error)
	BalanceOf(ctx context.Context, asset id.AssetID, account id.AccountID) (int64, error)
}

type Engine struct {
	store    Store
	ledger   Ledger
	payments paymentasset.Provider
	authz    authz.Authorizer
	account  id.AccountID

	logger  *slog.Logger
	metrics *distributionmetrics.Metrics
	audit   *audit.Emitter
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *distributionmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAudit(a *audit.Emitter) Option {
	return func(e *Engine) { e.audit = a }
}

// New builds the engine. account is the engine's escrow principal on the
// payment rail.
func New(store Store, ledger Ledger, payments paymentasset.Provider, authorizer authz.Authorizer, account id.AccountID, opts ...Option) *Engine {
	e := &Engine{store: store, ledger: ledger, payments: payments, authz: authorizer, account: account}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDistribution escrows totalAmount from the caller immediately and
// records the asset's current total supply as the claim denominator.
func (e *Engine) CreateDistribution(ctx context.Context, asset, paymentAsset id.AssetID, totalAmount decimal.Decimal, claimableFrom, claimableUntil time.Time) (models.Distribution, error) {
	ctx, span := tracer.Start(ctx, "distribution.CreateDistribution",
		trace.WithAttributes(attribute.String("asset", asset.String())))
	defer span.End()

	creator := requestcontext.Principal(ctx)
	if err := e.authz.Require(ctx, creator, authz.RoleDistributor); err != nil {
		return models.Distribution{}, err
	}
	now := requestcontext.Now(ctx)

	if !totalAmount.IsPositive() {
		return models.Distribution{}, dErrors.New(dErrors.CodeInvalidInput, "total amount must be positive")
	}
	if !claimableFrom.IsZero() && !claimableUntil.IsZero() && !claimableUntil.After(claimableFrom) {
		return models.Distribution{}, dErrors.New(dErrors.CodeInvalidInput, "claim window must end after it opens")
	}

	supply, err := e.ledger.TotalSupply(ctx, asset)
	if err != nil {
		return models.Distribution{}, err
	}
	if supply == 0 {
		return models.Distribution{}, dErrors.Newf(dErrors.CodeInvalidInput, "asset %s has no units outstanding", asset)
	}

	// Escrow before recording anything.
	if err := e.payments.TransferFrom(ctx, paymentAsset, e.account, creator, e.account, totalAmount); err != nil {
		return models.Distribution{}, translatePaymentErr(err)
	}

	dist := models.Distribution{
		ID:               id.DistributionID(uuid.New()),
		Asset:            asset,
		PaymentAsset:     paymentAsset,
		Creator:          creator,
		TotalAmount:      totalAmount,
		SupplyAtCreation: supply,
		ClaimableFrom:    claimableFrom,
		ClaimableUntil:   claimableUntil,
		TotalClaimed:     decimal.Zero,
		Active:           true,
		CreatedAt:        now,
	}
	if err := e.store.Create(ctx, dist); err != nil {
		if refundErr := e.payments.Transfer(ctx, paymentAsset, e.account, creator, totalAmount); refundErr != nil && e.logger != nil {
			e.logger.ErrorContext(ctx, "escrow refund failed", "distribution", dist.ID, "error", refundErr)
		}
		return models.Distribution{}, dErrors.Wrap(err, dErrors.CodeInternal, "record distribution")
	}

	if e.metrics != nil {
		e.metrics.IncrementCreated()
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionDistributionCreated,
		Actor:    creator,
		Asset:    asset,
		Subject:  dist.ID.String(),
		Amount:   totalAmount.String(),
	})
	if e.logger != nil {
		e.logger.InfoContext(ctx, "distribution created",
			"distribution", dist.ID, "asset", asset, "amount", totalAmount, "supply", supply)
	}
	return dist, nil
}

// ClaimProfit pays the calling holder their pro-rata share:
// totalAmount * balance / supplyAtCreation, floored. One claim per holder
// per distribution, permanently.
func (e *Engine) ClaimProfit(ctx context.Context, distID id.DistributionID) (models.Claim, error) {
	ctx, span := tracer.Start(ctx, "distribution.ClaimProfit",
		trace.WithAttributes(attribute.String("distribution", distID.String())))
	defer span.End()

	holder := requestcontext.Principal(ctx)
	if holder.IsZero() {
		return models.Claim{}, dErrors.New(dErrors.CodeForbidden, "caller is not authenticated")
	}
	now := requestcontext.Now(ctx)

	dist, err := e.loadDistribution(ctx, distID)
	if err != nil {
		return models.Claim{}, err
	}
	if !dist.Active {
		return models.Claim{}, dErrors.Newf(dErrors.CodeInvalidState, "distribution %s is inactive", distID)
	}
	if !dist.ClaimableFrom.IsZero() && now.Before(dist.ClaimableFrom) {
		return models.Claim{}, dErrors.Newf(dErrors.CodeInvalidState, "distribution %s is not yet open", distID)
	}
	if !dist.ClaimableUntil.IsZero() && now.After(dist.ClaimableUntil) {
		return models.Claim{}, dErrors.Newf(dErrors.CodeInvalidState, "distribution %s claim window has closed", distID)
	}

	balance, err := e.ledger.BalanceOf(ctx, dist.Asset, holder)
	if err != nil {
		return models.Claim{}, err
	}
	amount := claimAmount(dist.TotalAmount, balance, dist.SupplyAtCreation)
	if !amount.IsPositive() {
		return models.Claim{}, dErrors.New(dErrors.CodeInvalidState, "nothing to claim")
	}

	claim := models.Claim{
		Distribution: distID,
		Holder:       holder,
		Amount:       amount,
		ClaimedAt:    now,
	}
	// Mark claimed first so the claim is terminal, then pay; a failed
	// payment leg rolls the mark back. The mark accrues TotalClaimed in the
	// same store step, so a later recovery sweep never re-takes paid funds.
	if err := e.store.CreateClaim(ctx, claim); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return models.Claim{}, dErrors.Newf(dErrors.CodeInvalidState, "distribution %s already claimed", distID)
		case errors.Is(err, sentinel.ErrInvalidState):
			return models.Claim{}, dErrors.Newf(dErrors.CodeInvalidState, "distribution %s is inactive", distID)
		}
		return models.Claim{}, dErrors.Wrap(err, dErrors.CodeInternal, "record claim")
	}
	if err := e.payments.Transfer(ctx, dist.PaymentAsset, e.account, holder, amount); err != nil {
		if delErr := e.store.DeleteClaim(ctx, distID, holder); delErr != nil && e.logger != nil {
			e.logger.ErrorContext(ctx, "claim rollback failed", "distribution", distID, "holder", holder, "error", delErr)
		}
		return models.Claim{}, translatePaymentErr(err)
	}

	if e.metrics != nil {
		e.metrics.ObserveClaim(amount.InexactFloat64())
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionProfitClaimed,
		Actor:    holder,
		Asset:    dist.Asset,
		Subject:  distID.String(),
		Amount:   amount.String(),
	})
	return claim, nil
}

// ClaimMultiple is a best-effort batch: distributions that are invalid,
// closed, already claimed, or yield nothing are skipped, never aborting the
// rest of the batch.
func (e *Engine) ClaimMultiple(ctx context.Context, distIDs []id.DistributionID) []models.Claim {
	claims := make([]models.Claim, 0, len(distIDs))
	for _, distID := range distIDs {
		claim, err := e.ClaimProfit(ctx, distID)
		if err != nil {
			if e.logger != nil {
				e.logger.DebugContext(ctx, "claim skipped", "distribution", distID, "reason", err)
			}
			continue
		}
		claims = append(claims, claim)
	}
	return claims
}

// CancelDistribution refunds the full principal to the creator and
// deactivates. Allowed only before the claim window opens.
func (e *Engine) CancelDistribution(ctx context.Context, distID id.DistributionID) error {
	principal := requestcontext.Principal(ctx)
	if err := e.authz.Require(ctx, principal, authz.RoleDistributor); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	dist, err := e.loadDistribution(ctx, distID)
	if err != nil {
		return err
	}
	if !dist.Active {
		return dErrors.Newf(dErrors.CodeInvalidState, "distribution %s is inactive", distID)
	}
	if dist.ClaimableFrom.IsZero() || !now.Before(dist.ClaimableFrom) {
		return dErrors.Newf(dErrors.CodeInvalidState, "distribution %s claim window has opened", distID)
	}

	// Deactivate first so two concurrent cancels cannot both refund; a
	// failed refund leg reopens the distribution.
	if _, err := e.store.Deactivate(ctx, distID); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.Newf(dErrors.CodeInvalidState, "distribution %s is inactive", distID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "update distribution")
	}
	if err := e.payments.Transfer(ctx, dist.PaymentAsset, e.account, dist.Creator, dist.TotalAmount); err != nil {
		if reErr := e.store.Reactivate(ctx, distID); reErr != nil && e.logger != nil {
			e.logger.ErrorContext(ctx, "cancel rollback failed", "distribution", distID, "error", reErr)
		}
		return translatePaymentErr(err)
	}

	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionDistributionCancelled,
		Actor:    principal,
		Asset:    dist.Asset,
		Subject:  distID.String(),
		Amount:   dist.TotalAmount.String(),
	})
	return nil
}

// RecoverUnclaimedFunds sweeps the unclaimed remainder to the given
// recipient after the claim deadline has passed, then deactivates.
func (e *Engine) RecoverUnclaimedFunds(ctx context.Context, distID id.DistributionID, recipient id.AccountID) (decimal.Decimal, error) {
	principal := requestcontext.Principal(ctx)
	if err := e.authz.Require(ctx, principal, authz.RoleDistributor); err != nil {
		return decimal.Zero, err
	}
	if recipient.IsZero() {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}
	now := requestcontext.Now(ctx)

	dist, err := e.loadDistribution(ctx, distID)
	if err != nil {
		return decimal.Zero, err
	}
	if !dist.Active {
		return decimal.Zero, dErrors.Newf(dErrors.CodeInvalidState, "distribution %s is inactive", distID)
	}
	if dist.ClaimableUntil.IsZero() || !now.After(dist.ClaimableUntil) {
		return decimal.Zero, dErrors.Newf(dErrors.CodeInvalidState, "distribution %s claim window is still open", distID)
	}

	// Deactivate before sweeping: the snapshot carries every accrued claim,
	// so the remainder counts only funds no holder has been paid.
	closed, err := e.store.Deactivate(ctx, distID)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return decimal.Zero, dErrors.Newf(dErrors.CodeInvalidState, "distribution %s is inactive", distID)
		}
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeInternal, "update distribution")
	}
	remainder := closed.Unclaimed()
	if remainder.IsPositive() {
		if err := e.payments.Transfer(ctx, closed.PaymentAsset, e.account, recipient, remainder); err != nil {
			if reErr := e.store.Reactivate(ctx, distID); reErr != nil && e.logger != nil {
				e.logger.ErrorContext(ctx, "recovery rollback failed", "distribution", distID, "error", reErr)
			}
			return decimal.Zero, translatePaymentErr(err)
		}
	}

	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionUnclaimedRecovered,
		Actor:    principal,
		Asset:    dist.Asset,
		Subject:  distID.String(),
		Amount:   remainder.String(),
	})
	return remainder, nil
}

// GetDistribution returns one distribution as stored.
func (e *Engine) GetDistribution(ctx context.Context, distID id.DistributionID) (models.Distribution, error) {
	return e.loadDistribution(ctx, distID)
}

// ClaimOf returns the holder's claim on a distribution, if any.
func (e *Engine) ClaimOf(ctx context.Context, distID id.DistributionID, holder id.AccountID) (models.Claim, error) {
	claim, err := e.store.GetClaim(ctx, distID, holder)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Claim{}, dErrors.New(dErrors.CodeNotFound, "no claim recorded")
	}
	if err != nil {
		return models.Claim{}, dErrors.Wrap(err, dErrors.CodeInternal, "load claim")
	}
	return claim, nil
}

func (e *Engine) loadDistribution(ctx context.Context, distID id.DistributionID) (models.Distribution, error) {
	dist, err := e.store.Get(ctx, distID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Distribution{}, dErrors.Newf(dErrors.CodeNotFound, "distribution %s not found", distID)
	}
	if err != nil {
		return models.Distribution{}, dErrors.Wrap(err, dErrors.CodeInternal, "load distribution")
	}
	return dist, nil
}

// claimAmount computes totalAmount * balance / supply with floor division.
func claimAmount(total decimal.Decimal, balance, supply int64) decimal.Decimal {
	if balance <= 0 {
		return decimal.Zero
	}
	return total.
		Mul(decimal.NewFromInt(balance)).
		Div(decimal.NewFromInt(supply)).
		Floor()
}

func translatePaymentErr(err error) error {
	if errors.Is(err, sentinel.ErrInsufficient) {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "payment cannot be funded")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "payment leg failed")
}
