package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"tranche/internal/audit"
	"tranche/internal/authz"
	registrymetrics "tranche/internal/registry/metrics"
	"tranche/internal/registry/models"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/requestcontext"
)

// Store persists asset records in creation order.
type Store interface {
	Create(ctx context.Context, asset models.Asset) error
	Get(ctx context.Context, assetID id.AssetID) (models.Asset, error)
	SetActive(ctx context.Context, assetID id.AssetID, active bool) error
	ListActive(ctx context.Context, offset, limit int) ([]models.Asset, error)
}

// Ledger is the slice of the ledger service the registry drives: creating
// state for a new asset, issuing the initial supply, and freezing on
// deactivation.
type Ledger interface {
	CreateLedger(ctx context.Context, asset id.AssetID) error
	Mint(ctx context.Context, asset id.AssetID, to id.AccountID, amount int64) error
	SetTokenFrozen(ctx context.Context, asset id.AssetID, frozen bool) error
}

type Registry struct {
	store   Store
	ledger  Ledger
	authz   authz.Authorizer
	account id.AccountID

	logger  *slog.Logger
	metrics *registrymetrics.Metrics
	audit   *audit.Emitter
}

type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithAudit(e *audit.Emitter) Option {
	return func(r *Registry) { r.audit = e }
}

// New builds a Registry. account is the registry's own service principal,
// which must hold the transfer_agent role so initial supply can be minted.
func New(store Store, ledger Ledger, authorizer authz.Authorizer, account id.AccountID, opts ...Option) *Registry {
	r := &Registry{store: store, ledger: ledger, authz: authorizer, account: account}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateInvoiceToken validates the invoice terms, creates ledger state for
// the new asset, mints the initial supply to the issuer when requested, and
// records the asset as active. The record is written last so a failed
// initial mint leaves nothing recorded.
func (r *Registry) CreateInvoiceToken(ctx context.Context, assetID id.AssetID, issuer id.AccountID, faceValue, markupBps int64, maturity time.Time, description string, initialSupply int64) (models.Asset, error) {
	principal := requestcontext.Principal(ctx)
	if err := r.authz.Require(ctx, principal, authz.RoleAdmin); err != nil {
		return models.Asset{}, err
	}

	now := requestcontext.Now(ctx)
	if faceValue <= 0 {
		return models.Asset{}, dErrors.New(dErrors.CodeInvalidInput, "face value must be positive")
	}
	if markupBps <= 0 || markupBps > 10_000 {
		return models.Asset{}, dErrors.New(dErrors.CodeInvalidInput, "markup must be between 1 and 10000 basis points")
	}
	if !maturity.After(now) {
		return models.Asset{}, dErrors.New(dErrors.CodeInvalidInput, "maturity must be in the future")
	}
	if initialSupply < 0 {
		return models.Asset{}, dErrors.New(dErrors.CodeInvalidInput, "initial supply must not be negative")
	}
	if _, err := r.store.Get(ctx, assetID); err == nil {
		return models.Asset{}, dErrors.Newf(dErrors.CodeInvalidInput, "asset %s already exists", assetID)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return models.Asset{}, dErrors.Wrap(err, dErrors.CodeInternal, "check asset id")
	}

	if err := r.ledger.CreateLedger(ctx, assetID); err != nil {
		return models.Asset{}, err
	}
	if initialSupply > 0 {
		mintCtx := requestcontext.WithPrincipal(ctx, r.account)
		if err := r.ledger.Mint(mintCtx, assetID, issuer, initialSupply); err != nil {
			return models.Asset{}, err
		}
	}

	asset := models.Asset{
		ID:          assetID,
		Issuer:      issuer,
		FaceValue:   faceValue,
		MarkupBps:   markupBps,
		Maturity:    maturity.UTC(),
		Description: description,
		Active:      true,
		CreatedAt:   now,
	}
	if err := r.store.Create(ctx, asset); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.Asset{}, dErrors.Newf(dErrors.CodeInvalidInput, "asset %s already exists", assetID)
		}
		return models.Asset{}, dErrors.Wrap(err, dErrors.CodeInternal, "record asset")
	}

	if r.metrics != nil {
		r.metrics.IncrementAssetsCreated()
	}
	r.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionAssetCreated,
		Asset:    assetID,
		Actor:    principal,
		Subject:  issuer.String(),
		Amount:   strconv.FormatInt(initialSupply, 10),
	})
	if r.logger != nil {
		r.logger.InfoContext(ctx, "invoice token created",
			"asset", assetID, "issuer", issuer, "face_value", faceValue, "markup_bps", markupBps)
	}
	return asset, nil
}

// DeactivateInvoice marks the asset inactive and freezes its ledger token
// wide. Used at maturity or on default.
func (r *Registry) DeactivateInvoice(ctx context.Context, assetID id.AssetID) error {
	principal := requestcontext.Principal(ctx)
	if err := r.authz.Require(ctx, principal, authz.RoleAdmin); err != nil {
		return err
	}

	asset, err := r.store.Get(ctx, assetID)
	if err != nil {
		return translateLookupErr(err, assetID)
	}
	if !asset.Active {
		return dErrors.Newf(dErrors.CodeInvalidState, "asset %s is already inactive", assetID)
	}

	if err := r.ledger.SetTokenFrozen(ctx, assetID, true); err != nil {
		return err
	}
	if err := r.store.SetActive(ctx, assetID, false); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "deactivate asset")
	}

	if r.metrics != nil {
		r.metrics.IncrementDeactivations()
	}
	r.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionAssetDeactivated,
		Asset:    assetID,
		Actor:    principal,
	})
	return nil
}

// CalculateMaturityValue returns faceValue + faceValue * markupBps / 10000.
func (r *Registry) CalculateMaturityValue(ctx context.Context, assetID id.AssetID) (int64, error) {
	asset, err := r.store.Get(ctx, assetID)
	if err != nil {
		return 0, translateLookupErr(err, assetID)
	}
	value, err := asset.MaturityValue()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "maturity value")
	}
	return value, nil
}

// GetAsset returns the stored record for one asset.
func (r *Registry) GetAsset(ctx context.Context, assetID id.AssetID) (models.Asset, error) {
	asset, err := r.store.Get(ctx, assetID)
	if err != nil {
		return models.Asset{}, translateLookupErr(err, assetID)
	}
	return asset, nil
}

// IsTradable reports whether the asset exists and is active. The order
// book uses this as its asset allow-list.
func (r *Registry) IsTradable(ctx context.Context, assetID id.AssetID) (bool, error) {
	asset, err := r.store.Get(ctx, assetID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "load asset")
	}
	return asset.Active, nil
}

// GetActiveInvoices pages over active assets in creation order.
func (r *Registry) GetActiveInvoices(ctx context.Context, offset, limit int) ([]models.Asset, error) {
	if offset < 0 || limit < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "offset and limit must not be negative")
	}
	assets, err := r.store.ListActive(ctx, offset, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list active assets")
	}
	return assets, nil
}

func translateLookupErr(err error, assetID id.AssetID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "asset %s not found", assetID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "load asset")
}
