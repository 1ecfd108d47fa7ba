package service

import (
	"context"
	"strconv"

	"tranche/internal/audit"
	"tranche/internal/authz"
	"tranche/internal/compliance/models"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/requestcontext"
)

// Configuration operations. Thresholds, profiles, and limits are
// admin-gated; the pause flag and the sanction set belong to the
// compliance officer. All mutations take effect on the next check.

// SetPaused toggles the asset-wide compliance pause.
func (e *Engine) SetPaused(ctx context.Context, asset id.AssetID, paused bool) error {
	principal := requestcontext.Principal(ctx)
	if err := e.authz.Require(ctx, principal, authz.RoleComplianceOfficer); err != nil {
		return err
	}
	cfg, err := e.store.Config(ctx, asset)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load compliance config")
	}
	cfg.Paused = paused
	if err := e.store.PutConfig(ctx, asset, cfg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store compliance config")
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   audit.ActionPauseSet,
		Actor:    principal,
		Asset:    asset,
		Reason:   strconv.FormatBool(paused),
	})
	return nil
}

// SetGlobalThresholds updates the asset-wide minimum investment, maximum
// holding, and supply cap. Zero disables a threshold.
func (e *Engine) SetGlobalThresholds(ctx context.Context, asset id.AssetID, minInvestment, maxHolding, supplyCap int64) error {
	principal := requestcontext.Principal(ctx)
	if err := e.authz.Require(ctx, principal, authz.RoleAdmin); err != nil {
		return err
	}
	if minInvestment < 0 || maxHolding < 0 || supplyCap < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "thresholds must be non-negative")
	}
	cfg, err := e.store.Config(ctx, asset)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load compliance config")
	}
	cfg.MinInvestment = minInvestment
	cfg.MaxHolding = maxHolding
	cfg.SupplyCap = supplyCap
	if err := e.store.PutConfig(ctx, asset, cfg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store compliance config")
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   audit.ActionLimitsUpdated,
		Actor:    principal,
		Asset:    asset,
	})
	return nil
}

// SetProfile replaces an account's per-asset overrides.
func (e *Engine) SetProfile(ctx context.Context, asset id.AssetID, account id.AccountID, profile models.AccountProfile) error {
	principal := requestcontext.Principal(ctx)
	if err := e.authz.Require(ctx, principal, authz.RoleAdmin); err != nil {
		return err
	}
	if account.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "account is required")
	}
	if profile.MinInvestment < 0 || profile.MaxHolding < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "overrides must be non-negative")
	}
	if err := e.store.PutProfile(ctx, asset, account, profile); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store account profile")
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   audit.ActionProfileUpdated,
		Actor:    principal,
		Asset:    asset,
		Subject:  account.String(),
	})
	return nil
}

// SetSanctioned adds or removes an account from the sanction set.
func (e *Engine) SetSanctioned(ctx context.Context, asset id.AssetID, account id.AccountID, sanctioned bool) error {
	principal := requestcontext.Principal(ctx)
	if err := e.authz.Require(ctx, principal, authz.RoleComplianceOfficer); err != nil {
		return err
	}
	if account.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "account is required")
	}
	if err := e.store.SetSanctioned(ctx, asset, account, sanctioned); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store sanction flag")
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   audit.ActionSanctionSet,
		Actor:    principal,
		Asset:    asset,
		Subject:  account.String(),
		Reason:   strconv.FormatBool(sanctioned),
	})
	return nil
}

// SetTransferLimits replaces an account's rolling daily/monthly caps.
// Zero means unrestricted. Existing window usage is kept: tightening a
// limit mid-window counts what was already transferred.
func (e *Engine) SetTransferLimits(ctx context.Context, asset id.AssetID, account id.AccountID, limits models.TransferLimits) error {
	principal := requestcontext.Principal(ctx)
	if err := e.authz.Require(ctx, principal, authz.RoleAdmin); err != nil {
		return err
	}
	if account.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "account is required")
	}
	if limits.Daily < 0 || limits.Monthly < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "limits must be non-negative")
	}
	if err := e.store.PutLimits(ctx, asset, account, limits); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store transfer limits")
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   audit.ActionLimitsUpdated,
		Actor:    principal,
		Asset:    asset,
		Subject:  account.String(),
	})
	return nil
}

// ConfigOf returns the asset-wide configuration.
func (e *Engine) ConfigOf(ctx context.Context, asset id.AssetID) (models.Config, error) {
	cfg, err := e.store.Config(ctx, asset)
	if err != nil {
		return models.Config{}, dErrors.Wrap(err, dErrors.CodeInternal, "load compliance config")
	}
	return cfg, nil
}

// ProfileOf returns an account's per-asset overrides.
func (e *Engine) ProfileOf(ctx context.Context, asset id.AssetID, account id.AccountID) (models.AccountProfile, error) {
	p, err := e.store.Profile(ctx, asset, account)
	if err != nil {
		return models.AccountProfile{}, dErrors.Wrap(err, dErrors.CodeInternal, "load account profile")
	}
	return p, nil
}

// Headroom reports how much the account can still transfer in the current
// windows, as observed at the request clock. Purely informational; the
// authoritative check happens inside CanTransfer.
func (e *Engine) Headroom(ctx context.Context, asset id.AssetID, account id.AccountID) (models.TransferLimits, error) {
	limits, err := e.store.Limits(ctx, asset, account)
	if err != nil {
		return models.TransferLimits{}, dErrors.Wrap(err, dErrors.CodeInternal, "limits lookup")
	}
	usage, err := e.windows.Usage(ctx, asset, account)
	if err != nil {
		return models.TransferLimits{}, dErrors.Wrap(err, dErrors.CodeInternal, "window usage lookup")
	}
	usage = usage.RolledForward(requestcontext.Now(ctx))

	out := models.TransferLimits{}
	if limits.Daily > 0 {
		out.Daily = max(limits.Daily-usage.DailyUsed, 0)
	}
	if limits.Monthly > 0 {
		out.Monthly = max(limits.Monthly-usage.MonthlyUsed, 0)
	}
	return out, nil
}
