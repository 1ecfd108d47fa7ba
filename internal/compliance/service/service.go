// Package service implements the compliance engine: the rule evaluator the
// ledger consults on every movement.
package service

import (
	"context"
	"log/slog"

	"tranche/internal/audit"
	"tranche/internal/authz"
	compliancemetrics "tranche/internal/compliance/metrics"
	"tranche/internal/compliance/models"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/requestcontext"
)

// ConfigStore persists per-asset compliance configuration.
type ConfigStore interface {
	Config(ctx context.Context, asset id.AssetID) (models.Config, error)
	PutConfig(ctx context.Context, asset id.AssetID, cfg models.Config) error
	Profile(ctx context.Context, asset id.AssetID, account id.AccountID) (models.AccountProfile, error)
	PutProfile(ctx context.Context, asset id.AssetID, account id.AccountID, p models.AccountProfile) error
	IsSanctioned(ctx context.Context, asset id.AssetID, account id.AccountID) (bool, error)
	SetSanctioned(ctx context.Context, asset id.AssetID, account id.AccountID, sanctioned bool) error
	Limits(ctx context.Context, asset id.AssetID, account id.AccountID) (models.TransferLimits, error)
	PutLimits(ctx context.Context, asset id.AssetID, account id.AccountID, l models.TransferLimits) error
}

// WindowStore persists rolling-window usage.
type WindowStore interface {
	Usage(ctx context.Context, asset id.AssetID, account id.AccountID) (models.WindowUsage, error)
	Put(ctx context.Context, asset id.AssetID, account id.AccountID, u models.WindowUsage) error
}

// BalanceReader is the read-only ledger view needed for holding and supply
// checks. Implemented by the ledger store; declared here to keep the
// dependency arrow pointing ledger -> compliance.
type BalanceReader interface {
	Balance(ctx context.Context, asset id.AssetID, account id.AccountID) (int64, error)
	TotalSupply(ctx context.Context, asset id.AssetID) (int64, error)
}

// Engine evaluates transfer eligibility and tracks rolling usage.
type Engine struct {
	store    ConfigStore
	windows  WindowStore
	balances BalanceReader
	authz    authz.Authorizer
	logger   *slog.Logger
	metrics  *compliancemetrics.Metrics
	audit    *audit.Emitter
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *compliancemetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAudit(a *audit.Emitter) Option {
	return func(e *Engine) { e.audit = a }
}

func New(store ConfigStore, windows WindowStore, balances BalanceReader, authorizer authz.Authorizer, opts ...Option) *Engine {
	e := &Engine{store: store, windows: windows, balances: balances, authz: authorizer}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CanTransfer decides whether a movement is allowed. It mutates nothing:
// window resets are computed against the request clock but not persisted,
// so a denied call leaves usage untouched.
//
// from == ZeroAccount marks a mint, to == ZeroAccount a burn.
//
// Returns nil when allowed, or a CodeComplianceViolation error naming the
// first rule that failed, in fixed evaluation order: pause, sanctions,
// burn short-circuit, supply cap, minimum investment, maximum holding,
// rolling limits.
func (e *Engine) CanTransfer(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error {
	if e.metrics != nil {
		e.metrics.IncrementChecks()
	}

	cfg, err := e.store.Config(ctx, asset)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load compliance config")
	}
	if cfg.Paused {
		return e.reject(ctx, asset, from, "paused", "transfers are paused")
	}

	for _, party := range []id.AccountID{from, to} {
		if party.IsZero() {
			continue
		}
		sanctioned, err := e.store.IsSanctioned(ctx, asset, party)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "sanction lookup")
		}
		if sanctioned {
			return e.reject(ctx, asset, party, "sanctioned", "party is sanctioned")
		}
	}

	// Burns are allowed once the sanction check passes.
	if to.IsZero() {
		return nil
	}

	recipient, err := e.store.Profile(ctx, asset, to)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "recipient profile lookup")
	}

	isMint := from.IsZero()
	if isMint && cfg.SupplyCap > 0 {
		supply, err := e.balances.TotalSupply(ctx, asset)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "supply lookup")
		}
		if supply+amount > cfg.SupplyCap {
			return e.reject(ctx, asset, to, "supply_cap", "mint exceeds supply cap")
		}
	}

	if !isMint && !recipient.Whitelisted {
		minInvestment := cfg.MinInvestment
		if recipient.MinInvestment > 0 {
			minInvestment = recipient.MinInvestment
		}
		if minInvestment > 0 && amount < minInvestment {
			return e.reject(ctx, asset, to, "min_investment", "amount below minimum investment")
		}
	}

	maxHolding := cfg.MaxHolding
	if recipient.MaxHolding > 0 {
		maxHolding = recipient.MaxHolding
	}
	if maxHolding > 0 {
		balance, err := e.balances.Balance(ctx, asset, to)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recipient balance lookup")
		}
		if balance+amount > maxHolding {
			return e.reject(ctx, asset, to, "max_holding", "recipient would exceed maximum holding")
		}
	}

	if !isMint {
		sender, err := e.store.Profile(ctx, asset, from)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "sender profile lookup")
		}
		if !sender.Whitelisted {
			if err := e.checkWindows(ctx, asset, from, amount); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *Engine) checkWindows(ctx context.Context, asset id.AssetID, from id.AccountID, amount int64) error {
	limits, err := e.store.Limits(ctx, asset, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "limits lookup")
	}
	if limits.Daily == 0 && limits.Monthly == 0 {
		return nil
	}
	usage, err := e.windows.Usage(ctx, asset, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "window usage lookup")
	}
	usage = usage.RolledForward(requestcontext.Now(ctx))
	if usage.WouldExceed(limits, amount) {
		return e.reject(ctx, asset, from, "transfer_limit", "sender over rolling transfer limit")
	}
	return nil
}

// Transferred is the post-movement hook. For a non-mint movement it rolls
// the sender's windows forward and accrues the amount. The ledger calls
// this only after the movement has committed.
func (e *Engine) Transferred(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error {
	if from.IsZero() {
		return nil
	}
	usage, err := e.windows.Usage(ctx, asset, from)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "window usage lookup")
	}
	usage = usage.RolledForward(requestcontext.Now(ctx))
	usage.DailyUsed += amount
	usage.MonthlyUsed += amount
	if err := e.windows.Put(ctx, asset, from, usage); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "window usage update")
	}
	return nil
}

func (e *Engine) reject(ctx context.Context, asset id.AssetID, subject id.AccountID, reason, msg string) error {
	if e.metrics != nil {
		e.metrics.IncrementRejections(reason)
	}
	if e.logger != nil {
		e.logger.DebugContext(ctx, "compliance rejection",
			"asset", asset,
			"subject", subject,
			"reason", reason,
		)
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   audit.ActionTransferBlocked,
		Asset:    asset,
		Subject:  subject.String(),
		Reason:   reason,
	})
	return dErrors.New(dErrors.CodeComplianceViolation, msg)
}
