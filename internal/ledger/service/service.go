// Package service implements the per-asset ledger: compliance-gated
// movement of fractional ownership units.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"tranche/internal/audit"
	"tranche/internal/authz"
	"tranche/internal/identity"
	ledgermetrics "tranche/internal/ledger/metrics"
	"tranche/internal/ledger/store"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/requestcontext"
)

// Store is the persistence contract for ledger state.
type Store interface {
	EnsureAsset(ctx context.Context, asset id.AssetID) error
	Balance(ctx context.Context, asset id.AssetID, account id.AccountID) (int64, error)
	TotalSupply(ctx context.Context, asset id.AssetID) (int64, error)
	IsTokenFrozen(ctx context.Context, asset id.AssetID) (bool, error)
	SetTokenFrozen(ctx context.Context, asset id.AssetID, frozen bool) error
	IsWalletFrozen(ctx context.Context, asset id.AssetID, account id.AccountID) (bool, error)
	SetWalletFrozen(ctx context.Context, asset id.AssetID, account id.AccountID, frozen bool) error
	IsTransferIDUsed(ctx context.Context, asset id.AssetID, key string) (bool, error)
	Execute(ctx context.Context, asset id.AssetID, fn func(tx store.MovementTx) error) error
	Holders(ctx context.Context, asset id.AssetID) (map[id.AccountID]int64, error)
}

// ComplianceEngine is the rule evaluator consulted on every movement.
type ComplianceEngine interface {
	CanTransfer(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error
	Transferred(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error
}

// Service orchestrates ledger movements.
type Service struct {
	store      Store
	compliance ComplianceEngine
	identity   identity.Verifier
	authz      authz.Authorizer
	logger     *slog.Logger
	metrics    *ledgermetrics.Metrics
	audit      *audit.Emitter
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(a *audit.Emitter) Option {
	return func(s *Service) { s.audit = a }
}

func New(st Store, compliance ComplianceEngine, verifier identity.Verifier, authorizer authz.Authorizer, opts ...Option) *Service {
	s := &Service{store: st, compliance: compliance, identity: verifier, authz: authorizer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLedger initializes empty ledger state for a new asset. Called by
// the registry when an invoice token is created.
func (s *Service) CreateLedger(ctx context.Context, asset id.AssetID) error {
	if err := s.store.EnsureAsset(ctx, asset); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create ledger")
	}
	return nil
}

// Mint issues new units to a verified, unfrozen recipient. Requires the
// transfer-agent capability.
func (s *Service) Mint(ctx context.Context, asset id.AssetID, to id.AccountID, amount int64) error {
	principal := requestcontext.Principal(ctx)
	if err := s.authz.Require(ctx, principal, authz.RoleTransferAgent); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if to.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}
	if err := s.gate(ctx, asset, id.ZeroAccount, to, amount); err != nil {
		return err
	}

	err := s.store.Execute(ctx, asset, func(tx store.MovementTx) error {
		return tx.Move(id.ZeroAccount, to, amount)
	})
	if err != nil {
		return s.translateMovementErr(err)
	}

	s.finishMovement(ctx, asset, id.ZeroAccount, to, amount, "mint", audit.ActionMinted, principal)
	return nil
}

// Burn destroys units held by from. Requires the transfer-agent capability.
// The compliance engine is notified with a zero recipient.
func (s *Service) Burn(ctx context.Context, asset id.AssetID, from id.AccountID, amount int64) error {
	principal := requestcontext.Principal(ctx)
	if err := s.authz.Require(ctx, principal, authz.RoleTransferAgent); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if from.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "holder is required")
	}
	if err := s.compliance.CanTransfer(ctx, asset, from, id.ZeroAccount, amount); err != nil {
		return err
	}

	err := s.store.Execute(ctx, asset, func(tx store.MovementTx) error {
		return tx.Move(from, id.ZeroAccount, amount)
	})
	if err != nil {
		return s.translateMovementErr(err)
	}

	s.finishMovement(ctx, asset, from, id.ZeroAccount, amount, "burn", audit.ActionBurned, principal)
	return nil
}

// Transfer moves units from the calling principal to the recipient.
func (s *Service) Transfer(ctx context.Context, asset id.AssetID, to id.AccountID, amount int64) error {
	from := requestcontext.Principal(ctx)
	if from.IsZero() {
		return dErrors.New(dErrors.CodeForbidden, "caller is not authenticated")
	}
	return s.transfer(ctx, asset, from, to, amount)
}

// TransferFrom is the authorized variant: a transfer agent moves units
// between two third-party accounts. Gating is identical to Transfer.
func (s *Service) TransferFrom(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error {
	principal := requestcontext.Principal(ctx)
	if err := s.authz.Require(ctx, principal, authz.RoleTransferAgent); err != nil {
		return err
	}
	if from.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "sender is required")
	}
	return s.transfer(ctx, asset, from, to, amount)
}

func (s *Service) transfer(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if to.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}
	if err := s.gate(ctx, asset, from, to, amount); err != nil {
		return err
	}

	err := s.store.Execute(ctx, asset, func(tx store.MovementTx) error {
		return tx.Move(from, to, amount)
	})
	if err != nil {
		return s.translateMovementErr(err)
	}

	s.finishMovement(ctx, asset, from, to, amount, "transfer", audit.ActionTransferred, from)
	return nil
}

// ForcedTransfer is the compliance-authority override: it bypasses every
// freeze, identity, and compliance check, but never replays. The supplied
// transferID is consumed atomically with the movement.
func (s *Service) ForcedTransfer(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64, transferID string) error {
	principal := requestcontext.Principal(ctx)
	if err := s.authz.Require(ctx, principal, authz.RoleComplianceOfficer); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "both parties are required")
	}
	if transferID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer id is required")
	}

	err := s.store.Execute(ctx, asset, func(tx store.MovementTx) error {
		if err := tx.ConsumeTransferID(transferID); err != nil {
			return err
		}
		return tx.Move(from, to, amount)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeReplay, "forced-transfer id already consumed")
		}
		return s.translateMovementErr(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementForcedTransfers()
		s.metrics.ObserveMovement("forced_transfer", amount)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "forced transfer executed",
			"asset", asset,
			"from", from,
			"to", to,
			"amount", amount,
			"transfer_id", transferID,
		)
	}
	s.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   audit.ActionForcedTransfer,
		Actor:    principal,
		Asset:    asset,
		Subject:  from.String() + "->" + to.String(),
		Amount:   strconv.FormatInt(amount, 10),
		Reason:   transferID,
	})
	return nil
}

// SetWalletFrozen freezes or unfreezes one account's wallet on the asset.
func (s *Service) SetWalletFrozen(ctx context.Context, asset id.AssetID, account id.AccountID, frozen bool) error {
	principal := requestcontext.Principal(ctx)
	if err := s.authz.Require(ctx, principal, authz.RoleComplianceOfficer); err != nil {
		return err
	}
	if account.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "account is required")
	}
	if err := s.store.SetWalletFrozen(ctx, asset, account, frozen); err != nil {
		return s.translateMovementErr(err)
	}

	action := audit.ActionWalletFrozen
	if !frozen {
		action = audit.ActionWalletUnfrozen
	}
	s.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   action,
		Actor:    principal,
		Asset:    asset,
		Subject:  account.String(),
	})
	return nil
}

// SetTokenFrozen freezes or unfreezes the whole asset. The admin role is
// accepted alongside the officer role because the registry freezes the
// ledger when it deactivates an invoice.
func (s *Service) SetTokenFrozen(ctx context.Context, asset id.AssetID, frozen bool) error {
	principal := requestcontext.Principal(ctx)
	if err := s.authz.Require(ctx, principal, authz.RoleComplianceOfficer); err != nil {
		if adminErr := s.authz.Require(ctx, principal, authz.RoleAdmin); adminErr != nil {
			return err
		}
	}
	if err := s.store.SetTokenFrozen(ctx, asset, frozen); err != nil {
		return s.translateMovementErr(err)
	}

	action := audit.ActionTokenFrozen
	if !frozen {
		action = audit.ActionTokenUnfrozen
	}
	s.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   action,
		Actor:    principal,
		Asset:    asset,
	})
	return nil
}

// BalanceOf returns an account's unit balance.
func (s *Service) BalanceOf(ctx context.Context, asset id.AssetID, account id.AccountID) (int64, error) {
	balance, err := s.store.Balance(ctx, asset, account)
	if err != nil {
		return 0, s.translateMovementErr(err)
	}
	return balance, nil
}

// TotalSupply returns the total issued supply.
func (s *Service) TotalSupply(ctx context.Context, asset id.AssetID) (int64, error) {
	supply, err := s.store.TotalSupply(ctx, asset)
	if err != nil {
		return 0, s.translateMovementErr(err)
	}
	return supply, nil
}

// IsWalletFrozen reports an account's freeze state.
func (s *Service) IsWalletFrozen(ctx context.Context, asset id.AssetID, account id.AccountID) (bool, error) {
	frozen, err := s.store.IsWalletFrozen(ctx, asset, account)
	if err != nil {
		return false, s.translateMovementErr(err)
	}
	return frozen, nil
}

// gate runs the pre-movement checks in the documented order: token frozen,
// wallet frozen (either side), identity (either side), compliance engine.
func (s *Service) gate(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error {
	tokenFrozen, err := s.store.IsTokenFrozen(ctx, asset)
	if err != nil {
		return s.translateMovementErr(err)
	}
	if tokenFrozen {
		return dErrors.New(dErrors.CodeComplianceViolation, "token is frozen")
	}

	for _, party := range []id.AccountID{from, to} {
		if party.IsZero() {
			continue
		}
		frozen, err := s.store.IsWalletFrozen(ctx, asset, party)
		if err != nil {
			return s.translateMovementErr(err)
		}
		if frozen {
			return dErrors.Newf(dErrors.CodeComplianceViolation, "wallet %s is frozen", party)
		}
	}

	for _, party := range []id.AccountID{from, to} {
		if party.IsZero() {
			continue
		}
		verified, err := s.identity.IsVerified(ctx, party)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "identity check failed")
		}
		if !verified {
			return dErrors.Newf(dErrors.CodeComplianceViolation, "account %s has no verified identity", party)
		}
	}

	return s.compliance.CanTransfer(ctx, asset, from, to, amount)
}

// finishMovement notifies compliance and records observability after a
// committed movement. The compliance hook failing is logged, never
// propagated: the balances have already moved.
func (s *Service) finishMovement(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64, kind string, action audit.Action, actor id.AccountID) {
	if err := s.compliance.Transferred(ctx, asset, from, to, amount); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "compliance transferred hook failed",
			"asset", asset,
			"kind", kind,
			"error", err,
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveMovement(kind, amount)
	}
	s.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   action,
		Actor:    actor,
		Asset:    asset,
		Subject:  from.String() + "->" + to.String(),
		Amount:   strconv.FormatInt(amount, 10),
	})
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	return nil
}

func (s *Service) translateMovementErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "asset ledger not found")
	case errors.Is(err, sentinel.ErrInsufficient):
		return dErrors.New(dErrors.CodeInvalidInput, "insufficient balance")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
	}
}
