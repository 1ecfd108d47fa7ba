// Package audit captures key domain actions as transport-agnostic events so
// sinks (log, Kafka) can fan out.
package audit

import (
	"context"
	"log/slog"
	"time"

	id "tranche/pkg/domain"
	"tranche/pkg/requestcontext"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance:
	// forced transfers, freezes, sanction changes, compliance rejections.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authorization failures and admin actions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle events: orders, trades,
	// distributions, mints.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic. Amounts are carried as strings so the
// event schema stays stable across unit (int64) and payment (decimal) money.
type Event struct {
	Category  EventCategory `json:"category"`
	Action    Action        `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Actor     id.AccountID  `json:"actor"`
	Asset     id.AssetID    `json:"asset,omitempty"`
	Subject   string        `json:"subject,omitempty"`
	Amount    string        `json:"amount,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// Action names the audited operation.
type Action string

const (
	// Ledger events
	ActionMinted          Action = "units_minted"
	ActionBurned          Action = "units_burned"
	ActionTransferred     Action = "units_transferred"
	ActionForcedTransfer  Action = "forced_transfer"
	ActionWalletFrozen    Action = "wallet_frozen"
	ActionWalletUnfrozen  Action = "wallet_unfrozen"
	ActionTokenFrozen     Action = "token_frozen"
	ActionTokenUnfrozen   Action = "token_unfrozen"
	ActionTransferBlocked Action = "transfer_blocked"

	// Registry events
	ActionAssetCreated     Action = "asset_created"
	ActionAssetDeactivated Action = "asset_deactivated"

	// Compliance config events
	ActionSanctionSet    Action = "sanction_set"
	ActionPauseSet       Action = "pause_set"
	ActionLimitsUpdated  Action = "limits_updated"
	ActionProfileUpdated Action = "account_profile_updated"

	// Order book events
	ActionOrderCreated   Action = "order_created"
	ActionOrderFilled    Action = "order_filled"
	ActionOrderCancelled Action = "order_cancelled"
	ActionOrderExpired   Action = "order_expired"

	// Distribution events
	ActionDistributionCreated   Action = "distribution_created"
	ActionProfitClaimed         Action = "profit_claimed"
	ActionDistributionCancelled Action = "distribution_cancelled"
	ActionUnclaimedRecovered    Action = "unclaimed_recovered"
)

// Publisher delivers events to an external sink. Emit must not block the
// calling operation beyond its own persistence guarantee.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Emitter writes events to the process log and, when configured, forwards
// them to a publisher. Publisher failures are logged, never propagated:
// audit fan-out must not fail a committed ledger movement.
type Emitter struct {
	logger    *slog.Logger
	publisher Publisher
}

func NewEmitter(logger *slog.Logger, publisher Publisher) *Emitter {
	return &Emitter{logger: logger, publisher: publisher}
}

// Emit records the event, stamping timestamp and request ID from context
// when unset.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if e.logger != nil {
		e.logger.InfoContext(ctx, "audit",
			"category", event.Category,
			"action", event.Action,
			"actor", event.Actor,
			"asset", event.Asset,
			"subject", event.Subject,
			"amount", event.Amount,
			"reason", event.Reason,
			"request_id", event.RequestID,
		)
	}
	if e.publisher != nil {
		if err := e.publisher.Emit(ctx, event); err != nil && e.logger != nil {
			e.logger.ErrorContext(ctx, "audit publish failed",
				"action", event.Action,
				"error", err,
			)
		}
	}
}
