// Package service implements the order book engine. There is no automatic
// matching: every fill is an explicit taker action naming a target order.
// The engine escrows the maker's side at creation, settles fills leg by leg
// with compensation on failure, and evaluates expiry lazily against each
// call's clock.
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
	orderbookmetrics "tranche/internal/orderbook/metrics"
	"tranche/internal/orderbook/models"
	"tranche/internal/paymentasset"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/requestcontext"
)

var tracer = otel.Tracer("tranche/internal/orderbook")

const maxFeeBps = 1_000

var bpsDivisor = decimal.NewFromInt(10_000)

// Store persists orders and the append-only trade log. Fill accounting and
// status transitions are store-atomic: ReserveFill allocates a slice of the
// remainder or fails, ReleaseFill gives a slice back after a failed
// settlement, and CloseOrder moves ACTIVE to a terminal status exactly once.
type Store interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, orderID id.OrderID) (models.Order, error)
	ReserveFill(ctx context.Context, orderID id.OrderID, fillAmount int64) (models.Order, error)
	ReleaseFill(ctx context.Context, orderID id.OrderID, fillAmount int64) (models.Order, error)
	CloseOrder(ctx context.Context, orderID id.OrderID, status models.Status) (models.Order, error)
	AppendTrade(ctx context.Context, trade models.Trade) error
	ListOrders(ctx context.Context, maker id.AccountID, asset id.AssetID) ([]models.Order, error)
	TradesForOrder(ctx context.Context, orderID id.OrderID) ([]models.Trade, error)
}

// Ledger is the slice of the ledger service the engine uses to escrow and
// deliver asset units. Calls run with the engine's own account as the
// principal, so the engine must hold the transfer_agent role.
type Ledger interface {
	Transfer(ctx context.Context, asset id.AssetID, to id.AccountID, amount int64) error
	TransferFrom(ctx context.Context, asset id.AssetID, from, to id.AccountID, amount int64) error
	BalanceOf(ctx context.Context, asset id.AssetID, account id.AccountID) (int64, error)
}

// AssetDirectory is the asset allow-list, answered by the registry.
type AssetDirectory interface {
	IsTradable(ctx context.Context, assetID id.AssetID) (bool, error)
}

// FeeConfig is validated once at configuration time; fills never re-check
// the bounds.
type FeeConfig struct {
	MakerFeeBps int64
	TakerFeeBps int64
	Recipient   id.AccountID
}

func (c FeeConfig) validate() error {
	if c.MakerFeeBps < 0 || c.MakerFeeBps > maxFeeBps {
		return dErrors.Newf(dErrors.CodeInvalidInput, "maker fee must be between 0 and %d basis points", maxFeeBps)
	}
	if c.TakerFeeBps < 0 || c.TakerFeeBps > maxFeeBps {
		return dErrors.Newf(dErrors.CodeInvalidInput, "taker fee must be between 0 and %d basis points", maxFeeBps)
	}
	if (c.MakerFeeBps > 0 || c.TakerFeeBps > 0) && c.Recipient.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "fee recipient is required when fees are set")
	}
	return nil
}

type Engine struct {
	store    Store
	ledger   Ledger
	payments paymentasset.Provider
	assets   AssetDirectory
	authz    authz.Authorizer

	account      id.AccountID
	fees         FeeConfig
	paymentAllow map[id.AssetID]bool

	logger  *slog.Logger
	metrics *orderbookmetrics.Metrics
	audit   *audit.Emitter
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *orderbookmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAudit(a *audit.Emitter) Option {
	return func(e *Engine) { e.audit = a }
}

// New builds the engine. account is the engine's escrow principal;
// paymentAssets is the allow-list of settlement currencies.
func New(store Store, ledger Ledger, payments paymentasset.Provider, assets AssetDirectory, authorizer authz.Authorizer, account id.AccountID, fees FeeConfig, paymentAssets []id.AssetID, opts ...Option) (*Engine, error) {
	if err := fees.validate(); err != nil {
		return nil, err
	}
	if account.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "engine escrow account is required")
	}
	allow := make(map[id.AssetID]bool, len(paymentAssets))
	for _, p := range paymentAssets {
		allow[p] = true
	}
	e := &Engine{
		store:        store,
		ledger:       ledger,
		payments:     payments,
		assets:       assets,
		authz:        authorizer,
		account:      account,
		fees:         fees,
		paymentAllow: allow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// escrowCtx swaps the calling principal for the engine's own account so
// ledger legs run under the engine's transfer_agent capability.
func (e *Engine) escrowCtx(ctx context.Context) context.Context {
	return requestcontext.WithPrincipal(ctx, e.account)
}

// CreateOrder places a resting limit order and escrows the maker's side:
// asset units for a sell, price times amount of payment asset for a buy.
func (e *Engine) CreateOrder(ctx context.Context, side models.Side, asset, paymentAsset id.AssetID, price decimal.Decimal, amount int64, expiry time.Time) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "orderbook.CreateOrder",
		trace.WithAttributes(attribute.String("asset", asset.String()), attribute.String("side", string(side))))
	defer span.End()

	maker := requestcontext.Principal(ctx)
	if maker.IsZero() {
		return models.Order{}, dErrors.New(dErrors.CodeForbidden, "caller is not authenticated")
	}
	now := requestcontext.Now(ctx)

	if side != models.SideBuy && side != models.SideSell {
		return models.Order{}, dErrors.New(dErrors.CodeInvalidInput, "side must be BUY or SELL")
	}
	if !price.IsPositive() {
		return models.Order{}, dErrors.New(dErrors.CodeInvalidInput, "price must be positive")
	}
	if amount <= 0 {
		return models.Order{}, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if !expiry.IsZero() && !expiry.After(now) {
		return models.Order{}, dErrors.New(dErrors.CodeInvalidInput, "expiry must be in the future")
	}
	tradable, err := e.assets.IsTradable(ctx, asset)
	if err != nil {
		return models.Order{}, err
	}
	if !tradable {
		return models.Order{}, dErrors.Newf(dErrors.CodeInvalidInput, "asset %s is not tradable", asset)
	}
	if !e.paymentAllow[paymentAsset] {
		return models.Order{}, dErrors.Newf(dErrors.CodeInvalidInput, "payment asset %s is not allowed", paymentAsset)
	}

	// Fund the escrow before recording anything.
	switch side {
	case models.SideSell:
		if err := e.ledger.TransferFrom(e.escrowCtx(ctx), asset, maker, e.account, amount); err != nil {
			return models.Order{}, translateEscrowErr(err)
		}
	case models.SideBuy:
		cost := price.Mul(decimal.NewFromInt(amount))
		if err := e.payments.TransferFrom(ctx, paymentAsset, e.account, maker, e.account, cost); err != nil {
			return models.Order{}, translateEscrowErr(err)
		}
	}

	order := models.Order{
		ID:           id.OrderID(uuid.New()),
		Maker:        maker,
		Asset:        asset,
		PaymentAsset: paymentAsset,
		Side:         side,
		Price:        price,
		Amount:       amount,
		Expiry:       expiry,
		Status:       models.StatusActive,
		CreatedAt:    now,
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		e.refundEscrow(ctx, order, amount)
		return models.Order{}, dErrors.Wrap(err, dErrors.CodeInternal, "record order")
	}

	if e.metrics != nil {
		e.metrics.IncrementOrdersCreated(string(side))
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionOrderCreated,
		Actor:    maker,
		Asset:    asset,
		Subject:  order.ID.String(),
		Amount:   order.Price.String() + "x" + decimal.NewFromInt(amount).String(),
	})
	if e.logger != nil {
		e.logger.InfoContext(ctx, "order created",
			"order", order.ID, "side", side, "asset", asset, "price", price, "amount", amount)
	}
	return order, nil
}

// FillOrder executes an explicit taker fill against one order. fillAmount
// zero means fill the whole remainder. An order whose expiry has passed
// transitions to EXPIRED, its escrow is refunded, and the call fails.
func (e *Engine) FillOrder(ctx context.Context, orderID id.OrderID, fillAmount int64) (models.Trade, error) {
	ctx, span := tracer.Start(ctx, "orderbook.FillOrder",
		trace.WithAttributes(attribute.String("order", orderID.String())))
	defer span.End()

	taker := requestcontext.Principal(ctx)
	if taker.IsZero() {
		return models.Trade{}, dErrors.New(dErrors.CodeForbidden, "caller is not authenticated")
	}
	now := requestcontext.Now(ctx)

	order, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Trade{}, dErrors.Newf(dErrors.CodeNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return models.Trade{}, dErrors.Wrap(err, dErrors.CodeInternal, "load order")
	}
	if order.Status != models.StatusActive {
		return models.Trade{}, dErrors.Newf(dErrors.CodeInvalidState, "order %s is %s", orderID, order.Status)
	}
	if order.ExpiredAt(now) {
		if err := e.expireOrder(ctx, order); err != nil {
			return models.Trade{}, err
		}
		return models.Trade{}, dErrors.Newf(dErrors.CodeInvalidState, "order %s has expired", orderID)
	}

	remaining := order.Remaining()
	if fillAmount == 0 {
		fillAmount = remaining
	}
	if fillAmount < 0 {
		return models.Trade{}, dErrors.New(dErrors.CodeInvalidInput, "fill amount must not be negative")
	}
	if fillAmount > remaining {
		return models.Trade{}, dErrors.Newf(dErrors.CodeInvalidInput, "fill amount %d exceeds remaining %d", fillAmount, remaining)
	}

	// Reserve the slice before any money moves so concurrent fills cannot
	// allocate the same remainder. A failed settlement hands it back.
	reserved, err := e.store.ReserveFill(ctx, orderID, fillAmount)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return models.Trade{}, dErrors.Newf(dErrors.CodeNotFound, "order %s not found", orderID)
	case errors.Is(err, sentinel.ErrInvalidState):
		return models.Trade{}, dErrors.Newf(dErrors.CodeInvalidState, "order %s is no longer active", orderID)
	case errors.Is(err, sentinel.ErrInsufficient):
		return models.Trade{}, dErrors.Newf(dErrors.CodeInvalidInput, "fill amount %d exceeds remaining %d", fillAmount, remaining)
	case err != nil:
		return models.Trade{}, dErrors.Wrap(err, dErrors.CodeInternal, "reserve fill")
	}
	order = reserved

	payment := order.Price.Mul(decimal.NewFromInt(fillAmount))
	makerFee := feeOf(payment, e.fees.MakerFeeBps)
	takerFee := feeOf(payment, e.fees.TakerFeeBps)

	switch order.Side {
	case models.SideSell:
		err = e.settleSellFill(ctx, order, taker, fillAmount, payment, makerFee, takerFee)
	case models.SideBuy:
		// The buy escrow holds exactly price times amount, so only the
		// taker side carries a fee on buy fills.
		makerFee = decimal.Zero
		err = e.settleBuyFill(ctx, order, taker, fillAmount, payment, takerFee)
	}
	if err != nil {
		e.releaseFill(ctx, order, fillAmount)
		return models.Trade{}, err
	}

	if order.Status == models.StatusFilled && e.metrics != nil {
		e.metrics.IncrementTransition(string(models.StatusFilled))
	}

	trade := models.Trade{
		ID:            id.TradeID(uuid.New()),
		OrderID:       order.ID,
		Maker:         order.Maker,
		Taker:         taker,
		Asset:         order.Asset,
		PaymentAsset:  order.PaymentAsset,
		Side:          order.Side,
		Price:         order.Price,
		Amount:        fillAmount,
		PaymentAmount: payment,
		MakerFee:      makerFee,
		TakerFee:      takerFee,
		ExecutedAt:    now,
	}
	if err := e.store.AppendTrade(ctx, trade); err != nil {
		return models.Trade{}, dErrors.Wrap(err, dErrors.CodeInternal, "record trade")
	}

	if e.metrics != nil {
		e.metrics.ObserveTrade(fillAmount)
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionOrderFilled,
		Actor:    taker,
		Asset:    order.Asset,
		Subject:  order.ID.String(),
		Amount:   payment.String(),
	})
	if e.logger != nil {
		e.logger.InfoContext(ctx, "order filled",
			"order", order.ID, "taker", taker, "amount", fillAmount,
			"payment", payment, "status", order.Status)
	}
	return trade, nil
}

// settleSellFill moves the legs of a fill against a sell order: the taker
// pays payment plus takerFee, the maker receives payment minus makerFee,
// fees route to the fee recipient, and escrowed units go to the taker.
// Legs already executed are compensated when a later leg fails.
func (e *Engine) settleSellFill(ctx context.Context, order models.Order, taker id.AccountID, fillAmount int64, payment, makerFee, takerFee decimal.Decimal) error {
	var undo undoStack
	defer undo.runOnFailure(ctx, e.logger)

	total := payment.Add(takerFee)
	if err := e.payments.TransferFrom(ctx, order.PaymentAsset, e.account, taker, e.account, total); err != nil {
		return translateEscrowErr(err)
	}
	undo.push(func(ctx context.Context) error {
		return e.payments.Transfer(ctx, order.PaymentAsset, e.account, taker, total)
	})

	if err := e.payments.Transfer(ctx, order.PaymentAsset, e.account, order.Maker, payment.Sub(makerFee)); err != nil {
		return translateEscrowErr(err)
	}
	undo.push(func(ctx context.Context) error {
		return e.payments.Transfer(ctx, order.PaymentAsset, order.Maker, e.account, payment.Sub(makerFee))
	})

	if fee := makerFee.Add(takerFee); fee.IsPositive() {
		if err := e.payments.Transfer(ctx, order.PaymentAsset, e.account, e.fees.Recipient, fee); err != nil {
			return translateEscrowErr(err)
		}
		undo.push(func(ctx context.Context) error {
			return e.payments.Transfer(ctx, order.PaymentAsset, e.fees.Recipient, e.account, fee)
		})
	}

	if err := e.ledger.Transfer(e.escrowCtx(ctx), order.Asset, taker, fillAmount); err != nil {
		return err
	}

	undo.commit()
	return nil
}

// settleBuyFill moves the legs of a fill against a buy order: the taker
// delivers units to the maker and receives payment minus takerFee from the
// escrow; the taker fee routes to the fee recipient.
func (e *Engine) settleBuyFill(ctx context.Context, order models.Order, taker id.AccountID, fillAmount int64, payment, takerFee decimal.Decimal) error {
	var undo undoStack
	defer undo.runOnFailure(ctx, e.logger)

	if err := e.ledger.TransferFrom(e.escrowCtx(ctx), order.Asset, taker, order.Maker, fillAmount); err != nil {
		return err
	}
	undo.push(func(ctx context.Context) error {
		return e.ledger.TransferFrom(e.escrowCtx(ctx), order.Asset, order.Maker, taker, fillAmount)
	})

	if err := e.payments.Transfer(ctx, order.PaymentAsset, e.account, taker, payment.Sub(takerFee)); err != nil {
		return translateEscrowErr(err)
	}
	undo.push(func(ctx context.Context) error {
		return e.payments.Transfer(ctx, order.PaymentAsset, taker, e.account, payment.Sub(takerFee))
	})

	if takerFee.IsPositive() {
		if err := e.payments.Transfer(ctx, order.PaymentAsset, e.account, e.fees.Recipient, takerFee); err != nil {
			return translateEscrowErr(err)
		}
	}

	undo.commit()
	return nil
}

// CancelOrder refunds the unfilled escrow and closes the order. Only the
// maker or an operator may cancel, and only while the order is ACTIVE.
func (e *Engine) CancelOrder(ctx context.Context, orderID id.OrderID) error {
	ctx, span := tracer.Start(ctx, "orderbook.CancelOrder",
		trace.WithAttributes(attribute.String("order", orderID.String())))
	defer span.End()

	principal := requestcontext.Principal(ctx)
	if principal.IsZero() {
		return dErrors.New(dErrors.CodeForbidden, "caller is not authenticated")
	}

	order, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load order")
	}
	if principal != order.Maker {
		if err := e.authz.Require(ctx, principal, authz.RoleOperator); err != nil {
			return err
		}
	}
	if order.Status != models.StatusActive {
		return dErrors.Newf(dErrors.CodeInvalidState, "order %s is %s", orderID, order.Status)
	}
	if order.ExpiredAt(requestcontext.Now(ctx)) {
		if err := e.expireOrder(ctx, order); err != nil {
			return err
		}
		return dErrors.Newf(dErrors.CodeInvalidState, "order %s has expired", orderID)
	}

	// Close before refunding: once the order leaves ACTIVE no fill can
	// reserve more of the remainder, so the snapshot's remainder is exactly
	// the escrow still owed to the maker.
	closed, err := e.store.CloseOrder(ctx, orderID, models.StatusCancelled)
	if errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.Newf(dErrors.CodeInvalidState, "order %s is no longer active", orderID)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "close order")
	}
	if err := e.refundEscrow(ctx, closed, closed.Remaining()); err != nil {
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "cancel escrow refund failed", "order", orderID, "error", err)
		}
		return err
	}

	if e.metrics != nil {
		e.metrics.IncrementTransition(string(models.StatusCancelled))
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionOrderCancelled,
		Actor:    principal,
		Asset:    order.Asset,
		Subject:  order.ID.String(),
	})
	return nil
}

// GetOrder returns one order as stored. Expiry is not applied here; reads
// never mutate.
func (e *Engine) GetOrder(ctx context.Context, orderID id.OrderID) (models.Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Order{}, dErrors.Newf(dErrors.CodeNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return models.Order{}, dErrors.Wrap(err, dErrors.CodeInternal, "load order")
	}
	return order, nil
}

// ListOrders returns orders filtered by maker and/or asset.
func (e *Engine) ListOrders(ctx context.Context, maker id.AccountID, asset id.AssetID) ([]models.Order, error) {
	orders, err := e.store.ListOrders(ctx, maker, asset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list orders")
	}
	return orders, nil
}

// TradesForOrder returns the fill history of one order.
func (e *Engine) TradesForOrder(ctx context.Context, orderID id.OrderID) ([]models.Trade, error) {
	trades, err := e.store.TradesForOrder(ctx, orderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list trades")
	}
	return trades, nil
}

// expireOrder transitions a lapsed order to EXPIRED and refunds the
// unfilled escrow so funds never strand on a dead order. The transition is
// store-atomic; losing the race to another closer means the escrow is
// already spoken for.
func (e *Engine) expireOrder(ctx context.Context, order models.Order) error {
	closed, err := e.store.CloseOrder(ctx, order.ID, models.StatusExpired)
	if errors.Is(err, sentinel.ErrInvalidState) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "close order")
	}
	if err := e.refundEscrow(ctx, closed, closed.Remaining()); err != nil {
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "expiry escrow refund failed", "order", order.ID, "error", err)
		}
		return err
	}
	order = closed
	if e.metrics != nil {
		e.metrics.IncrementTransition(string(models.StatusExpired))
	}
	e.audit.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   audit.ActionOrderExpired,
		Actor:    order.Maker,
		Asset:    order.Asset,
		Subject:  order.ID.String(),
	})
	return nil
}

// releaseFill hands a reservation back after a failed settlement. When the
// order was closed while the reservation was in flight, the closer's refund
// skipped the reserved slice, so its escrow goes back to the maker here.
func (e *Engine) releaseFill(ctx context.Context, order models.Order, fillAmount int64) {
	released, err := e.store.ReleaseFill(ctx, order.ID, fillAmount)
	if err != nil {
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "fill release failed", "order", order.ID, "error", err)
		}
		return
	}
	if released.Status == models.StatusActive {
		return
	}
	if err := e.refundEscrow(ctx, released, fillAmount); err != nil && e.logger != nil {
		e.logger.ErrorContext(ctx, "released escrow refund failed", "order", order.ID, "error", err)
	}
}

// refundEscrow returns the escrow backing `units` unfilled order units to
// the maker.
func (e *Engine) refundEscrow(ctx context.Context, order models.Order, units int64) error {
	if units <= 0 {
		return nil
	}
	switch order.Side {
	case models.SideSell:
		return e.ledger.Transfer(e.escrowCtx(ctx), order.Asset, order.Maker, units)
	case models.SideBuy:
		refund := order.Price.Mul(decimal.NewFromInt(units))
		if err := e.payments.Transfer(ctx, order.PaymentAsset, e.account, order.Maker, refund); err != nil {
			return translateEscrowErr(err)
		}
	}
	return nil
}

func feeOf(payment decimal.Decimal, bps int64) decimal.Decimal {
	if bps == 0 {
		return decimal.Zero
	}
	return payment.Mul(decimal.NewFromInt(bps)).Div(bpsDivisor)
}

func translateEscrowErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrInsufficient) {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "escrow cannot be funded")
	}
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "payment leg failed")
}

// undoStack compensates already-executed settlement legs when a later leg
// fails. commit() disarms it.
type undoStack struct {
	undos     []func(context.Context) error
	committed bool
}

func (u *undoStack) push(fn func(context.Context) error) {
	u.undos = append(u.undos, fn)
}

func (u *undoStack) commit() {
	u.committed = true
}

func (u *undoStack) runOnFailure(ctx context.Context, logger *slog.Logger) {
	if u.committed {
		return
	}
	for i := len(u.undos) - 1; i >= 0; i-- {
		if err := u.undos[i](ctx); err != nil && logger != nil {
			logger.ErrorContext(ctx, "settlement compensation failed", "error", err)
		}
	}
}
