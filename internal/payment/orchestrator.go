// Package payment drives a Payment through the external gateway and settles
// it together with the record it pays for.
//
// A payment moves initiated -> paid or initiated -> failed exactly once.
// Every transition is a conditional update on status = 'initiated' made in
// the same transaction as the linked record's update, so concurrent
// callback deliveries cannot settle twice.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"confdesk/internal/clock"
	"confdesk/internal/gateway/signature"
	"confdesk/internal/model"
)

// Gateway is the part of the payment provider the orchestrator uses.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (model.GatewayOrder, error)
	FetchPayments(ctx context.Context, orderID string) ([]model.GatewayPayment, error)
}

// Transition is a move out of initiated.
type Transition struct {
	PaymentID        string
	To               model.PaymentStatus
	GatewayPaymentID string
	Signature        string
	Reason           string
}

type Store interface {
	// WithTx runs fn in one transaction carried by the context it passes.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreatePayment(ctx context.Context, p *model.Payment) error
	// SetGatewayOrder binds orderID to a payment that is still initiated and
	// returns model.ErrConflict otherwise.
	SetGatewayOrder(ctx context.Context, paymentID, orderID string) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*model.Payment, error)
	// TransitionPayment applies t only while the payment is still initiated
	// and reports whether it did.
	TransitionPayment(ctx context.Context, t Transition) (bool, error)
	ListStalePayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
	// ListOpenPayments returns the initiated payments for one record.
	ListOpenPayments(ctx context.Context, category model.PaymentCategory, recordID string) ([]model.Payment, error)
	// RedeemDiscount increments the code's redemption count only while it is
	// below the limit and reports whether it did.
	RedeemDiscount(ctx context.Context, codeID string) (bool, error)
	MarkDiscountOverflow(ctx context.Context, paymentID string) error
}

// Settlable is a domain record a payment can pay for.
type Settlable interface {
	Category() model.PaymentCategory
	RecordID() string
	IsPaid() bool
	// MarkPaid finalizes the record. It runs inside the settlement
	// transaction.
	MarkPaid(ctx context.Context, p model.Payment) error
	// ReleaseQuota gives back whatever capacity the record holds.
	ReleaseQuota(ctx context.Context) error
	// Reacquire takes back capacity an earlier failure released. It returns
	// model.ErrQuotaExhausted when that capacity is gone.
	Reacquire(ctx context.Context) error
}

type Resolver interface {
	Resolve(ctx context.Context, category model.PaymentCategory, recordID string) (Settlable, error)
}

type Notifier interface {
	NotifySettled(ctx context.Context, p model.Payment) error
}

// Scheduler arranges a later Reconcile call for a payment.
type Scheduler interface {
	ScheduleReconcile(ctx context.Context, paymentID string, after time.Duration) error
}

type Config struct {
	Secret           string
	Currency         string
	GatewayTimeout   time.Duration
	GatewayAttempts  int
	RetryBaseDelay   time.Duration
	ReconcileAfter   time.Duration
	SweepConcurrency int
	NotifyTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = "INR"
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 10 * time.Second
	}
	if c.GatewayAttempts <= 0 {
		c.GatewayAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
	if c.ReconcileAfter <= 0 {
		c.ReconcileAfter = 30 * time.Minute
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = 4
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 30 * time.Second
	}
	return c
}

type Orchestrator struct {
	cfg       Config
	store     Store
	gateway   Gateway
	resolver  Resolver
	notifier  Notifier
	scheduler Scheduler
	clock     clock.Clock
	log       *zerolog.Logger
	tracer    trace.Tracer

	notifications sync.WaitGroup
}

type Deps struct {
	Store     Store
	Gateway   Gateway
	Resolver  Resolver
	Notifier  Notifier
	Scheduler Scheduler
	Clock     clock.Clock
	Log       *zerolog.Logger
}

func New(cfg Config, d Deps) *Orchestrator {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Log == nil {
		nop := zerolog.Nop()
		d.Log = &nop
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		store:     d.Store,
		gateway:   d.Gateway,
		resolver:  d.Resolver,
		notifier:  d.Notifier,
		scheduler: d.Scheduler,
		clock:     d.Clock,
		log:       d.Log,
		tracer:    otel.Tracer("confdesk/payment"),
	}
}

type OrderRequest struct {
	UserID         string
	Email          string
	EventID        string
	Category       model.PaymentCategory
	RecordID       string
	Amount         decimal.Decimal
	Currency       string
	DiscountCodeID string
}

// CreateOrder persists an initiated Payment for the record and opens a
// gateway order for it. Nothing is marked paid here. When the gateway
// cannot be reached the payment stays initiated and a *model.GatewayError
// is returned.
//
// A record has at most one initiated payment. Earlier attempts that never
// got a gateway order are failed as superseded; one that did blocks the new
// order with model.ErrPaymentPending until it is verified or reconciled.
func (o *Orchestrator) CreateOrder(ctx context.Context, req OrderRequest) (*model.Payment, error) {
	ctx, span := o.tracer.Start(ctx, "payment.create_order", trace.WithAttributes(
		attribute.String("payment.category", string(req.Category)),
		attribute.String("payment.record_id", req.RecordID),
	))
	defer span.End()

	if !req.Category.Valid() {
		return nil, model.NewValidationError("category", "unknown payment category")
	}
	if !req.Amount.IsPositive() {
		return nil, model.NewValidationError("amount", "must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = o.cfg.Currency
	}
	now := o.clock.Now()
	p := &model.Payment{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		PayerEmail:     req.Email,
		EventID:        req.EventID,
		Category:       req.Category,
		RecordID:       req.RecordID,
		Amount:         req.Amount,
		Currency:       currency,
		Status:         model.PaymentInitiated,
		DiscountCodeID: req.DiscountCodeID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := o.store.WithTx(ctx, func(ctx context.Context) error {
		rec, err := o.resolver.Resolve(ctx, req.Category, req.RecordID)
		if err != nil {
			return err
		}
		if rec.IsPaid() {
			return model.ErrAlreadyPaid
		}
		if err := o.supersede(ctx, req.Category, req.RecordID); err != nil {
			return err
		}
		if err := o.store.CreatePayment(ctx, p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", p.ID))

	order, err := o.createGatewayOrder(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway order failed")
		o.log.Error().Err(err).Str("payment_id", p.ID).Msg("gateway order failed, payment left initiated")
		o.schedule(ctx, p.ID)
		return p, err
	}
	if err := o.store.SetGatewayOrder(ctx, p.ID, order.ID); err != nil {
		return nil, fmt.Errorf("store gateway order: %w", err)
	}
	p.GatewayOrderID = order.ID

	o.log.Info().
		Str("payment_id", p.ID).
		Str("order_id", order.ID).
		Str("category", string(p.Category)).
		Str("record_id", p.RecordID).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("payment order created")
	o.schedule(ctx, p.ID)
	return p, nil
}

// supersede clears the way for a new payment on a record. It runs inside
// the order transaction and leaves the record's capacity in place.
func (o *Orchestrator) supersede(ctx context.Context, category model.PaymentCategory, recordID string) error {
	open, err := o.store.ListOpenPayments(ctx, category, recordID)
	if err != nil {
		return err
	}
	for _, p := range open {
		if p.GatewayOrderID != "" {
			return fmt.Errorf("payment %s: %w", p.ID, model.ErrPaymentPending)
		}
	}
	for _, p := range open {
		if _, err := o.store.TransitionPayment(ctx, Transition{
			PaymentID: p.ID,
			To:        model.PaymentFailed,
			Reason:    model.ReasonSuperseded,
		}); err != nil {
			return err
		}
		o.log.Info().Str("payment_id", p.ID).Str("record_id", recordID).Msg("payment superseded by a newer order")
	}
	return nil
}

func (o *Orchestrator) createGatewayOrder(ctx context.Context, p *model.Payment) (model.GatewayOrder, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.GatewayAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
		order, err := o.gateway.CreateOrder(callCtx, p.Amount, p.Currency, p.ID)
		cancel()
		if err == nil {
			return order, nil
		}
		lastErr = err
		var gerr *model.GatewayError
		if !errors.As(err, &gerr) || !gerr.Retryable() {
			break
		}
		if attempt == o.cfg.GatewayAttempts {
			break
		}
		o.log.Warn().Err(err).Int("attempt", attempt).Str("payment_id", p.ID).Msg("retrying gateway order")
		if err := wait(ctx, o.backoff(attempt)); err != nil {
			return model.GatewayOrder{}, &model.GatewayError{Op: "create order", Err: err}
		}
	}
	var gerr *model.GatewayError
	if errors.As(lastErr, &gerr) {
		return model.GatewayOrder{}, lastErr
	}
	return model.GatewayOrder{}, &model.GatewayError{Op: "create order", Err: lastErr}
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	const maxDelay = 5 * time.Second
	d := o.cfg.RetryBaseDelay << (attempt - 1)
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) schedule(ctx context.Context, paymentID string) {
	if o.scheduler == nil {
		return
	}
	if err := o.scheduler.ScheduleReconcile(ctx, paymentID, o.cfg.ReconcileAfter); err != nil {
		o.log.Warn().Err(err).Str("payment_id", paymentID).Msg("could not schedule reconciliation, sweep will pick it up")
	}
}

// VerifyAndSettle checks the completion signature for orderID and settles
// the payment. A mismatch fails the payment and returns
// model.ErrSignatureMismatch. A payment already in a terminal state is
// returned as is with no side effects.
func (o *Orchestrator) VerifyAndSettle(ctx context.Context, orderID, gatewayPaymentID, sig string) (*model.Payment, error) {
	ctx, span := o.tracer.Start(ctx, "payment.verify", trace.WithAttributes(
		attribute.String("payment.order_id", orderID),
	))
	defer span.End()

	p, err := o.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.id", p.ID))
	if p.Status.Terminal() {
		o.log.Info().Str("payment_id", p.ID).Str("status", string(p.Status)).Msg("duplicate verify, payment already terminal")
		return p, nil
	}

	if !signature.Verify(o.cfg.Secret, orderID, gatewayPaymentID, sig) {
		span.SetStatus(codes.Error, model.ReasonSignatureMismatch)
		o.log.Warn().Str("payment_id", p.ID).Str("order_id", orderID).Msg("signature mismatch")
		failed, err := o.fail(ctx, p, Transition{
			PaymentID:        p.ID,
			To:               model.PaymentFailed,
			GatewayPaymentID: gatewayPaymentID,
			Signature:        sig,
			Reason:           model.ReasonSignatureMismatch,
		})
		if err != nil {
			return nil, err
		}
		if failed.Status == model.PaymentPaid {
			return failed, nil
		}
		return failed, model.ErrSignatureMismatch
	}

	return o.settle(ctx, p, gatewayPaymentID, sig)
}

// settle moves p to paid and finalizes its record in one transaction. The
// record must still be unpaid and hold its capacity; otherwise the captured
// payment is failed and flagged for refund.
func (o *Orchestrator) settle(ctx context.Context, p *model.Payment, gatewayPaymentID, sig string) (*model.Payment, error) {
	ctx, span := o.tracer.Start(ctx, "payment.settle", trace.WithAttributes(attribute.String("payment.id", p.ID)))
	defer span.End()

	var applied bool
	err := o.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := o.store.TransitionPayment(ctx, Transition{
			PaymentID:        p.ID,
			To:               model.PaymentPaid,
			GatewayPaymentID: gatewayPaymentID,
			Signature:        sig,
		})
		if err != nil || !ok {
			return err
		}
		rec, err := o.resolver.Resolve(ctx, p.Category, p.RecordID)
		if err != nil {
			return err
		}
		if rec.IsPaid() {
			return model.ErrAlreadyPaid
		}
		if err := rec.Reacquire(ctx); err != nil {
			return fmt.Errorf("hold capacity for %s %s: %w", p.Category, p.RecordID, err)
		}
		settled := *p
		settled.Status = model.PaymentPaid
		settled.GatewayPaymentID = gatewayPaymentID
		if err := rec.MarkPaid(ctx, settled); err != nil {
			return fmt.Errorf("finalize %s %s: %w", p.Category, p.RecordID, err)
		}
		if p.DiscountCodeID != "" {
			redeemed, err := o.store.RedeemDiscount(ctx, p.DiscountCodeID)
			if err != nil {
				return err
			}
			if !redeemed {
				o.log.Warn().Str("payment_id", p.ID).Str("discount_code_id", p.DiscountCodeID).Msg("discount limit reached before settlement")
				if err := o.store.MarkDiscountOverflow(ctx, p.ID); err != nil {
					return err
				}
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		switch {
		case errors.Is(err, model.ErrAlreadyPaid):
			return o.refuse(ctx, p, gatewayPaymentID, sig, model.ReasonPaidElsewhere, err)
		case errors.Is(err, model.ErrQuotaExhausted):
			return o.refuse(ctx, p, gatewayPaymentID, sig, model.ReasonCapacityLost, err)
		}
		o.log.Error().Err(err).Str("payment_id", p.ID).Msg("settlement failed")
		return nil, err
	}

	out, err := o.store.GetPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if applied {
		o.log.Info().Str("payment_id", p.ID).Str("category", string(p.Category)).Str("record_id", p.RecordID).Msg("payment settled")
		o.notify(*out)
	}
	return out, nil
}

// refuse fails a payment the gateway captured but whose record cannot take
// it. The money has to be refunded by staff.
func (o *Orchestrator) refuse(ctx context.Context, p *model.Payment, gatewayPaymentID, sig, reason string, cause error) (*model.Payment, error) {
	o.log.Error().
		Err(cause).
		Str("payment_id", p.ID).
		Str("gateway_payment_id", gatewayPaymentID).
		Str("reason", reason).
		Msg("captured payment cannot settle, refund required")
	failed, err := o.fail(ctx, p, Transition{
		PaymentID:        p.ID,
		To:               model.PaymentFailed,
		GatewayPaymentID: gatewayPaymentID,
		Signature:        sig,
		Reason:           reason,
	})
	if err != nil {
		return nil, err
	}
	if failed.Status == model.PaymentPaid {
		return failed, nil
	}
	return failed, cause
}

// fail moves p to failed and releases the record's quota in one
// transaction. A record another payment already settled keeps its quota.
func (o *Orchestrator) fail(ctx context.Context, p *model.Payment, t Transition) (*model.Payment, error) {
	var applied bool
	err := o.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := o.store.TransitionPayment(ctx, t)
		if err != nil || !ok {
			return err
		}
		rec, err := o.resolver.Resolve(ctx, p.Category, p.RecordID)
		if err != nil {
			return err
		}
		if !rec.IsPaid() {
			if err := rec.ReleaseQuota(ctx); err != nil {
				return fmt.Errorf("release quota for %s %s: %w", p.Category, p.RecordID, err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		o.log.Error().Err(err).Str("payment_id", p.ID).Msg("failing payment")
		return nil, err
	}
	if applied {
		o.log.Info().Str("payment_id", p.ID).Str("reason", t.Reason).Msg("payment failed")
	}
	return o.store.GetPayment(ctx, p.ID)
}

// Reconcile resolves a payment still initiated by asking the gateway what
// happened to its order: a captured payment settles it, anything else fails
// it with "payment not completed".
func (o *Orchestrator) Reconcile(ctx context.Context, paymentID string) (*model.Payment, error) {
	ctx, span := o.tracer.Start(ctx, "payment.reconcile", trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer span.End()

	p, err := o.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return p, nil
	}

	var captured *model.GatewayPayment
	if p.GatewayOrderID != "" {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
		payments, err := o.gateway.FetchPayments(callCtx, p.GatewayOrderID)
		cancel()
		if err != nil {
			span.RecordError(err)
			o.log.Warn().Err(err).Str("payment_id", p.ID).Msg("reconcile: gateway lookup failed")
			return p, err
		}
		for i := range payments {
			if payments[i].Captured() {
				captured = &payments[i]
				break
			}
		}
	}

	if captured != nil {
		o.log.Info().Str("payment_id", p.ID).Str("gateway_payment_id", captured.ID).Msg("reconcile: gateway shows capture")
		return o.settle(ctx, p, captured.ID, signature.Sign(o.cfg.Secret, p.GatewayOrderID, captured.ID))
	}
	return o.fail(ctx, p, Transition{
		PaymentID: p.ID,
		To:        model.PaymentFailed,
		Reason:    model.ReasonNotCompleted,
	})
}

func (o *Orchestrator) notify(p model.Payment) {
	if o.notifier == nil {
		return
	}
	o.notifications.Add(1)
	go func() {
		defer o.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.NotifyTimeout)
		defer cancel()
		if err := o.notifier.NotifySettled(ctx, p); err != nil {
			o.log.Warn().Err(err).Str("payment_id", p.ID).Msg("settlement notification failed")
		}
	}()
}

// Wait blocks until in-flight notifications have finished.
func (o *Orchestrator) Wait() {
	o.notifications.Wait()
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*model.Payment, error) {
	return o.store.GetPayment(ctx, id)
}

// StaleBefore is the creation cutoff for payments the sweep should look at.
func (o *Orchestrator) StaleBefore() time.Time {
	return o.clock.Now().Add(-o.cfg.ReconcileAfter)
}
