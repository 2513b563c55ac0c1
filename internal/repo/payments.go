package repo

import (
	"context"
	"fmt"
	"time"

	"confdesk/internal/model"
	"confdesk/internal/payment"
)

const paymentColumns = `
	id, user_id, payer_email, event_id, category, record_id,
	COALESCE(gateway_order_id, ''), COALESCE(gateway_payment_id, ''), COALESCE(gateway_signature, ''),
	amount, currency, status, failure_reason, COALESCE(discount_code_id::text, ''), discount_overflow,
	created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.ID, &p.UserID, &p.PayerEmail, &p.EventID, &p.Category, &p.RecordID,
		&p.GatewayOrderID, &p.GatewayPaymentID, &p.GatewaySignature,
		&p.Amount, &p.Currency, &p.Status, &p.FailureReason, &p.DiscountCodeID, &p.DiscountOverflow,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreatePayment(ctx context.Context, p *model.Payment) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO payments (id, user_id, payer_email, event_id, category, record_id, amount, currency, status,
		                      discount_code_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.UserID, p.PayerEmail, p.EventID, p.Category, p.RecordID, p.Amount, p.Currency, p.Status,
		nullIfEmpty(p.DiscountCodeID), p.CreatedAt, p.UpdatedAt)
	if isForeignKey(err) {
		return model.ErrEventNotFound
	}
	if isUniqueViolation(err) && constraintOf(err) == "uq_payments_open_record" {
		return model.ErrPaymentPending
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// SetGatewayOrder binds orderID only while the payment is initiated, so an
// order opened for a payment superseded meanwhile is never handed out.
func (r *Repository) SetGatewayOrder(ctx context.Context, paymentID, orderID string) error {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE payments SET gateway_order_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'initiated'
	`, paymentID, orderID)
	if isUniqueViolation(err) {
		return fmt.Errorf("gateway order %s already bound: %w", orderID, model.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to store gateway order: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("payment %s is no longer initiated: %w", paymentID, model.ErrConflict)
	}
	return nil
}

func (r *Repository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	p, err := scanPayment(r.q(ctx).QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, model.ErrPaymentNotFound)
	}
	return p, nil
}

func (r *Repository) GetPaymentByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	p, err := scanPayment(r.q(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_order_id = $1`, orderID))
	if err != nil {
		return nil, notFound(err, model.ErrPaymentNotFound)
	}
	return p, nil
}

// TransitionPayment moves an initiated payment to t.To. Of two concurrent
// callers exactly one sees true.
func (r *Repository) TransitionPayment(ctx context.Context, t payment.Transition) (bool, error) {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    gateway_payment_id = NULLIF($3, ''),
		    gateway_signature = NULLIF($4, ''),
		    failure_reason = $5,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'initiated'
	`, t.PaymentID, t.To, t.GatewayPaymentID, t.Signature, t.Reason)
	if err != nil {
		return false, notFound(err, model.ErrPaymentNotFound)
	}
	return affected(res)
}

func (r *Repository) ListStalePayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = 'initiated' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale payments: %w", err)
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) ListOpenPayments(ctx context.Context, category model.PaymentCategory, recordID string) ([]model.Payment, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE category = $1 AND record_id = $2 AND status = 'initiated'
		ORDER BY created_at
		FOR UPDATE
	`, category, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open payments: %w", err)
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) MarkDiscountOverflow(ctx context.Context, paymentID string) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		UPDATE payments SET discount_overflow = TRUE, updated_at = NOW() WHERE id = $1
	`, paymentID)
	if err != nil {
		return fmt.Errorf("failed to flag discount overflow: %w", err)
	}
	return nil
}
