// Package stub is an in-process payment gateway for local runs and tests.
// Orders live in memory; Complete plays the role of the hosted checkout and
// returns the ids and signature the client would post back to /verify.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"confdesk/internal/gateway/signature"
	"confdesk/internal/model"
)

var errUnavailable = errors.New("stub gateway unavailable")

type Provider struct {
	secret string

	mu       sync.Mutex
	orders   map[string]model.GatewayOrder
	payments map[string][]model.GatewayPayment
	failNext int
}

func New(secret string) *Provider {
	return &Provider{
		secret:   secret,
		orders:   map[string]model.GatewayOrder{},
		payments: map[string][]model.GatewayPayment{},
	}
}

func (p *Provider) Name() string { return "stub" }

// FailNext makes the next n calls return a GatewayError.
func (p *Provider) FailNext(n int) {
	p.mu.Lock()
	p.failNext = n
	p.mu.Unlock()
}

func (p *Provider) takeFailure() bool {
	if p.failNext > 0 {
		p.failNext--
		return true
	}
	return false
}

func (p *Provider) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (model.GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return model.GatewayOrder{}, &model.GatewayError{Op: "create order", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.takeFailure() {
		return model.GatewayOrder{}, &model.GatewayError{Op: "create order", Err: errUnavailable}
	}
	o := model.GatewayOrder{
		ID:       "order_" + uuid.NewString(),
		Receipt:  receipt,
		Amount:   amount,
		Currency: currency,
		Status:   "created",
	}
	p.orders[o.ID] = o
	return o, nil
}

func (p *Provider) FetchPayments(ctx context.Context, orderID string) ([]model.GatewayPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.GatewayError{Op: "fetch payments", Err: err}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.takeFailure() {
		return nil, &model.GatewayError{Op: "fetch payments", Err: errUnavailable}
	}
	if _, ok := p.orders[orderID]; !ok {
		return nil, &model.GatewayError{Op: "fetch payments", Err: fmt.Errorf("order %s not found", orderID)}
	}
	out := make([]model.GatewayPayment, len(p.payments[orderID]))
	copy(out, p.payments[orderID])
	return out, nil
}

// Complete records a captured payment for orderID and returns the payment
// id with its signature.
func (p *Provider) Complete(orderID string) (paymentID, sig string, err error) {
	return p.record(orderID, "captured")
}

// Decline records a failed payment attempt against orderID.
func (p *Provider) Decline(orderID string) (paymentID string, err error) {
	paymentID, _, err = p.record(orderID, "failed")
	return paymentID, err
}

func (p *Provider) record(orderID, status string) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return "", "", fmt.Errorf("order %s not found", orderID)
	}
	pay := model.GatewayPayment{
		ID:      "pay_" + uuid.NewString(),
		OrderID: orderID,
		Status:  status,
		Amount:  o.Amount,
	}
	p.payments[orderID] = append(p.payments[orderID], pay)
	return pay.ID, signature.Sign(p.secret, orderID, pay.ID), nil
}
