package model

import "github.com/shopspring/decimal"

// GatewayOrder is the provider's view of an order we opened.
type GatewayOrder struct {
	ID       string          `json:"id"`
	Receipt  string          `json:"receipt"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
}

// GatewayPayment is one payment attempt the provider recorded against an order.
type GatewayPayment struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	Status  string          `json:"status"`
	Amount  decimal.Decimal `json:"amount"`
}

// Captured reports whether money was actually taken.
func (p GatewayPayment) Captured() bool {
	return p.Status == "captured"
}
