package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentCategory string

const (
	CategoryEventRegistration PaymentCategory = "eventRegistration"
	CategoryAccompany         PaymentCategory = "accompany"
	CategoryWorkshop          PaymentCategory = "workshop"
	CategoryBanquet           PaymentCategory = "banquet"
)

func (c PaymentCategory) Valid() bool {
	switch c {
	case CategoryEventRegistration, CategoryAccompany, CategoryWorkshop, CategoryBanquet:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

const (
	ReasonSignatureMismatch = "signature mismatch"
	ReasonNotCompleted      = "payment not completed"
	ReasonGatewayFailed     = "gateway reported failure"
	ReasonSuperseded        = "superseded by a newer order"
	ReasonCapacityLost      = "capacity no longer available"
	ReasonPaidElsewhere     = "record already paid by another payment"
)

type Payment struct {
	ID               string          `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"user_id"`
	PayerEmail       string          `db:"payer_email" json:"payer_email,omitempty"`
	EventID          string          `db:"event_id" json:"event_id"`
	Category         PaymentCategory `db:"category" json:"category"`
	RecordID         string          `db:"record_id" json:"record_id"`
	GatewayOrderID   string          `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewaySignature string          `db:"gateway_signature" json:"-"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	Status           PaymentStatus   `db:"status" json:"status"`
	FailureReason    string          `db:"failure_reason" json:"failure_reason,omitempty"`
	DiscountCodeID   string          `db:"discount_code_id" json:"discount_code_id,omitempty"`
	DiscountOverflow bool            `db:"discount_overflow" json:"discount_overflow,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}
