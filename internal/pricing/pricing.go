// Package pricing picks the registration slab in force at an instant and
// applies discount codes to a base amount.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"confdesk/internal/model"
)

var hundred = decimal.NewFromInt(100)

// ResolveSlab returns the slab whose window contains asOf and has the latest
// ValidFrom. A nil bound is unbounded on that side. Equal ValidFrom values
// are broken by the greater id so the result is deterministic.
func ResolveSlab(slabs []model.RegistrationSlab, asOf time.Time) (model.RegistrationSlab, bool) {
	var (
		best  model.RegistrationSlab
		found bool
	)
	for _, s := range slabs {
		if !covers(s.ValidFrom, s.ValidTo, asOf) {
			continue
		}
		if !found || later(s, best) {
			best = s
			found = true
		}
	}
	return best, found
}

func covers(from, to *time.Time, at time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}

// later reports whether a should win over b.
func later(a, b model.RegistrationSlab) bool {
	switch {
	case a.ValidFrom == nil && b.ValidFrom == nil:
		return a.ID > b.ID
	case a.ValidFrom == nil:
		return false
	case b.ValidFrom == nil:
		return true
	case a.ValidFrom.Equal(*b.ValidFrom):
		return a.ID > b.ID
	default:
		return a.ValidFrom.After(*b.ValidFrom)
	}
}

// ValidateSlab checks the slab's own invariants before it is stored.
func ValidateSlab(s model.RegistrationSlab) error {
	if strings.TrimSpace(s.Name) == "" {
		return model.NewValidationError("name", "is required")
	}
	if s.Amount.IsNegative() {
		return model.NewValidationError("amount", "must not be negative")
	}
	if s.ValidFrom != nil && s.ValidTo != nil && s.ValidTo.Before(*s.ValidFrom) {
		return model.NewValidationError("valid_to", "must not be before valid_from")
	}
	return nil
}

// ApplyDiscount returns base reduced by code. The code must belong to the
// event, asOf must fall inside its window and it must have redemptions left.
func ApplyDiscount(code model.DiscountCode, eventID string, asOf time.Time, base decimal.Decimal) (decimal.Decimal, error) {
	if code.EventID != eventID {
		return base, &model.DiscountRejected{Code: code.Code, Reason: "not valid for this event"}
	}
	if asOf.Before(code.ValidFrom) {
		return base, &model.DiscountRejected{Code: code.Code, Reason: "not yet valid"}
	}
	if asOf.After(code.ValidTo) {
		return base, &model.DiscountRejected{Code: code.Code, Reason: "expired"}
	}
	if code.Redeemed >= code.RedemptionLimit {
		return base, &model.DiscountRejected{Code: code.Code, Reason: "redemption limit reached"}
	}

	switch code.DiscountType {
	case model.DiscountPercentage:
		pct := code.DiscountValue
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return base, &model.DiscountRejected{Code: code.Code, Reason: "invalid percentage"}
		}
		return base.Mul(hundred.Sub(pct)).Div(hundred).Round(2), nil
	case model.DiscountFixed:
		out := base.Sub(code.DiscountValue)
		if out.IsNegative() {
			return decimal.Zero, nil
		}
		return out, nil
	default:
		return base, &model.DiscountRejected{Code: code.Code, Reason: "unknown discount type"}
	}
}

// NormalizeCode is the canonical form codes are stored and looked up in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateDiscount checks a code definition before it is stored.
func ValidateDiscount(c model.DiscountCode) error {
	if NormalizeCode(c.Code) == "" {
		return model.NewValidationError("code", "is required")
	}
	switch c.DiscountType {
	case model.DiscountPercentage:
		if c.DiscountValue.IsNegative() || c.DiscountValue.GreaterThan(hundred) {
			return model.NewValidationError("discount_value", "percentage must be between 0 and 100")
		}
	case model.DiscountFixed:
		if c.DiscountValue.IsNegative() {
			return model.NewValidationError("discount_value", "must not be negative")
		}
	default:
		return model.NewValidationError("discount_type", "must be percentage or fixed")
	}
	if c.RedemptionLimit <= 0 {
		return model.NewValidationError("redemption_limit", "must be positive")
	}
	if c.ValidTo.Before(c.ValidFrom) {
		return model.NewValidationError("valid_to", "must not be before valid_from")
	}
	return nil
}

// Quote is the price computed for one registration attempt.
type Quote struct {
	Slab           model.RegistrationSlab `json:"slab"`
	Base           decimal.Decimal        `json:"base"`
	Amount         decimal.Decimal        `json:"amount"`
	DiscountCodeID string                 `json:"discount_code_id,omitempty"`
}

// Free reports whether nothing is owed.
func (q Quote) Free() bool {
	return !q.Amount.IsPositive()
}

// Price resolves the slab at asOf and applies code when one is given.
func Price(slabs []model.RegistrationSlab, code *model.DiscountCode, eventID string, asOf time.Time) (Quote, error) {
	slab, ok := ResolveSlab(slabs, asOf)
	if !ok {
		return Quote{}, model.ErrNoActivePricing
	}
	q := Quote{Slab: slab, Base: slab.Amount, Amount: slab.Amount}
	if code == nil {
		return q, nil
	}
	amount, err := ApplyDiscount(*code, eventID, asOf, slab.Amount)
	if err != nil {
		return Quote{}, err
	}
	q.Amount = amount
	q.DiscountCodeID = code.ID
	return q, nil
}
