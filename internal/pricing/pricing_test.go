package pricing

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"confdesk/internal/model"
)

func ts(day int) *time.Time {
	t := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestResolveSlab(t *testing.T) {
	slabs := []model.RegistrationSlab{
		{ID: "early", Amount: decimal.NewFromInt(100), ValidFrom: ts(1), ValidTo: ts(10)},
		{ID: "regular", Amount: decimal.NewFromInt(150), ValidFrom: ts(5), ValidTo: ts(20)},
		{ID: "open", Amount: decimal.NewFromInt(200)},
	}

	cases := []struct {
		name string
		at   time.Time
		want string
	}{
		{"only open slab before windows", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), "open"},
		{"early wins over open", *ts(3), "early"},
		{"overlap picks latest valid_from", *ts(7), "regular"},
		{"after all windows", *ts(25), "open"},
		{"inclusive upper bound", *ts(20), "regular"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveSlab(slabs, tc.at)
			if !ok {
				t.Fatalf("expected a slab")
			}
			if got.ID != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.ID)
			}
		})
	}
}

func TestResolveSlab_None(t *testing.T) {
	slabs := []model.RegistrationSlab{{ID: "a", ValidFrom: ts(1), ValidTo: ts(2)}}
	if _, ok := ResolveSlab(slabs, *ts(9)); ok {
		t.Fatalf("expected no slab")
	}
	if _, err := Price(slabs, nil, "ev", *ts(9)); !errors.Is(err, model.ErrNoActivePricing) {
		t.Fatalf("expected ErrNoActivePricing, got %v", err)
	}
}

// For random slab sets the resolver must agree with a brute-force scan for
// the covering slab with the latest valid_from.
func TestResolveSlab_LatestValidFromProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		n := rng.Intn(6)
		slabs := make([]model.RegistrationSlab, 0, n)
		for i := 0; i < n; i++ {
			s := model.RegistrationSlab{ID: fmt.Sprintf("s%02d", i)}
			if rng.Intn(4) > 0 {
				s.ValidFrom = ts(1 + rng.Intn(28))
			}
			if rng.Intn(4) > 0 {
				base := 1
				if s.ValidFrom != nil {
					base = s.ValidFrom.Day()
				}
				s.ValidTo = ts(base + rng.Intn(29-base+1))
			}
			slabs = append(slabs, s)
		}
		at := *ts(1 + rng.Intn(28))

		got, ok := ResolveSlab(slabs, at)

		var covering []model.RegistrationSlab
		for _, s := range slabs {
			if (s.ValidFrom == nil || !at.Before(*s.ValidFrom)) && (s.ValidTo == nil || !at.After(*s.ValidTo)) {
				covering = append(covering, s)
			}
		}
		if len(covering) == 0 {
			if ok {
				t.Fatalf("iter %d: expected none, got %s", iter, got.ID)
			}
			continue
		}
		if !ok {
			t.Fatalf("iter %d: expected a slab", iter)
		}
		for _, s := range covering {
			if s.ValidFrom == nil {
				continue
			}
			if got.ValidFrom == nil || s.ValidFrom.After(*got.ValidFrom) {
				t.Fatalf("iter %d: %s has later valid_from than chosen %s", iter, s.ID, got.ID)
			}
		}
	}
}

func TestApplyDiscount(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	base := decimal.NewFromInt(1000)
	valid := model.DiscountCode{
		ID:              "d1",
		EventID:         "ev",
		Code:            "EARLY",
		DiscountType:    model.DiscountPercentage,
		DiscountValue:   decimal.NewFromInt(20),
		RedemptionLimit: 2,
		ValidFrom:       now.Add(-time.Hour),
		ValidTo:         now.Add(time.Hour),
	}

	t.Run("percentage", func(t *testing.T) {
		got, err := ApplyDiscount(valid, "ev", now, base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(decimal.NewFromInt(800)) {
			t.Fatalf("expected 800, got %s", got)
		}
	})

	t.Run("fixed floors at zero", func(t *testing.T) {
		c := valid
		c.DiscountType = model.DiscountFixed
		c.DiscountValue = decimal.NewFromInt(1500)
		got, err := ApplyDiscount(c, "ev", now, base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.IsZero() {
			t.Fatalf("expected 0, got %s", got)
		}
	})

	rejections := []struct {
		name   string
		mutate func(*model.DiscountCode)
		event  string
		at     time.Time
	}{
		{"other event", func(*model.DiscountCode) {}, "other", now},
		{"before window", func(*model.DiscountCode) {}, "ev", now.Add(-2 * time.Hour)},
		{"after window", func(*model.DiscountCode) {}, "ev", now.Add(2 * time.Hour)},
		{"limit reached", func(c *model.DiscountCode) { c.Redeemed = 2 }, "ev", now},
	}
	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			_, err := ApplyDiscount(c, tc.event, tc.at, base)
			var rej *model.DiscountRejected
			if !errors.As(err, &rej) {
				t.Fatalf("expected DiscountRejected, got %v", err)
			}
		})
	}
}

// Redemptions are only counted at settlement, so a code with limit 1 still
// prices a second order while the first is unsettled, and is refused once
// the first settles.
func TestApplyDiscount_LimitCountsSettledRedemptions(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	c := model.DiscountCode{
		EventID: "ev", Code: "ONCE", DiscountType: model.DiscountFixed,
		DiscountValue: decimal.NewFromInt(10), RedemptionLimit: 1,
		ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour),
	}
	if _, err := ApplyDiscount(c, "ev", now, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("first order: %v", err)
	}
	if _, err := ApplyDiscount(c, "ev", now, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("second order before settlement: %v", err)
	}
	c.Redeemed = 1
	if _, err := ApplyDiscount(c, "ev", now, decimal.NewFromInt(50)); err == nil {
		t.Fatalf("expected rejection after settlement")
	}
}

func TestValidateSlab(t *testing.T) {
	err := ValidateSlab(model.RegistrationSlab{Name: "x", ValidFrom: ts(5), ValidTo: ts(1)})
	var verr *model.ValidationError
	if !errors.As(err, &verr) || verr.Field != "valid_to" {
		t.Fatalf("expected valid_to validation error, got %v", err)
	}
	if err := ValidateSlab(model.RegistrationSlab{Name: "x", ValidFrom: ts(1), ValidTo: ts(1)}); err != nil {
		t.Fatalf("equal bounds should be valid: %v", err)
	}
}
