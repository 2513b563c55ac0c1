package registration

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"confdesk/internal/identifier"
	"confdesk/internal/ledger"
	"confdesk/internal/model"
	"confdesk/internal/payment"
)

// payable is a record an order can be opened for.
type payable interface {
	payment.Settlable
	Owner() string
	EventID() string
	Amount() decimal.Decimal
	DiscountCodeID() string
}

// Records resolves payment categories to their domain records. It is the
// payment.Resolver the orchestrator settles through.
type Records struct {
	store     Store
	ledger    *ledger.Ledger
	allocator *identifier.Allocator
	log       *zerolog.Logger
}

func NewRecords(store Store, l *ledger.Ledger, alloc *identifier.Allocator, log *zerolog.Logger) *Records {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Records{store: store, ledger: l, allocator: alloc, log: log}
}

func (rs *Records) Resolve(ctx context.Context, category model.PaymentCategory, id string) (payment.Settlable, error) {
	return rs.load(ctx, category, id)
}

func (rs *Records) load(ctx context.Context, category model.PaymentCategory, id string) (payable, error) {
	switch category {
	case model.CategoryEventRegistration:
		r, err := rs.store.GetRegistration(ctx, id)
		if err != nil {
			return nil, err
		}
		return &registrationRecord{rs: rs, reg: r}, nil
	case model.CategoryAccompany:
		a, err := rs.store.GetAccompany(ctx, id)
		if err != nil {
			return nil, err
		}
		return &accompanyRecord{rs: rs, acc: a}, nil
	case model.CategoryWorkshop:
		w, err := rs.store.GetWorkshopRegistration(ctx, id)
		if err != nil {
			return nil, err
		}
		return &workshopRecord{rs: rs, reg: w}, nil
	case model.CategoryBanquet:
		b, err := rs.store.GetBanquetRegistration(ctx, id)
		if err != nil {
			return nil, err
		}
		return &banquetRecord{rs: rs, reg: b}, nil
	default:
		return nil, model.NewValidationError("category", "unknown payment category")
	}
}

// finalizeRegistration marks the registration paid and gives it a
// registration number. A registration that already has one is left as is.
func (rs *Records) finalizeRegistration(ctx context.Context, id string) (string, error) {
	var finalized bool
	number, err := rs.allocator.Allocate(ctx, identifier.RegistrationNumber, func(ctx context.Context, candidate string) error {
		ok, err := rs.store.FinalizeRegistration(ctx, id, candidate)
		finalized = ok
		return err
	})
	if err != nil {
		return "", fmt.Errorf("registration number: %w", err)
	}
	if !finalized {
		return "", nil
	}
	rs.log.Info().Str("registration_id", id).Str("registration_number", number).Msg("registration finalized")
	return number, nil
}

func (rs *Records) releaseHeld(ctx context.Context, category model.PaymentCategory, id string, claims []ledger.Claim) error {
	changed, err := rs.store.SetQuotaHeld(ctx, category, id, false)
	if err != nil || !changed {
		return err
	}
	return rs.ledger.ReleaseAll(ctx, claims)
}

func (rs *Records) reacquire(ctx context.Context, category model.PaymentCategory, id string, claims []ledger.Claim) error {
	return rs.store.WithTx(ctx, func(ctx context.Context) error {
		changed, err := rs.store.SetQuotaHeld(ctx, category, id, true)
		if err != nil || !changed {
			return err
		}
		return rs.ledger.ReserveAll(ctx, claims)
	})
}

type registrationRecord struct {
	rs  *Records
	reg *model.EventRegistration
}

func (r *registrationRecord) Category() model.PaymentCategory { return model.CategoryEventRegistration }
func (r *registrationRecord) RecordID() string                { return r.reg.ID }
func (r *registrationRecord) IsPaid() bool                    { return r.reg.IsPaid }
func (r *registrationRecord) Owner() string                   { return r.reg.UserID }
func (r *registrationRecord) EventID() string                 { return r.reg.EventID }
func (r *registrationRecord) Amount() decimal.Decimal         { return r.reg.Amount }
func (r *registrationRecord) DiscountCodeID() string          { return r.reg.DiscountCodeID }

func (r *registrationRecord) MarkPaid(ctx context.Context, _ model.Payment) error {
	_, err := r.rs.finalizeRegistration(ctx, r.reg.ID)
	return err
}

// Event registrations hold no capacity.
func (r *registrationRecord) ReleaseQuota(context.Context) error { return nil }
func (r *registrationRecord) Reacquire(context.Context) error    { return nil }

type accompanyRecord struct {
	rs  *Records
	acc *model.Accompany
}

func (r *accompanyRecord) Category() model.PaymentCategory { return model.CategoryAccompany }
func (r *accompanyRecord) RecordID() string                { return r.acc.ID }
func (r *accompanyRecord) IsPaid() bool                    { return r.acc.IsPaid }
func (r *accompanyRecord) Owner() string                   { return r.acc.UserID }
func (r *accompanyRecord) EventID() string                 { return r.acc.EventID }
func (r *accompanyRecord) Amount() decimal.Decimal         { return r.acc.Amount }
func (r *accompanyRecord) DiscountCodeID() string          { return "" }

func (r *accompanyRecord) MarkPaid(ctx context.Context, _ model.Payment) error {
	_, err := r.rs.store.MarkRecordPaid(ctx, model.CategoryAccompany, r.acc.ID)
	return err
}

func (r *accompanyRecord) ReleaseQuota(context.Context) error { return nil }
func (r *accompanyRecord) Reacquire(context.Context) error    { return nil }

type workshopRecord struct {
	rs  *Records
	reg *model.WorkshopRegistration
}

func (r *workshopRecord) Category() model.PaymentCategory { return model.CategoryWorkshop }
func (r *workshopRecord) RecordID() string                { return r.reg.ID }
func (r *workshopRecord) IsPaid() bool                    { return r.reg.IsPaid }
func (r *workshopRecord) Owner() string                   { return r.reg.UserID }
func (r *workshopRecord) EventID() string                 { return r.reg.EventID }
func (r *workshopRecord) Amount() decimal.Decimal         { return r.reg.Amount }
func (r *workshopRecord) DiscountCodeID() string          { return "" }

func (r *workshopRecord) MarkPaid(ctx context.Context, _ model.Payment) error {
	_, err := r.rs.store.MarkRecordPaid(ctx, model.CategoryWorkshop, r.reg.ID)
	return err
}

func (r *workshopRecord) claims() []ledger.Claim {
	out := make([]ledger.Claim, 0, len(r.reg.Selections))
	for _, s := range r.reg.Selections {
		out = append(out, ledger.Claim{QuotaID: s.QuotaID, N: 1})
	}
	return out
}

func (r *workshopRecord) ReleaseQuota(ctx context.Context) error {
	return r.rs.releaseHeld(ctx, model.CategoryWorkshop, r.reg.ID, r.claims())
}

func (r *workshopRecord) Reacquire(ctx context.Context) error {
	return r.rs.reacquire(ctx, model.CategoryWorkshop, r.reg.ID, r.claims())
}

type banquetRecord struct {
	rs  *Records
	reg *model.BanquetRegistration
}

func (r *banquetRecord) Category() model.PaymentCategory { return model.CategoryBanquet }
func (r *banquetRecord) RecordID() string                { return r.reg.ID }
func (r *banquetRecord) IsPaid() bool                    { return r.reg.IsPaid }
func (r *banquetRecord) Owner() string                   { return r.reg.UserID }
func (r *banquetRecord) EventID() string                 { return r.reg.EventID }
func (r *banquetRecord) Amount() decimal.Decimal         { return r.reg.Amount }
func (r *banquetRecord) DiscountCodeID() string          { return "" }

func (r *banquetRecord) MarkPaid(ctx context.Context, _ model.Payment) error {
	_, err := r.rs.store.MarkRecordPaid(ctx, model.CategoryBanquet, r.reg.ID)
	return err
}

func (r *banquetRecord) claims() []ledger.Claim {
	out := make([]ledger.Claim, 0, len(r.reg.Seats))
	for _, s := range r.reg.Seats {
		out = append(out, ledger.Claim{QuotaID: s.QuotaID, N: 1})
	}
	return out
}

func (r *banquetRecord) ReleaseQuota(ctx context.Context) error {
	return r.rs.releaseHeld(ctx, model.CategoryBanquet, r.reg.ID, r.claims())
}

func (r *banquetRecord) Reacquire(ctx context.Context) error {
	return r.rs.reacquire(ctx, model.CategoryBanquet, r.reg.ID, r.claims())
}
