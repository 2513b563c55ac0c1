package registration

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"confdesk/internal/model"
	"confdesk/internal/pricing"
)

// The operations below seed the directory data the intake flows read.
// Route gating keeps them to staff.

func (s *Service) CreateEvent(ctx context.Context, e *model.Event) error {
	if strings.TrimSpace(e.Name) == "" {
		return model.NewValidationError("name", "is required")
	}
	if e.EndsAt.Before(e.StartsAt) {
		return model.NewValidationError("ends_at", "must not be before starts_at")
	}
	if e.RegistrationOpensAt != nil && e.RegistrationClosesAt != nil && e.RegistrationClosesAt.Before(*e.RegistrationOpensAt) {
		return model.NewValidationError("registration_closes_at", "must not be before registration_opens_at")
	}
	a := e.Abstract
	if a.OpensAt != nil && a.ClosesAt != nil && a.ClosesAt.Before(*a.OpensAt) {
		return model.NewValidationError("abstract.closes_at", "must not be before opens_at")
	}
	if a.MaxPerUser < 0 || a.WordLimit < 0 {
		return model.NewValidationError("abstract", "limits must not be negative")
	}
	if e.AccompanyFee.IsNegative() {
		return model.NewValidationError("accompany_fee", "must not be negative")
	}
	if e.Currency == "" {
		e.Currency = "INR"
	}
	e.ID = uuid.NewString()
	e.CreatedAt = s.clock.Now()
	return s.store.CreateEvent(ctx, e)
}

func (s *Service) AddSlab(ctx context.Context, slab *model.RegistrationSlab) error {
	if err := pricing.ValidateSlab(*slab); err != nil {
		return err
	}
	if _, err := s.store.GetEvent(ctx, slab.EventID); err != nil {
		return err
	}
	slab.ID = uuid.NewString()
	return s.store.CreateSlab(ctx, slab)
}

func (s *Service) AddDiscount(ctx context.Context, d *model.DiscountCode) error {
	d.Code = pricing.NormalizeCode(d.Code)
	if err := pricing.ValidateDiscount(*d); err != nil {
		return err
	}
	if _, err := s.store.GetEvent(ctx, d.EventID); err != nil {
		return err
	}
	d.ID = uuid.NewString()
	d.Redeemed = 0
	return s.store.CreateDiscount(ctx, d)
}

func (s *Service) AddCategory(ctx context.Context, c *model.Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return model.NewValidationError("name", "is required")
	}
	if _, err := s.store.GetEvent(ctx, c.EventID); err != nil {
		return err
	}
	c.ID = uuid.NewString()
	return s.store.CreateCategory(ctx, c)
}

func (s *Service) CreateQuota(ctx context.Context, q *model.Quota) error {
	switch q.OwnerType {
	case model.QuotaSponsorRegistration, model.QuotaSponsorTravel, model.QuotaSponsorAccommodation,
		model.QuotaWorkshopSeats, model.QuotaBanquetSlots:
	default:
		return model.NewValidationError("owner_type", "unknown quota owner type")
	}
	if q.Capacity < 0 {
		return model.NewValidationError("capacity", "must not be negative")
	}
	q.ID = uuid.NewString()
	q.Consumed = 0
	return s.store.CreateQuota(ctx, q)
}

func (s *Service) GetQuota(ctx context.Context, id string) (*model.Quota, error) {
	return s.store.GetQuota(ctx, id)
}

// AddWorkshop creates the workshop together with its seat quota.
func (s *Service) AddWorkshop(ctx context.Context, w *model.Workshop, seats int) error {
	if strings.TrimSpace(w.Name) == "" {
		return model.NewValidationError("name", "is required")
	}
	if w.Amount.IsNegative() {
		return model.NewValidationError("amount", "must not be negative")
	}
	if seats <= 0 {
		return model.NewValidationError("seats", "must be positive")
	}
	if _, err := s.store.GetEvent(ctx, w.EventID); err != nil {
		return err
	}
	w.ID = uuid.NewString()
	return s.store.WithTx(ctx, func(ctx context.Context) error {
		q := &model.Quota{OwnerType: model.QuotaWorkshopSeats, OwnerID: w.ID, Label: w.Name, Capacity: seats}
		if err := s.CreateQuota(ctx, q); err != nil {
			return err
		}
		w.QuotaID = q.ID
		return s.store.CreateWorkshop(ctx, w)
	})
}

// AddBanquetSlab creates the banquet slab together with its slot quota.
func (s *Service) AddBanquetSlab(ctx context.Context, b *model.BanquetSlab, slots int) error {
	if strings.TrimSpace(b.Name) == "" {
		return model.NewValidationError("name", "is required")
	}
	if b.Amount.IsNegative() {
		return model.NewValidationError("amount", "must not be negative")
	}
	if slots <= 0 {
		return model.NewValidationError("slots", "must be positive")
	}
	if _, err := s.store.GetEvent(ctx, b.EventID); err != nil {
		return err
	}
	b.ID = uuid.NewString()
	return s.store.WithTx(ctx, func(ctx context.Context) error {
		q := &model.Quota{OwnerType: model.QuotaBanquetSlots, OwnerID: b.ID, Label: b.Name, Capacity: slots}
		if err := s.CreateQuota(ctx, q); err != nil {
			return err
		}
		b.QuotaID = q.ID
		return s.store.CreateBanquetSlab(ctx, b)
	})
}

// ReserveQuota and ReleaseQuota are the staff-facing path for sponsor
// quotas, which are consumed outside any payment.
func (s *Service) ReserveQuota(ctx context.Context, quotaID string, n int) (*model.Quota, error) {
	if err := s.ledger.Reserve(ctx, quotaID, n); err != nil {
		return nil, err
	}
	return s.store.GetQuota(ctx, quotaID)
}

func (s *Service) ReleaseQuota(ctx context.Context, quotaID string, n int) (*model.Quota, error) {
	if err := s.ledger.Release(ctx, quotaID, n); err != nil {
		return nil, err
	}
	return s.store.GetQuota(ctx, quotaID)
}

func (s *Service) SetItemSuspended(ctx context.Context, kind model.LineItemKind, parentID, itemID string, suspended bool) error {
	if suspended {
		return s.ledger.Suspend(ctx, kind, parentID, itemID)
	}
	return s.ledger.Unsuspend(ctx, kind, parentID, itemID)
}

// SetRegistrationSuspended is the only change a finalized registration allows.
func (s *Service) SetRegistrationSuspended(ctx context.Context, id string, suspended bool) error {
	if err := s.store.SetRegistrationSuspended(ctx, id, suspended); err != nil {
		return err
	}
	s.log.Info().Str("registration_id", id).Bool("suspended", suspended).Msg("registration suspension changed")
	return nil
}

func (s *Service) SetAbstractStatus(ctx context.Context, id string, status model.AbstractStatus) error {
	if !status.Valid() {
		return model.NewValidationError("status", "must be one of pending, reviewed, accept, reject")
	}
	return s.store.SetAbstractStatus(ctx, id, status)
}

func (s *Service) GetRegistration(ctx context.Context, id string) (*model.EventRegistration, error) {
	return s.store.GetRegistration(ctx, id)
}
