package registration

import (
	"context"

	"confdesk/internal/model"
)

// Store is the storage the intake flows need. The Postgres repository
// implements it; tests use an in-memory fake.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	CreateSlab(ctx context.Context, s *model.RegistrationSlab) error
	ListSlabs(ctx context.Context, eventID string) ([]model.RegistrationSlab, error)
	CreateDiscount(ctx context.Context, d *model.DiscountCode) error
	GetDiscountByCode(ctx context.Context, eventID, code string) (*model.DiscountCode, error)
	RedeemDiscount(ctx context.Context, codeID string) (bool, error)
	CreateCategory(ctx context.Context, c *model.Category) error
	ListCategories(ctx context.Context, eventID string) ([]model.Category, error)
	CreateQuota(ctx context.Context, q *model.Quota) error
	GetQuota(ctx context.Context, id string) (*model.Quota, error)

	CreateRegistration(ctx context.Context, r *model.EventRegistration) error
	GetRegistration(ctx context.Context, id string) (*model.EventRegistration, error)
	GetRegistrationByUser(ctx context.Context, eventID, userID string) (*model.EventRegistration, error)
	// FinalizeRegistration marks the registration paid and stores number,
	// but only if it has no number yet; it reports whether it did. A number
	// taken by another registration is model.ErrConflict and leaves the
	// surrounding transaction usable.
	FinalizeRegistration(ctx context.Context, id, number string) (bool, error)
	SetRegistrationSuspended(ctx context.Context, id string, suspended bool) error

	CountAbstracts(ctx context.Context, eventID, userID string) (int, error)
	// CreateAbstract inserts a; a taken abstract number is model.ErrConflict.
	CreateAbstract(ctx context.Context, a *model.AbstractSubmission) error
	SetAbstractStatus(ctx context.Context, id string, status model.AbstractStatus) error

	CreateAccompany(ctx context.Context, a *model.Accompany) error
	GetAccompany(ctx context.Context, id string) (*model.Accompany, error)

	CreateWorkshop(ctx context.Context, w *model.Workshop) error
	ListWorkshops(ctx context.Context, eventID string) ([]model.Workshop, error)
	CreateWorkshopRegistration(ctx context.Context, w *model.WorkshopRegistration) error
	GetWorkshopRegistration(ctx context.Context, id string) (*model.WorkshopRegistration, error)

	CreateBanquetSlab(ctx context.Context, b *model.BanquetSlab) error
	ListBanquetSlabs(ctx context.Context, eventID string) ([]model.BanquetSlab, error)
	CreateBanquetRegistration(ctx context.Context, b *model.BanquetRegistration) error
	GetBanquetRegistration(ctx context.Context, id string) (*model.BanquetRegistration, error)

	// MarkRecordPaid sets is_paid on an accompany, workshop or banquet
	// record if it is not set yet and reports whether it did.
	MarkRecordPaid(ctx context.Context, category model.PaymentCategory, id string) (bool, error)
	// SetQuotaHeld flips the record's quota_held flag and reports whether
	// the value changed.
	SetQuotaHeld(ctx context.Context, category model.PaymentCategory, id string, held bool) (bool, error)
}
