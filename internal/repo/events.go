package repo

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"confdesk/internal/model"
)

func (r *Repository) CreateEvent(ctx context.Context, e *model.Event) error {
	a := e.Abstract
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO events (
			id, name, currency, starts_at, ends_at,
			registration_enabled, registration_opens_at, registration_closes_at, registration_required_fields,
			abstract_enabled, abstract_opens_at, abstract_closes_at, abstract_max_per_user, abstract_word_limit,
			abstract_require_attachment, abstract_require_registration, accompany_fee, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		e.ID, e.Name, e.Currency, e.StartsAt, e.EndsAt,
		e.RegistrationEnabled, e.RegistrationOpensAt, e.RegistrationClosesAt, pq.Array(e.RegistrationRequiredFields),
		a.Enabled, a.OpensAt, a.ClosesAt, a.MaxPerUser, a.WordLimit,
		a.RequireAttachment, a.RequireRegistration, e.AccompanyFee, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *Repository) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, name, currency, starts_at, ends_at,
		       registration_enabled, registration_opens_at, registration_closes_at, registration_required_fields,
		       abstract_enabled, abstract_opens_at, abstract_closes_at, abstract_max_per_user, abstract_word_limit,
		       abstract_require_attachment, abstract_require_registration, accompany_fee, created_at
		FROM events WHERE id = $1
	`, id)

	var e model.Event
	a := &e.Abstract
	if err := row.Scan(
		&e.ID, &e.Name, &e.Currency, &e.StartsAt, &e.EndsAt,
		&e.RegistrationEnabled, &e.RegistrationOpensAt, &e.RegistrationClosesAt, pq.Array(&e.RegistrationRequiredFields),
		&a.Enabled, &a.OpensAt, &a.ClosesAt, &a.MaxPerUser, &a.WordLimit,
		&a.RequireAttachment, &a.RequireRegistration, &e.AccompanyFee, &e.CreatedAt,
	); err != nil {
		return nil, notFound(err, model.ErrEventNotFound)
	}
	return &e, nil
}

func (r *Repository) CreateSlab(ctx context.Context, s *model.RegistrationSlab) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO registration_slabs (id, event_id, name, amount, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.EventID, s.Name, s.Amount, s.ValidFrom, s.ValidTo)
	if err != nil {
		return fmt.Errorf("failed to insert slab: %w", err)
	}
	return nil
}

func (r *Repository) ListSlabs(ctx context.Context, eventID string) ([]model.RegistrationSlab, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, event_id, name, amount, valid_from, valid_to
		FROM registration_slabs WHERE event_id = $1
		ORDER BY id
	`, eventID)
	if err != nil {
		return nil, notFound(err, model.ErrEventNotFound)
	}
	defer rows.Close()

	var out []model.RegistrationSlab
	for rows.Next() {
		var s model.RegistrationSlab
		if err := rows.Scan(&s.ID, &s.EventID, &s.Name, &s.Amount, &s.ValidFrom, &s.ValidTo); err != nil {
			return nil, fmt.Errorf("failed to scan slab: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) CreateDiscount(ctx context.Context, d *model.DiscountCode) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO discount_codes (id, event_id, code, discount_type, discount_value, redemption_limit, redeemed, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.EventID, d.Code, d.DiscountType, d.DiscountValue, d.RedemptionLimit, d.Redeemed, d.ValidFrom, d.ValidTo)
	if isUniqueViolation(err) {
		return model.NewValidationError("code", "already exists for this event")
	}
	if err != nil {
		return fmt.Errorf("failed to insert discount code: %w", err)
	}
	return nil
}

func (r *Repository) GetDiscountByCode(ctx context.Context, eventID, code string) (*model.DiscountCode, error) {
	var d model.DiscountCode
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, event_id, code, discount_type, discount_value, redemption_limit, redeemed, valid_from, valid_to
		FROM discount_codes WHERE event_id = $1 AND code = $2
	`, eventID, code).Scan(
		&d.ID, &d.EventID, &d.Code, &d.DiscountType, &d.DiscountValue,
		&d.RedemptionLimit, &d.Redeemed, &d.ValidFrom, &d.ValidTo,
	)
	if err != nil {
		return nil, notFound(err, model.ErrDiscountNotFound)
	}
	return &d, nil
}

// RedeemDiscount counts one redemption if the code is still under its limit.
func (r *Repository) RedeemDiscount(ctx context.Context, codeID string) (bool, error) {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE discount_codes SET redeemed = redeemed + 1
		WHERE id = $1 AND redeemed < redemption_limit
	`, codeID)
	if err != nil {
		return false, fmt.Errorf("failed to redeem discount: %w", err)
	}
	return affected(res)
}

func (r *Repository) CreateCategory(ctx context.Context, c *model.Category) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO categories (id, event_id, name, active, options) VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.EventID, c.Name, c.Active, pq.Array(c.Options))
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (r *Repository) ListCategories(ctx context.Context, eventID string) ([]model.Category, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, event_id, name, active, options FROM categories WHERE event_id = $1 ORDER BY name
	`, eventID)
	if err != nil {
		return nil, notFound(err, model.ErrEventNotFound)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.EventID, &c.Name, &c.Active, pq.Array(&c.Options)); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
