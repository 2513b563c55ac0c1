package repo

import (
	"context"
	"fmt"

	"confdesk/internal/model"
)

// Multi-row add-on records are written in one transaction; WithTx joins the
// caller's when there is one.

func (r *Repository) CreateAccompany(ctx context.Context, a *model.Accompany) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.q(ctx).ExecContext(ctx, `
			INSERT INTO accompanies (id, event_id, registration_id, user_id, amount, is_paid, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, a.ID, a.EventID, a.RegistrationID, a.UserID, a.Amount, a.IsPaid, a.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert accompany: %w", err)
		}
		for _, p := range a.Persons {
			if _, err := r.q(ctx).ExecContext(ctx, `
				INSERT INTO accompany_persons (id, accompany_id, name, relation, suspended) VALUES ($1, $2, $3, $4, $5)
			`, p.ID, a.ID, p.Name, p.Relation, p.Suspended); err != nil {
				return fmt.Errorf("failed to insert accompany person: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetAccompany(ctx context.Context, id string) (*model.Accompany, error) {
	var a model.Accompany
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, event_id, registration_id, user_id, amount, is_paid, created_at FROM accompanies WHERE id = $1
	`, id).Scan(&a.ID, &a.EventID, &a.RegistrationID, &a.UserID, &a.Amount, &a.IsPaid, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, model.ErrRecordNotFound)
	}

	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, accompany_id, name, relation, suspended FROM accompany_persons WHERE accompany_id = $1 ORDER BY name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get accompany persons: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.AccompanyPerson
		if err := rows.Scan(&p.ID, &p.AccompanyID, &p.Name, &p.Relation, &p.Suspended); err != nil {
			return nil, fmt.Errorf("failed to scan accompany person: %w", err)
		}
		a.Persons = append(a.Persons, p)
	}
	return &a, rows.Err()
}

func (r *Repository) CreateWorkshop(ctx context.Context, w *model.Workshop) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO workshops (id, event_id, name, amount, quota_id) VALUES ($1, $2, $3, $4, $5)
	`, w.ID, w.EventID, w.Name, w.Amount, w.QuotaID)
	if err != nil {
		return fmt.Errorf("failed to insert workshop: %w", err)
	}
	return nil
}

func (r *Repository) ListWorkshops(ctx context.Context, eventID string) ([]model.Workshop, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, event_id, name, amount, quota_id FROM workshops WHERE event_id = $1 ORDER BY name
	`, eventID)
	if err != nil {
		return nil, notFound(err, model.ErrEventNotFound)
	}
	defer rows.Close()

	var out []model.Workshop
	for rows.Next() {
		var w model.Workshop
		if err := rows.Scan(&w.ID, &w.EventID, &w.Name, &w.Amount, &w.QuotaID); err != nil {
			return nil, fmt.Errorf("failed to scan workshop: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repository) CreateWorkshopRegistration(ctx context.Context, w *model.WorkshopRegistration) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.q(ctx).ExecContext(ctx, `
			INSERT INTO workshop_registrations (id, event_id, user_id, amount, is_paid, quota_held, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, w.ID, w.EventID, w.UserID, w.Amount, w.IsPaid, w.QuotaHeld, w.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert workshop registration: %w", err)
		}
		for _, s := range w.Selections {
			if _, err := r.q(ctx).ExecContext(ctx, `
				INSERT INTO workshop_selections (id, workshop_registration_id, workshop_id, quota_id, suspended)
				VALUES ($1, $2, $3, $4, $5)
			`, s.ID, w.ID, s.WorkshopID, s.QuotaID, s.Suspended); err != nil {
				return fmt.Errorf("failed to insert workshop selection: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetWorkshopRegistration(ctx context.Context, id string) (*model.WorkshopRegistration, error) {
	var w model.WorkshopRegistration
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, event_id, user_id, amount, is_paid, quota_held, created_at FROM workshop_registrations WHERE id = $1
	`, id).Scan(&w.ID, &w.EventID, &w.UserID, &w.Amount, &w.IsPaid, &w.QuotaHeld, &w.CreatedAt)
	if err != nil {
		return nil, notFound(err, model.ErrRecordNotFound)
	}

	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, workshop_registration_id, workshop_id, quota_id, suspended
		FROM workshop_selections WHERE workshop_registration_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get workshop selections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s model.WorkshopSelection
		if err := rows.Scan(&s.ID, &s.RegistrationID, &s.WorkshopID, &s.QuotaID, &s.Suspended); err != nil {
			return nil, fmt.Errorf("failed to scan workshop selection: %w", err)
		}
		w.Selections = append(w.Selections, s)
	}
	return &w, rows.Err()
}

func (r *Repository) CreateBanquetSlab(ctx context.Context, b *model.BanquetSlab) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO banquet_slabs (id, event_id, name, amount, quota_id) VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.EventID, b.Name, b.Amount, b.QuotaID)
	if err != nil {
		return fmt.Errorf("failed to insert banquet slab: %w", err)
	}
	return nil
}

func (r *Repository) ListBanquetSlabs(ctx context.Context, eventID string) ([]model.BanquetSlab, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, event_id, name, amount, quota_id FROM banquet_slabs WHERE event_id = $1 ORDER BY name
	`, eventID)
	if err != nil {
		return nil, notFound(err, model.ErrEventNotFound)
	}
	defer rows.Close()

	var out []model.BanquetSlab
	for rows.Next() {
		var b model.BanquetSlab
		if err := rows.Scan(&b.ID, &b.EventID, &b.Name, &b.Amount, &b.QuotaID); err != nil {
			return nil, fmt.Errorf("failed to scan banquet slab: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) CreateBanquetRegistration(ctx context.Context, b *model.BanquetRegistration) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.q(ctx).ExecContext(ctx, `
			INSERT INTO banquet_registrations (id, event_id, user_id, amount, is_paid, quota_held, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, b.ID, b.EventID, b.UserID, b.Amount, b.IsPaid, b.QuotaHeld, b.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert banquet registration: %w", err)
		}
		for _, s := range b.Seats {
			if _, err := r.q(ctx).ExecContext(ctx, `
				INSERT INTO banquet_seats (id, banquet_registration_id, banquet_slab_id, quota_id, guest_name, suspended)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, s.ID, b.ID, s.SlabID, s.QuotaID, s.GuestName, s.Suspended); err != nil {
				return fmt.Errorf("failed to insert banquet seat: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) GetBanquetRegistration(ctx context.Context, id string) (*model.BanquetRegistration, error) {
	var b model.BanquetRegistration
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, event_id, user_id, amount, is_paid, quota_held, created_at FROM banquet_registrations WHERE id = $1
	`, id).Scan(&b.ID, &b.EventID, &b.UserID, &b.Amount, &b.IsPaid, &b.QuotaHeld, &b.CreatedAt)
	if err != nil {
		return nil, notFound(err, model.ErrRecordNotFound)
	}

	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT id, banquet_registration_id, banquet_slab_id, quota_id, guest_name, suspended
		FROM banquet_seats WHERE banquet_registration_id = $1 ORDER BY guest_name, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get banquet seats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s model.BanquetSeat
		if err := rows.Scan(&s.ID, &s.RegistrationID, &s.SlabID, &s.QuotaID, &s.GuestName, &s.Suspended); err != nil {
			return nil, fmt.Errorf("failed to scan banquet seat: %w", err)
		}
		b.Seats = append(b.Seats, s)
	}
	return &b, rows.Err()
}

var itemTables = map[model.LineItemKind]struct{ table, parent string }{
	model.ItemAccompanyPerson:   {"accompany_persons", "accompany_id"},
	model.ItemWorkshopSelection: {"workshop_selections", "workshop_registration_id"},
	model.ItemBanquetSeat:       {"banquet_seats", "banquet_registration_id"},
}

// SetItemSuspended flips one line item under its parent. Capacity is not
// touched.
func (r *Repository) SetItemSuspended(ctx context.Context, kind model.LineItemKind, parentID, itemID string, suspended bool) error {
	t, ok := itemTables[kind]
	if !ok {
		return model.NewValidationError("kind", "unknown line item kind")
	}
	res, err := r.q(ctx).ExecContext(ctx,
		`UPDATE `+t.table+` SET suspended = $3 WHERE id = $1 AND `+t.parent+` = $2`,
		itemID, parentID, suspended)
	if err != nil {
		return notFound(err, model.ErrItemNotFound)
	}
	ok, err = affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrItemNotFound
	}
	return nil
}

var recordTables = map[model.PaymentCategory]string{
	model.CategoryAccompany: "accompanies",
	model.CategoryWorkshop:  "workshop_registrations",
	model.CategoryBanquet:   "banquet_registrations",
}

func (r *Repository) MarkRecordPaid(ctx context.Context, category model.PaymentCategory, id string) (bool, error) {
	table, ok := recordTables[category]
	if !ok {
		return false, model.NewValidationError("category", "record has no paid flag")
	}
	res, err := r.q(ctx).ExecContext(ctx, `UPDATE `+table+` SET is_paid = TRUE WHERE id = $1 AND NOT is_paid`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s paid: %w", category, err)
	}
	return affected(res)
}

func (r *Repository) SetQuotaHeld(ctx context.Context, category model.PaymentCategory, id string, held bool) (bool, error) {
	if category != model.CategoryWorkshop && category != model.CategoryBanquet {
		return false, model.NewValidationError("category", "record holds no quota")
	}
	res, err := r.q(ctx).ExecContext(ctx,
		`UPDATE `+recordTables[category]+` SET quota_held = $2 WHERE id = $1 AND quota_held <> $2`, id, held)
	if err != nil {
		return false, fmt.Errorf("failed to set quota_held on %s: %w", category, err)
	}
	return affected(res)
}
