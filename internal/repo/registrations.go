package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"confdesk/internal/model"
)

const registrationColumns = `
	id, event_id, user_id, slab_id, COALESCE(discount_code_id::text, ''), amount, is_paid,
	COALESCE(registration_number, ''), suspended, answers, created_at, updated_at`

func scanRegistration(row interface{ Scan(...any) error }) (*model.EventRegistration, error) {
	var reg model.EventRegistration
	var answers []byte
	if err := row.Scan(
		&reg.ID, &reg.EventID, &reg.UserID, &reg.SlabID, &reg.DiscountCodeID, &reg.Amount, &reg.IsPaid,
		&reg.RegistrationNumber, &reg.Suspended, &answers, &reg.CreatedAt, &reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	reg.Answers = json.RawMessage(answers)
	return &reg, nil
}

func (r *Repository) CreateRegistration(ctx context.Context, reg *model.EventRegistration) error {
	answers := "{}"
	if len(reg.Answers) > 0 {
		answers = string(reg.Answers)
	}
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO event_registrations (id, event_id, user_id, slab_id, discount_code_id, amount, answers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, reg.ID, reg.EventID, reg.UserID, reg.SlabID, nullIfEmpty(reg.DiscountCodeID), reg.Amount, answers, reg.CreatedAt, reg.UpdatedAt)
	if isUniqueViolation(err) && constraintOf(err) == "event_registrations_event_id_user_id_key" {
		return model.ErrDuplicateRegistration
	}
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *Repository) GetRegistration(ctx context.Context, id string) (*model.EventRegistration, error) {
	reg, err := scanRegistration(r.q(ctx).QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, model.ErrRegistrationNotFound)
	}
	return reg, nil
}

func (r *Repository) GetRegistrationByUser(ctx context.Context, eventID, userID string) (*model.EventRegistration, error) {
	reg, err := scanRegistration(r.q(ctx).QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations WHERE event_id = $1 AND user_id = $2`, eventID, userID))
	if err != nil {
		return nil, notFound(err, model.ErrRegistrationNotFound)
	}
	return reg, nil
}

// FinalizeRegistration sets the number on a registration that has none. A
// number already used elsewhere is model.ErrConflict; the statement runs
// under a savepoint so the caller's transaction survives the collision.
func (r *Repository) FinalizeRegistration(ctx context.Context, id, number string) (bool, error) {
	var done bool
	err := r.savepoint(ctx, "finalize_registration", func() error {
		res, err := r.q(ctx).ExecContext(ctx, `
			UPDATE event_registrations
			SET is_paid = TRUE, registration_number = $2, updated_at = NOW()
			WHERE id = $1 AND registration_number IS NULL
		`, id, number)
		if isUniqueViolation(err) {
			return model.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to finalize registration: %w", err)
		}
		done, err = affected(res)
		return err
	})
	return done, err
}

func (r *Repository) SetRegistrationSuspended(ctx context.Context, id string, suspended bool) error {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE event_registrations SET suspended = $2, updated_at = NOW() WHERE id = $1
	`, id, suspended)
	if err != nil {
		return notFound(err, model.ErrRegistrationNotFound)
	}
	if ok, err := affected(res); err != nil || !ok {
		if err == nil {
			err = model.ErrRegistrationNotFound
		}
		return err
	}
	return nil
}

func (r *Repository) CountAbstracts(ctx context.Context, eventID, userID string) (int, error) {
	var n int
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM abstract_submissions WHERE event_id = $1 AND user_id = $2
	`, eventID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count abstracts: %w", err)
	}
	return n, nil
}

func (r *Repository) CreateAbstract(ctx context.Context, a *model.AbstractSubmission) error {
	categories, err := json.Marshal(a.Categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	if a.Categories == nil {
		categories = []byte("[]")
	}
	return r.savepoint(ctx, "create_abstract", func() error {
		_, err := r.q(ctx).ExecContext(ctx, `
			INSERT INTO abstract_submissions
				(id, event_id, user_id, abstract_number, title, body, word_count, attachment_url, categories, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, a.ID, a.EventID, a.UserID, a.AbstractNumber, a.Title, a.Body, a.WordCount, a.AttachmentURL,
			string(categories), a.Status, a.CreatedAt)
		if isUniqueViolation(err) {
			return model.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert abstract: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetAbstract(ctx context.Context, id string) (*model.AbstractSubmission, error) {
	var a model.AbstractSubmission
	var categories []byte
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, event_id, user_id, abstract_number, title, body, word_count, attachment_url, categories, status, created_at
		FROM abstract_submissions WHERE id = $1
	`, id).Scan(&a.ID, &a.EventID, &a.UserID, &a.AbstractNumber, &a.Title, &a.Body, &a.WordCount,
		&a.AttachmentURL, &categories, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, model.ErrAbstractNotFound)
	}
	if err := json.Unmarshal(categories, &a.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return &a, nil
}

func (r *Repository) SetAbstractStatus(ctx context.Context, id string, status model.AbstractStatus) error {
	res, err := r.q(ctx).ExecContext(ctx, `UPDATE abstract_submissions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return notFound(err, model.ErrAbstractNotFound)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrAbstractNotFound
	}
	return nil
}

func (r *Repository) CreateQuota(ctx context.Context, q *model.Quota) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO quotas (id, owner_type, owner_id, label, capacity, consumed) VALUES ($1, $2, $3, $4, $5, $6)
	`, q.ID, q.OwnerType, q.OwnerID, q.Label, q.Capacity, q.Consumed)
	if err != nil {
		return fmt.Errorf("failed to insert quota: %w", err)
	}
	return nil
}

func (r *Repository) GetQuota(ctx context.Context, id string) (*model.Quota, error) {
	var q model.Quota
	err := r.q(ctx).QueryRowContext(ctx, `
		SELECT id, owner_type, owner_id, label, capacity, consumed FROM quotas WHERE id = $1
	`, id).Scan(&q.ID, &q.OwnerType, &q.OwnerID, &q.Label, &q.Capacity, &q.Consumed)
	if err != nil {
		return nil, notFound(err, model.ErrQuotaNotFound)
	}
	return &q, nil
}

// IncrementQuota is the single conditional update that keeps consumed within
// capacity under concurrency.
func (r *Repository) IncrementQuota(ctx context.Context, id string, n int) (bool, error) {
	var consumed int
	err := r.q(ctx).QueryRowContext(ctx, `
		UPDATE quotas SET consumed = consumed + $2
		WHERE id = $1 AND consumed + $2 <= capacity
		RETURNING consumed
	`, id, n).Scan(&consumed)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, notFound(err, model.ErrQuotaNotFound)
	}
	if _, err := r.GetQuota(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repository) DecrementQuota(ctx context.Context, id string, n int) error {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE quotas SET consumed = GREATEST(consumed - $2, 0) WHERE id = $1
	`, id, n)
	if err != nil {
		return notFound(err, model.ErrQuotaNotFound)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrQuotaNotFound
	}
	return nil
}
