// Package ledger accounts for finite capacity (sponsor quotas, workshop
// seats, banquet slots) and for per-line-item suspension.
//
// Capacity is only ever changed through Store.IncrementQuota and
// Store.DecrementQuota, which the storage layer implements as single
// conditional updates. Nothing here reads a counter and writes it back.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"confdesk/internal/model"
)

type Store interface {
	// IncrementQuota adds n to consumed only if consumed+n <= capacity and
	// reports whether the row was updated. Missing quotas are
	// model.ErrQuotaNotFound.
	IncrementQuota(ctx context.Context, quotaID string, n int) (bool, error)
	// DecrementQuota subtracts n, never going below zero.
	DecrementQuota(ctx context.Context, quotaID string, n int) error
	SetItemSuspended(ctx context.Context, kind model.LineItemKind, parentID, itemID string, suspended bool) error
}

// Claim is a request for n units of one quota.
type Claim struct {
	QuotaID string
	N       int
}

type Ledger struct {
	store Store
	log   *zerolog.Logger
}

func New(store Store, log *zerolog.Logger) *Ledger {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Ledger{store: store, log: log}
}

// Reserve consumes n units of quotaID or fails with model.ErrQuotaExhausted.
func (l *Ledger) Reserve(ctx context.Context, quotaID string, n int) error {
	if n <= 0 {
		return model.NewValidationError("n", "must be positive")
	}
	ok, err := l.store.IncrementQuota(ctx, quotaID, n)
	if err != nil {
		return fmt.Errorf("reserve quota %s: %w", quotaID, err)
	}
	if !ok {
		l.log.Info().Str("quota_id", quotaID).Int("n", n).Msg("quota exhausted")
		return fmt.Errorf("quota %s: %w", quotaID, model.ErrQuotaExhausted)
	}
	l.log.Debug().Str("quota_id", quotaID).Int("n", n).Msg("quota reserved")
	return nil
}

// ReserveAll reserves every claim or none: when one fails, the claims
// already taken are released before the error is returned.
func (l *Ledger) ReserveAll(ctx context.Context, claims []Claim) error {
	taken := make([]Claim, 0, len(claims))
	for _, c := range merge(claims) {
		if err := l.Reserve(ctx, c.QuotaID, c.N); err != nil {
			if rerr := l.ReleaseAll(ctx, taken); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
		taken = append(taken, c)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, quotaID string, n int) error {
	if n <= 0 {
		return model.NewValidationError("n", "must be positive")
	}
	if err := l.store.DecrementQuota(ctx, quotaID, n); err != nil {
		return fmt.Errorf("release quota %s: %w", quotaID, err)
	}
	l.log.Debug().Str("quota_id", quotaID).Int("n", n).Msg("quota released")
	return nil
}

// ReleaseAll releases every claim and joins the errors of those that failed.
func (l *Ledger) ReleaseAll(ctx context.Context, claims []Claim) error {
	var errs []error
	for _, c := range merge(claims) {
		if err := l.Release(ctx, c.QuotaID, c.N); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Suspend flags one line item. Capacity is left alone.
func (l *Ledger) Suspend(ctx context.Context, kind model.LineItemKind, parentID, itemID string) error {
	return l.setSuspended(ctx, kind, parentID, itemID, true)
}

func (l *Ledger) Unsuspend(ctx context.Context, kind model.LineItemKind, parentID, itemID string) error {
	return l.setSuspended(ctx, kind, parentID, itemID, false)
}

func (l *Ledger) setSuspended(ctx context.Context, kind model.LineItemKind, parentID, itemID string, v bool) error {
	if !kind.Valid() {
		return model.NewValidationError("kind", "unknown line item kind")
	}
	if err := l.store.SetItemSuspended(ctx, kind, parentID, itemID, v); err != nil {
		return fmt.Errorf("suspend %s %s: %w", kind, itemID, err)
	}
	l.log.Info().
		Str("kind", string(kind)).
		Str("parent_id", parentID).
		Str("item_id", itemID).
		Bool("suspended", v).
		Msg("line item suspension changed")
	return nil
}

// merge folds claims on the same quota together, keeping first-seen order.
func merge(claims []Claim) []Claim {
	idx := make(map[string]int, len(claims))
	out := make([]Claim, 0, len(claims))
	for _, c := range claims {
		if i, ok := idx[c.QuotaID]; ok {
			out[i].N += c.N
			continue
		}
		idx[c.QuotaID] = len(out)
		out = append(out, c)
	}
	return out
}
