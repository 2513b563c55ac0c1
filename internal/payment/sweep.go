package payment

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"confdesk/internal/model"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Scanned int
	Paid    int
	Failed  int
	Errors  int
}

// Sweep reconciles up to limit payments that have stayed initiated longer
// than the reconcile threshold. One payment failing does not stop the rest.
func (o *Orchestrator) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	stale, err := o.store.ListStalePayments(ctx, o.StaleBefore(), limit)
	if err != nil {
		return SweepResult{}, err
	}

	var paid, failed, errs atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.SweepConcurrency)
	for _, p := range stale {
		id := p.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out, err := o.Reconcile(ctx, id)
			switch {
			case out != nil && out.Status == model.PaymentPaid:
				paid.Add(1)
			case out != nil && out.Status == model.PaymentFailed:
				failed.Add(1)
			case err != nil:
				errs.Add(1)
				o.log.Warn().Err(err).Str("payment_id", id).Msg("sweep: reconcile failed")
			}
			return nil
		})
	}
	werr := g.Wait()

	res := SweepResult{
		Scanned: len(stale),
		Paid:    int(paid.Load()),
		Failed:  int(failed.Load()),
		Errors:  int(errs.Load()),
	}
	if res.Scanned > 0 {
		o.log.Info().
			Int("scanned", res.Scanned).
			Int("paid", res.Paid).
			Int("failed", res.Failed).
			Int("errors", res.Errors).
			Msg("reconciliation sweep finished")
	}
	return res, werr
}
