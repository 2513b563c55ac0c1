package consumerWorker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"

	"confdesk/internal/model"
	"confdesk/internal/payment"
	"confdesk/internal/rabbit"
)

type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, []byte) error) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, paymentID string) (*model.Payment, error)
	Sweep(ctx context.Context, limit int) (payment.SweepResult, error)
}

type Config struct {
	// SweepInterval is how often stale initiated payments are swept; zero
	// disables the sweep.
	SweepInterval time.Duration
	SweepBatch    int
}

// Reader runs the reconcile side of payments: it consumes delayed reconcile
// messages and periodically sweeps payments whose message was lost.
type Reader struct {
	consumer   Consumer
	reconciler Reconciler
	cfg        Config
	done       chan struct{}
	cancel     context.CancelFunc
}

func NewReader(consumer Consumer, reconciler Reconciler, cfg Config) *Reader {
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Reader{
		consumer:   consumer,
		reconciler: reconciler,
		cfg:        cfg,
		done:       make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("reconcile reader started")

	go func() {
		defer close(r.done)

		sweepDone := make(chan struct{})
		go func() {
			defer close(sweepDone)
			r.sweepLoop(cctx)
		}()

		if r.consumer != nil {
			if err := r.consumer.Consume(cctx, r.handle); err != nil {
				zlog.Logger.Error().Err(err).Msg("reconcile consumer stopped")
			}
		}
		<-cctx.Done()
		<-sweepDone
		zlog.Logger.Info().Msg("reconcile reader stopped by context")
	}()
}

func (r *Reader) handle(ctx context.Context, body []byte) error {
	msg, err := rabbit.DecodeReconcile(body)
	if err != nil {
		zlog.Logger.Error().Err(err).Msgf("failed to decode reconcile message: %s", string(body))
		return err
	}

	p, err := r.reconciler.Reconcile(ctx, msg.PaymentID)
	switch {
	case err == nil:
		zlog.Logger.Info().
			Str("payment_id", p.ID).
			Str("status", string(p.Status)).
			Msg("payment reconciled")
		return nil
	case ctx.Err() != nil:
		return err
	case errors.Is(err, model.ErrPaymentNotFound):
		return fmt.Errorf("%w: %v", rabbit.ErrDiscard, err)
	case p != nil && p.Status == model.PaymentFailed:
		// Captured but refused; the orchestrator logged it for a refund.
		zlog.Logger.Warn().Err(err).Str("payment_id", p.ID).Msg("payment reconciled as failed")
		return nil
	default:
		// Left initiated; the sweep retries it.
		zlog.Logger.Warn().Err(err).Str("payment_id", msg.PaymentID).Msg("reconcile failed, leaving for sweep")
		return nil
	}
}

func (r *Reader) sweepLoop(ctx context.Context) {
	if r.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := r.reconciler.Sweep(ctx, r.cfg.SweepBatch)
			if err != nil {
				zlog.Logger.Error().Err(err).Msg("payment sweep failed")
				continue
			}
			if res.Scanned > 0 {
				zlog.Logger.Info().
					Int("scanned", res.Scanned).
					Int("paid", res.Paid).
					Int("failed", res.Failed).
					Int("errors", res.Errors).
					Msg("payment sweep finished")
			}
		}
	}
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
