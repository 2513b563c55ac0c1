package consumerWorker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"confdesk/internal/model"
	"confdesk/internal/payment"
	"confdesk/internal/rabbit"
)

type fakeReconciler struct {
	mu     sync.Mutex
	seen   []string
	err    error
	out    *model.Payment
	sweeps atomic.Int32
}

func (f *fakeReconciler) Reconcile(_ context.Context, id string) (*model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, id)
	if f.err != nil {
		return f.out, f.err
	}
	return &model.Payment{ID: id, Status: model.PaymentFailed}, nil
}

func (f *fakeReconciler) Sweep(context.Context, int) (payment.SweepResult, error) {
	f.sweeps.Add(1)
	return payment.SweepResult{}, nil
}

// chanConsumer feeds bodies to the handler and records the results.
type chanConsumer struct {
	bodies  chan []byte
	results chan error
}

func (c *chanConsumer) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-c.bodies:
			c.results <- handler(ctx, b)
		}
	}
}

func TestReaderReconcilesMessages(t *testing.T) {
	rec := &fakeReconciler{}
	cons := &chanConsumer{bodies: make(chan []byte), results: make(chan error, 4)}
	r := NewReader(cons, rec, Config{})
	r.Start(context.Background())
	defer r.Stop()

	cons.bodies <- []byte(`{"payment_id":"pay-1"}`)
	if err := <-cons.results; err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
	cons.bodies <- []byte(`garbage`)
	if err := <-cons.results; !errors.Is(err, rabbit.ErrDiscard) {
		t.Fatalf("expected discard, got %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.seen) != 1 || rec.seen[0] != "pay-1" {
		t.Fatalf("unexpected reconcile calls %v", rec.seen)
	}
}

func TestReaderHandleErrors(t *testing.T) {
	r := NewReader(nil, &fakeReconciler{err: model.ErrPaymentNotFound}, Config{})
	if err := r.handle(context.Background(), []byte(`{"payment_id":"gone"}`)); !errors.Is(err, rabbit.ErrDiscard) {
		t.Fatalf("missing payment must be discarded, got %v", err)
	}

	r = NewReader(nil, &fakeReconciler{err: &model.GatewayError{Op: "fetch payments", Err: errors.New("down")}}, Config{})
	if err := r.handle(context.Background(), []byte(`{"payment_id":"p"}`)); err != nil {
		t.Fatalf("gateway failure is left for the sweep, got %v", err)
	}

	refused := &model.Payment{ID: "p", Status: model.PaymentFailed, FailureReason: model.ReasonCapacityLost}
	r = NewReader(nil, &fakeReconciler{err: model.ErrQuotaExhausted, out: refused}, Config{})
	if err := r.handle(context.Background(), []byte(`{"payment_id":"p"}`)); err != nil {
		t.Fatalf("refused capture is final and must be acked, got %v", err)
	}
}

func TestReaderSweepsPeriodically(t *testing.T) {
	rec := &fakeReconciler{}
	r := NewReader(nil, rec, Config{SweepInterval: 5 * time.Millisecond})
	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for rec.sweeps.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	if rec.sweeps.Load() < 2 {
		t.Fatalf("expected at least two sweeps, got %d", rec.sweeps.Load())
	}
}
