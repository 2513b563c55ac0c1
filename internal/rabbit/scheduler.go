package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ReconcileMessage asks the reconcile worker to look at one payment.
type ReconcileMessage struct {
	PaymentID string    `json:"payment_id"`
	DueAt     time.Time `json:"due_at"`
}

type Publisher interface {
	Publish(ctx context.Context, message []byte, delay time.Duration) error
}

// Scheduler turns reconcile requests into delayed messages.
type Scheduler struct {
	pub Publisher
	now func() time.Time
}

func NewScheduler(pub Publisher) *Scheduler {
	return &Scheduler{pub: pub, now: time.Now}
}

func (s *Scheduler) ScheduleReconcile(ctx context.Context, paymentID string, after time.Duration) error {
	body, err := json.Marshal(ReconcileMessage{PaymentID: paymentID, DueAt: s.now().UTC().Add(after)})
	if err != nil {
		return err
	}
	if err := s.pub.Publish(ctx, body, after); err != nil {
		return fmt.Errorf("schedule reconcile for %s: %w", paymentID, err)
	}
	return nil
}

// DecodeReconcile parses a message body; a malformed body wraps ErrDiscard.
func DecodeReconcile(body []byte) (ReconcileMessage, error) {
	var msg ReconcileMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrDiscard, err)
	}
	if msg.PaymentID == "" {
		return msg, fmt.Errorf("%w: payment_id missing", ErrDiscard)
	}
	return msg, nil
}
