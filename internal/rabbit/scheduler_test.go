package rabbit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type capturePublisher struct {
	body  []byte
	delay time.Duration
	err   error
}

func (c *capturePublisher) Publish(_ context.Context, body []byte, delay time.Duration) error {
	c.body, c.delay = body, delay
	return c.err
}

func TestScheduleReconcile(t *testing.T) {
	pub := &capturePublisher{}
	s := NewScheduler(pub)
	fixed := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.ScheduleReconcile(context.Background(), "pay-1", 30*time.Minute); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if pub.delay != 30*time.Minute {
		t.Fatalf("expected 30m delay, got %s", pub.delay)
	}
	msg, err := DecodeReconcile(pub.body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.PaymentID != "pay-1" || !msg.DueAt.Equal(fixed.Add(30*time.Minute)) {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestScheduleReconcilePublishError(t *testing.T) {
	boom := errors.New("broker down")
	s := NewScheduler(&capturePublisher{err: boom})
	if err := s.ScheduleReconcile(context.Background(), "pay-1", time.Minute); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}

func TestDecodeReconcileDiscardsGarbage(t *testing.T) {
	for _, body := range []string{"not json", `{}`} {
		if _, err := DecodeReconcile([]byte(body)); !errors.Is(err, ErrDiscard) {
			t.Fatalf("%q: expected ErrDiscard, got %v", body, err)
		}
	}
}
