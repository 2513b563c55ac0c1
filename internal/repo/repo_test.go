package repo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"confdesk/internal/ledger"
	"confdesk/internal/model"
	"confdesk/internal/payment"
	"confdesk/internal/registration"
	"confdesk/internal/testutil"
)

var (
	_ registration.Store = (*Repository)(nil)
	_ payment.Store      = (*Repository)(nil)
	_ ledger.Store       = (*Repository)(nil)
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db := testutil.NewTestDB(t)
	r, err := NewRepository(db, nil)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	if err := r.MigrateUp(testutil.MigrationsDir()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	testutil.TruncateAll(t, db)
	return r
}

func seedEvent(t *testing.T, r *Repository) (*model.Event, *model.RegistrationSlab) {
	t.Helper()
	ctx := context.Background()
	e := &model.Event{
		ID: uuid.NewString(), Name: "Summit", Currency: "INR",
		StartsAt: time.Now().UTC(), EndsAt: time.Now().UTC().Add(48 * time.Hour),
		RegistrationEnabled: true, CreatedAt: time.Now().UTC(),
	}
	if err := r.CreateEvent(ctx, e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	s := &model.RegistrationSlab{ID: uuid.NewString(), EventID: e.ID, Name: "Standard", Amount: decimal.NewFromInt(1000)}
	if err := r.CreateSlab(ctx, s); err != nil {
		t.Fatalf("create slab: %v", err)
	}
	return e, s
}

func newRegistration(e *model.Event, s *model.RegistrationSlab, user string) *model.EventRegistration {
	now := time.Now().UTC()
	return &model.EventRegistration{
		ID: uuid.NewString(), EventID: e.ID, UserID: user, SlabID: s.ID,
		Amount: s.Amount, CreatedAt: now, UpdatedAt: now,
	}
}

func TestEventRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e, _ := seedEvent(t, r)

	got, err := r.GetEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Name != e.Name || !got.RegistrationEnabled {
		t.Fatalf("unexpected event %+v", got)
	}
	if _, err := r.GetEvent(ctx, uuid.NewString()); !errors.Is(err, model.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if _, err := r.GetEvent(ctx, "not-a-uuid"); !errors.Is(err, model.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound for malformed id, got %v", err)
	}
}

func TestRegistrationConstraints(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e, s := seedEvent(t, r)

	first := newRegistration(e, s, "u1")
	if err := r.CreateRegistration(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.CreateRegistration(ctx, newRegistration(e, s, "u1")); !errors.Is(err, model.ErrDuplicateRegistration) {
		t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
	}

	second := newRegistration(e, s, "u2")
	if err := r.CreateRegistration(ctx, second); err != nil {
		t.Fatalf("create second: %v", err)
	}
	if ok, err := r.FinalizeRegistration(ctx, first.ID, "REG000001"); err != nil || !ok {
		t.Fatalf("finalize first: ok=%v err=%v", ok, err)
	}
	if ok, err := r.FinalizeRegistration(ctx, first.ID, "REG000002"); err != nil || ok {
		t.Fatalf("second finalize must be a no-op: ok=%v err=%v", ok, err)
	}

	// A number collision inside a transaction must leave it usable.
	err := r.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.FinalizeRegistration(ctx, second.ID, "REG000001"); !errors.Is(err, model.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		ok, err := r.FinalizeRegistration(ctx, second.ID, "REG000003")
		if err != nil || !ok {
			t.Errorf("retry after collision: ok=%v err=%v", ok, err)
		}
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	got, _ := r.GetRegistration(ctx, second.ID)
	if !got.IsPaid || got.RegistrationNumber != "REG000003" {
		t.Fatalf("unexpected registration %+v", got)
	}
}

func TestIncrementQuotaNeverOversells(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	q := &model.Quota{ID: uuid.NewString(), OwnerType: model.QuotaSponsorTravel, Capacity: 5}
	if err := r.CreateQuota(ctx, q); err != nil {
		t.Fatalf("create quota: %v", err)
	}

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.IncrementQuota(ctx, q.ID, 1)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			if got {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 5 {
		t.Fatalf("expected 5 successful reservations, got %d", ok.Load())
	}
	got, _ := r.GetQuota(ctx, q.ID)
	if got.Consumed != 5 {
		t.Fatalf("expected consumed 5, got %d", got.Consumed)
	}

	if _, err := r.IncrementQuota(ctx, uuid.NewString(), 1); !errors.Is(err, model.ErrQuotaNotFound) {
		t.Fatalf("expected ErrQuotaNotFound, got %v", err)
	}
	if err := r.DecrementQuota(ctx, q.ID, 10); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got, _ := r.GetQuota(ctx, q.ID); got.Consumed != 0 {
		t.Fatalf("consumed must not go below zero, got %d", got.Consumed)
	}
}

func TestTransitionPaymentOnce(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e, s := seedEvent(t, r)
	reg := newRegistration(e, s, "payer")
	if err := r.CreateRegistration(ctx, reg); err != nil {
		t.Fatal(err)
	}
	p := &model.Payment{
		ID: uuid.NewString(), UserID: "payer", EventID: e.ID, Category: model.CategoryEventRegistration,
		RecordID: reg.ID, Amount: reg.Amount, Currency: "INR", Status: model.PaymentInitiated,
		CreatedAt: time.Now().UTC().Add(-time.Hour), UpdatedAt: time.Now().UTC(),
	}
	if err := r.CreatePayment(ctx, p); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if err := r.SetGatewayOrder(ctx, p.ID, "order_1"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	stale, err := r.ListStalePayments(ctx, time.Now().UTC(), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("expected one stale payment, got %d (%v)", len(stale), err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.TransitionPayment(ctx, payment.Transition{
				PaymentID: p.ID, To: model.PaymentPaid, GatewayPaymentID: "pay_1", Signature: "sig",
			})
			if err != nil {
				t.Errorf("transition: %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one transition, got %d", wins.Load())
	}

	got, err := r.GetPaymentByOrderID(ctx, "order_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.PaymentPaid || got.GatewayPaymentID != "pay_1" {
		t.Fatalf("unexpected payment %+v", got)
	}
}

func TestRedeemDiscountRespectsLimit(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e, _ := seedEvent(t, r)
	d := &model.DiscountCode{
		ID: uuid.NewString(), EventID: e.ID, Code: "EARLY", DiscountType: model.DiscountFixed,
		DiscountValue: decimal.NewFromInt(100), RedemptionLimit: 2,
		ValidFrom: time.Now().UTC().Add(-time.Hour), ValidTo: time.Now().UTC().Add(time.Hour),
	}
	if err := r.CreateDiscount(ctx, d); err != nil {
		t.Fatalf("create discount: %v", err)
	}
	for i, want := range []bool{true, true, false} {
		ok, err := r.RedeemDiscount(ctx, d.ID)
		if err != nil || ok != want {
			t.Fatalf("redeem %d: ok=%v err=%v", i, ok, err)
		}
	}
	got, _ := r.GetDiscountByCode(ctx, e.ID, "EARLY")
	if got.Redeemed != 2 {
		t.Fatalf("expected 2 redemptions, got %d", got.Redeemed)
	}
}

func TestSuspendLineItem(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e, s := seedEvent(t, r)
	reg := newRegistration(e, s, "guest")
	if err := r.CreateRegistration(ctx, reg); err != nil {
		t.Fatal(err)
	}
	acc := &model.Accompany{
		ID: uuid.NewString(), EventID: e.ID, RegistrationID: reg.ID, UserID: "guest",
		Amount: decimal.NewFromInt(400), CreatedAt: time.Now().UTC(),
	}
	acc.Persons = []model.AccompanyPerson{{ID: uuid.NewString(), Name: "A"}, {ID: uuid.NewString(), Name: "B"}}
	if err := r.CreateAccompany(ctx, acc); err != nil {
		t.Fatalf("create accompany: %v", err)
	}

	if err := r.SetItemSuspended(ctx, model.ItemAccompanyPerson, acc.ID, acc.Persons[1].ID, true); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := r.SetItemSuspended(ctx, model.ItemAccompanyPerson, uuid.NewString(), acc.Persons[0].ID, true); !errors.Is(err, model.ErrItemNotFound) {
		t.Fatalf("wrong parent must be ErrItemNotFound, got %v", err)
	}
	got, err := r.GetAccompany(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Persons[0].Suspended || !got.Persons[1].Suspended {
		t.Fatalf("unexpected suspension state %+v", got.Persons)
	}
}

func TestAbstractNumberIsUnique(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e, _ := seedEvent(t, r)

	abstract := func(user, number string) *model.AbstractSubmission {
		return &model.AbstractSubmission{
			ID: uuid.NewString(), EventID: e.ID, UserID: user, AbstractNumber: number,
			Title: "On queues", Body: "body", WordCount: 1,
			Status: model.AbstractPending, CreatedAt: time.Now().UTC(),
		}
	}
	if err := r.CreateAbstract(ctx, abstract("u1", "123456")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.CreateAbstract(ctx, abstract("u2", "123456")); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate number, got %v", err)
	}
	if err := r.CreateAbstract(ctx, abstract("u2", "654321")); err != nil {
		t.Fatalf("create with a fresh number: %v", err)
	}
	n, err := r.CountAbstracts(ctx, e.ID, "u2")
	if err != nil || n != 1 {
		t.Fatalf("expected one abstract for u2, got %d (%v)", n, err)
	}
}

func TestOneOpenPaymentPerRecord(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e, s := seedEvent(t, r)
	reg := newRegistration(e, s, "payer")
	if err := r.CreateRegistration(ctx, reg); err != nil {
		t.Fatal(err)
	}
	newPayment := func() *model.Payment {
		now := time.Now().UTC()
		return &model.Payment{
			ID: uuid.NewString(), UserID: "payer", EventID: e.ID, Category: model.CategoryEventRegistration,
			RecordID: reg.ID, Amount: reg.Amount, Currency: "INR", Status: model.PaymentInitiated,
			CreatedAt: now, UpdatedAt: now,
		}
	}

	first := newPayment()
	if err := r.CreatePayment(ctx, first); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if err := r.CreatePayment(ctx, newPayment()); !errors.Is(err, model.ErrPaymentPending) {
		t.Fatalf("expected ErrPaymentPending, got %v", err)
	}
	open, err := r.ListOpenPayments(ctx, model.CategoryEventRegistration, reg.ID)
	if err != nil || len(open) != 1 || open[0].ID != first.ID {
		t.Fatalf("unexpected open payments %+v (%v)", open, err)
	}

	if _, err := r.TransitionPayment(ctx, payment.Transition{
		PaymentID: first.ID, To: model.PaymentFailed, Reason: model.ReasonSuperseded,
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetGatewayOrder(ctx, first.ID, "order_late"); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict binding an order to a failed payment, got %v", err)
	}
	if err := r.CreatePayment(ctx, newPayment()); err != nil {
		t.Fatalf("create after failure: %v", err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	e, s := seedEvent(t, r)
	q := &model.Quota{ID: uuid.NewString(), OwnerType: model.QuotaSponsorTravel, Capacity: 1}
	if err := r.CreateQuota(ctx, q); err != nil {
		t.Fatal(err)
	}
	reg := newRegistration(e, s, "rolled-back")

	err := r.WithTx(ctx, func(ctx context.Context) error {
		if err := r.CreateRegistration(ctx, reg); err != nil {
			return err
		}
		if _, err := r.IncrementQuota(ctx, q.ID, 1); err != nil {
			return err
		}
		return model.ErrQuotaExhausted
	})
	if !errors.Is(err, model.ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	if _, err := r.GetRegistration(ctx, reg.ID); !errors.Is(err, model.ErrRegistrationNotFound) {
		t.Fatalf("expected no registration row, got %v", err)
	}
	if got, _ := r.GetQuota(ctx, q.ID); got.Consumed != 0 {
		t.Fatalf("expected consumed 0, got %d", got.Consumed)
	}
}
