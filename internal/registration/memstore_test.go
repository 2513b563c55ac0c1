package registration

import (
	"context"
	"sync"
	"time"

	"confdesk/internal/model"
	"confdesk/internal/payment"
)

type txKey struct{}

// txLog collects undo steps for the writes of one transaction.
type txLog struct {
	undo []func()
}

// memStore is an in-memory stand-in for the Postgres repository. Each
// method is atomic on its own. WithTx serializes whole transactions and
// replays the undo log in reverse when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	events      map[string]*model.Event
	slabs       map[string][]model.RegistrationSlab
	discounts   map[string]*model.DiscountCode
	categories  map[string][]model.Category
	quotas      map[string]*model.Quota
	regs        map[string]*model.EventRegistration
	regNumbers  map[string]string
	abstracts   map[string]*model.AbstractSubmission
	absNumbers  map[string]string
	accompanies map[string]*model.Accompany
	workshops   map[string][]model.Workshop
	wregs       map[string]*model.WorkshopRegistration
	bslabs      map[string][]model.BanquetSlab
	bregs       map[string]*model.BanquetRegistration
	payments    map[string]*model.Payment
	byOrder     map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		events:      map[string]*model.Event{},
		slabs:       map[string][]model.RegistrationSlab{},
		discounts:   map[string]*model.DiscountCode{},
		categories:  map[string][]model.Category{},
		quotas:      map[string]*model.Quota{},
		regs:        map[string]*model.EventRegistration{},
		regNumbers:  map[string]string{},
		abstracts:   map[string]*model.AbstractSubmission{},
		absNumbers:  map[string]string{},
		accompanies: map[string]*model.Accompany{},
		workshops:   map[string][]model.Workshop{},
		wregs:       map[string]*model.WorkshopRegistration{},
		bslabs:      map[string][]model.BanquetSlab{},
		bregs:       map[string]*model.BanquetRegistration{},
		payments:    map[string]*model.Payment{},
		byOrder:     map[string]string{},
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	tx := &txLog{}
	err := fn(context.WithValue(ctx, txKey{}, tx))
	if err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// onRollback registers undo to run if the surrounding transaction fails.
// Callers hold s.mu.
func onRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(txKey{}).(*txLog); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (s *memStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *memStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) CreateSlab(_ context.Context, sl *model.RegistrationSlab) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slabs[sl.EventID] = append(s.slabs[sl.EventID], *sl)
	return nil
}

func (s *memStore) ListSlabs(_ context.Context, eventID string) ([]model.RegistrationSlab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RegistrationSlab(nil), s.slabs[eventID]...), nil
}

func (s *memStore) CreateDiscount(_ context.Context, d *model.DiscountCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.discounts[d.ID] = &cp
	return nil
}

func (s *memStore) GetDiscountByCode(_ context.Context, eventID, code string) (*model.DiscountCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.discounts {
		if d.EventID == eventID && d.Code == code {
			cp := *d
			return &cp, nil
		}
	}
	return nil, model.ErrDiscountNotFound
}

func (s *memStore) RedeemDiscount(ctx context.Context, codeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discounts[codeID]
	if !ok {
		return false, model.ErrDiscountNotFound
	}
	if d.Redeemed >= d.RedemptionLimit {
		return false, nil
	}
	d.Redeemed++
	onRollback(ctx, func() { d.Redeemed-- })
	return true, nil
}

func (s *memStore) CreateCategory(_ context.Context, c *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.EventID] = append(s.categories[c.EventID], *c)
	return nil
}

func (s *memStore) ListCategories(_ context.Context, eventID string) ([]model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Category(nil), s.categories[eventID]...), nil
}

func (s *memStore) CreateQuota(ctx context.Context, q *model.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	s.quotas[q.ID] = &cp
	onRollback(ctx, func() { delete(s.quotas, q.ID) })
	return nil
}

func (s *memStore) GetQuota(_ context.Context, id string) (*model.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[id]
	if !ok {
		return nil, model.ErrQuotaNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *memStore) IncrementQuota(ctx context.Context, id string, n int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[id]
	if !ok {
		return false, model.ErrQuotaNotFound
	}
	if q.Consumed+n > q.Capacity {
		return false, nil
	}
	q.Consumed += n
	onRollback(ctx, func() { q.Consumed -= n })
	return true, nil
}

func (s *memStore) DecrementQuota(ctx context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[id]
	if !ok {
		return model.ErrQuotaNotFound
	}
	prev := q.Consumed
	q.Consumed = max(q.Consumed-n, 0)
	freed := prev - q.Consumed
	onRollback(ctx, func() { q.Consumed += freed })
	return nil
}

func (s *memStore) SetItemSuspended(ctx context.Context, kind model.LineItemKind, parentID, itemID string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case model.ItemBanquetSeat:
		if r, ok := s.bregs[parentID]; ok {
			for i := range r.Seats {
				if r.Seats[i].ID == itemID {
					item, prev := &r.Seats[i], r.Seats[i].Suspended
					item.Suspended = v
					onRollback(ctx, func() { item.Suspended = prev })
					return nil
				}
			}
		}
	case model.ItemWorkshopSelection:
		if r, ok := s.wregs[parentID]; ok {
			for i := range r.Selections {
				if r.Selections[i].ID == itemID {
					item, prev := &r.Selections[i], r.Selections[i].Suspended
					item.Suspended = v
					onRollback(ctx, func() { item.Suspended = prev })
					return nil
				}
			}
		}
	case model.ItemAccompanyPerson:
		if r, ok := s.accompanies[parentID]; ok {
			for i := range r.Persons {
				if r.Persons[i].ID == itemID {
					item, prev := &r.Persons[i], r.Persons[i].Suspended
					item.Suspended = v
					onRollback(ctx, func() { item.Suspended = prev })
					return nil
				}
			}
		}
	}
	return model.ErrItemNotFound
}

func (s *memStore) CreateRegistration(ctx context.Context, r *model.EventRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.regs {
		if existing.EventID == r.EventID && existing.UserID == r.UserID {
			return model.ErrDuplicateRegistration
		}
	}
	cp := *r
	s.regs[r.ID] = &cp
	onRollback(ctx, func() { delete(s.regs, r.ID) })
	return nil
}

func (s *memStore) GetRegistration(_ context.Context, id string) (*model.EventRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return nil, model.ErrRegistrationNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) GetRegistrationByUser(_ context.Context, eventID, userID string) (*model.EventRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.regs {
		if r.EventID == eventID && r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, model.ErrRegistrationNotFound
}

func (s *memStore) FinalizeRegistration(ctx context.Context, id, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return false, model.ErrRegistrationNotFound
	}
	if r.RegistrationNumber != "" {
		return false, nil
	}
	if _, taken := s.regNumbers[number]; taken {
		return false, model.ErrConflict
	}
	s.regNumbers[number] = id
	r.RegistrationNumber = number
	r.IsPaid = true
	onRollback(ctx, func() {
		delete(s.regNumbers, number)
		r.RegistrationNumber = ""
		r.IsPaid = false
	})
	return true, nil
}

func (s *memStore) SetRegistrationSuspended(ctx context.Context, id string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return model.ErrRegistrationNotFound
	}
	prev := r.Suspended
	r.Suspended = v
	onRollback(ctx, func() { r.Suspended = prev })
	return nil
}

func (s *memStore) CountAbstracts(_ context.Context, eventID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.abstracts {
		if a.EventID == eventID && a.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateAbstract(ctx context.Context, a *model.AbstractSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.absNumbers[a.AbstractNumber]; taken {
		return model.ErrConflict
	}
	s.absNumbers[a.AbstractNumber] = a.ID
	cp := *a
	s.abstracts[a.ID] = &cp
	onRollback(ctx, func() {
		delete(s.absNumbers, a.AbstractNumber)
		delete(s.abstracts, a.ID)
	})
	return nil
}

func (s *memStore) SetAbstractStatus(ctx context.Context, id string, status model.AbstractStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.abstracts[id]
	if !ok {
		return model.ErrAbstractNotFound
	}
	prev := a.Status
	a.Status = status
	onRollback(ctx, func() { a.Status = prev })
	return nil
}

func (s *memStore) CreateAccompany(ctx context.Context, a *model.Accompany) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	cp.Persons = append([]model.AccompanyPerson(nil), a.Persons...)
	s.accompanies[a.ID] = &cp
	onRollback(ctx, func() { delete(s.accompanies, a.ID) })
	return nil
}

func (s *memStore) GetAccompany(_ context.Context, id string) (*model.Accompany, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accompanies[id]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) CreateWorkshop(_ context.Context, w *model.Workshop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workshops[w.EventID] = append(s.workshops[w.EventID], *w)
	return nil
}

func (s *memStore) ListWorkshops(_ context.Context, eventID string) ([]model.Workshop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Workshop(nil), s.workshops[eventID]...), nil
}

func (s *memStore) CreateWorkshopRegistration(ctx context.Context, w *model.WorkshopRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	cp.Selections = append([]model.WorkshopSelection(nil), w.Selections...)
	s.wregs[w.ID] = &cp
	onRollback(ctx, func() { delete(s.wregs, w.ID) })
	return nil
}

func (s *memStore) GetWorkshopRegistration(_ context.Context, id string) (*model.WorkshopRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wregs[id]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	cp := *w
	cp.Selections = append([]model.WorkshopSelection(nil), w.Selections...)
	return &cp, nil
}

func (s *memStore) CreateBanquetSlab(_ context.Context, b *model.BanquetSlab) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bslabs[b.EventID] = append(s.bslabs[b.EventID], *b)
	return nil
}

func (s *memStore) ListBanquetSlabs(_ context.Context, eventID string) ([]model.BanquetSlab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.BanquetSlab(nil), s.bslabs[eventID]...), nil
}

func (s *memStore) CreateBanquetRegistration(ctx context.Context, b *model.BanquetRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	cp.Seats = append([]model.BanquetSeat(nil), b.Seats...)
	s.bregs[b.ID] = &cp
	onRollback(ctx, func() { delete(s.bregs, b.ID) })
	return nil
}

func (s *memStore) GetBanquetRegistration(_ context.Context, id string) (*model.BanquetRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bregs[id]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	cp := *b
	cp.Seats = append([]model.BanquetSeat(nil), b.Seats...)
	return &cp, nil
}

func (s *memStore) MarkRecordPaid(ctx context.Context, category model.PaymentCategory, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var paid *bool
	switch category {
	case model.CategoryAccompany:
		if r, ok := s.accompanies[id]; ok {
			paid = &r.IsPaid
		}
	case model.CategoryWorkshop:
		if r, ok := s.wregs[id]; ok {
			paid = &r.IsPaid
		}
	case model.CategoryBanquet:
		if r, ok := s.bregs[id]; ok {
			paid = &r.IsPaid
		}
	}
	if paid == nil {
		return false, model.ErrRecordNotFound
	}
	if *paid {
		return false, nil
	}
	*paid = true
	onRollback(ctx, func() { *paid = false })
	return true, nil
}

func (s *memStore) SetQuotaHeld(ctx context.Context, category model.PaymentCategory, id string, held bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var flag *bool
	switch category {
	case model.CategoryWorkshop:
		if r, ok := s.wregs[id]; ok {
			flag = &r.QuotaHeld
		}
	case model.CategoryBanquet:
		if r, ok := s.bregs[id]; ok {
			flag = &r.QuotaHeld
		}
	}
	if flag == nil {
		return false, model.ErrRecordNotFound
	}
	if *flag == held {
		return false, nil
	}
	*flag = held
	onRollback(ctx, func() { *flag = !held })
	return true, nil
}

func (s *memStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, open := range s.payments {
		if open.Status == model.PaymentInitiated && open.Category == p.Category && open.RecordID == p.RecordID {
			return model.ErrPaymentPending
		}
	}
	cp := *p
	s.payments[p.ID] = &cp
	onRollback(ctx, func() { delete(s.payments, p.ID) })
	return nil
}

func (s *memStore) SetGatewayOrder(ctx context.Context, paymentID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok || p.Status != model.PaymentInitiated {
		return model.ErrConflict
	}
	p.GatewayOrderID = orderID
	s.byOrder[orderID] = paymentID
	onRollback(ctx, func() {
		p.GatewayOrderID = ""
		delete(s.byOrder, orderID)
	})
	return nil
}

func (s *memStore) GetPayment(_ context.Context, id string) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, model.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetPaymentByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	s.mu.Lock()
	id, ok := s.byOrder[orderID]
	s.mu.Unlock()
	if !ok {
		return nil, model.ErrPaymentNotFound
	}
	return s.GetPayment(ctx, id)
}

func (s *memStore) TransitionPayment(ctx context.Context, t payment.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[t.PaymentID]
	if !ok {
		return false, model.ErrPaymentNotFound
	}
	if p.Status != model.PaymentInitiated {
		return false, nil
	}
	prev := *p
	p.Status = t.To
	p.GatewayPaymentID = t.GatewayPaymentID
	p.GatewaySignature = t.Signature
	p.FailureReason = t.Reason
	onRollback(ctx, func() { *p = prev })
	return true, nil
}

func (s *memStore) ListStalePayments(_ context.Context, before time.Time, limit int) ([]model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.payments {
		if p.Status == model.PaymentInitiated && p.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) ListOpenPayments(_ context.Context, category model.PaymentCategory, recordID string) ([]model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.payments {
		if p.Status == model.PaymentInitiated && p.Category == category && p.RecordID == recordID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) MarkDiscountOverflow(ctx context.Context, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.payments[paymentID]
	p.DiscountOverflow = true
	onRollback(ctx, func() { p.DiscountOverflow = false })
	return nil
}

// addonRows counts the workshop and banquet registrations userID owns.
func (s *memStore) addonRows(userID string) (workshops, banquets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wregs {
		if w.UserID == userID {
			workshops++
		}
	}
	for _, b := range s.bregs {
		if b.UserID == userID {
			banquets++
		}
	}
	return workshops, banquets
}

// putPayment stores p as is, bypassing the one open payment per record rule.
func (s *memStore) putPayment(p model.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = &p
}
