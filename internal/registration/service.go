// Package registration runs the intake flows: event registration, abstract
// submission and the paid add-ons (accompanying persons, workshops, banquet
// seats). Each flow loads what the eligibility gate needs, asks it for a
// decision and only then writes.
package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"confdesk/internal/clock"
	"confdesk/internal/eligibility"
	"confdesk/internal/identifier"
	"confdesk/internal/ledger"
	"confdesk/internal/model"
	"confdesk/internal/payment"
	"confdesk/internal/pricing"
)

// Orders opens gateway orders.
type Orders interface {
	CreateOrder(ctx context.Context, req payment.OrderRequest) (*model.Payment, error)
}

type Service struct {
	store     Store
	records   *Records
	orders    Orders
	ledger    *ledger.Ledger
	allocator *identifier.Allocator
	clock     clock.Clock
	log       *zerolog.Logger
}

func NewService(store Store, records *Records, orders Orders, l *ledger.Ledger, alloc *identifier.Allocator, clk clock.Clock, log *zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Service{
		store:     store,
		records:   records,
		orders:    orders,
		ledger:    l,
		allocator: alloc,
		clock:     clk,
		log:       log,
	}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
}

// Checkout is what an intake flow hands back: the record it created and,
// when money is owed, the initiated payment.
type Checkout struct {
	Category model.PaymentCategory `json:"category"`
	RecordID string                `json:"record_id"`
	Amount   decimal.Decimal       `json:"amount"`
	Payment  *model.Payment        `json:"payment,omitempty"`
}

// PriceAt returns the slab in force for the event at the given instant.
func (s *Service) PriceAt(ctx context.Context, eventID string, at time.Time) (model.RegistrationSlab, error) {
	slabs, err := s.store.ListSlabs(ctx, eventID)
	if err != nil {
		return model.RegistrationSlab{}, err
	}
	slab, ok := pricing.ResolveSlab(slabs, at)
	if !ok {
		return model.RegistrationSlab{}, model.ErrNoActivePricing
	}
	return slab, nil
}

// Quote prices a registration now, applying code when it is not empty.
func (s *Service) Quote(ctx context.Context, eventID, code string) (pricing.Quote, error) {
	slabs, err := s.store.ListSlabs(ctx, eventID)
	if err != nil {
		return pricing.Quote{}, err
	}
	var dc *model.DiscountCode
	if code = pricing.NormalizeCode(code); code != "" {
		dc, err = s.store.GetDiscountByCode(ctx, eventID, code)
		if errors.Is(err, model.ErrDiscountNotFound) {
			return pricing.Quote{}, &model.DiscountRejected{Code: code, Reason: "unknown code"}
		}
		if err != nil {
			return pricing.Quote{}, err
		}
	}
	return pricing.Price(slabs, dc, eventID, s.clock.Now())
}

type RegisterInput struct {
	EventID      string
	DiscountCode string
	Answers      map[string]string
}

// Register admits the caller to the event. A free registration (after
// discount) is finalized at once; otherwise an order is opened.
func (s *Service) Register(ctx context.Context, who Principal, in RegisterInput) (*Checkout, error) {
	event, err := s.store.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	existing, err := s.registrationOf(ctx, in.EventID, who.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.ErrDuplicateRegistration
	}

	if rej := eligibility.Evaluate(eligibility.Attempt{
		Now:            s.clock.Now(),
		Enabled:        event.RegistrationEnabled,
		Feature:        "registration",
		Window:         eligibility.Window{Opens: event.RegistrationOpensAt, Closes: event.RegistrationClosesAt},
		RequiredFields: event.RegistrationRequiredFields,
		Fields:         in.Answers,
	}); rej != nil {
		return nil, rej
	}

	quote, err := s.Quote(ctx, in.EventID, in.DiscountCode)
	if err != nil {
		return nil, err
	}
	answers, err := json.Marshal(in.Answers)
	if err != nil {
		return nil, model.NewValidationError("answers", "cannot be encoded")
	}

	now := s.clock.Now()
	reg := &model.EventRegistration{
		ID:             uuid.NewString(),
		EventID:        in.EventID,
		UserID:         who.UserID,
		SlabID:         quote.Slab.ID,
		DiscountCodeID: quote.DiscountCodeID,
		Amount:         quote.Amount,
		Answers:        answers,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if quote.Free() {
		if err := s.finalizeFree(ctx, reg, pricing.NormalizeCode(in.DiscountCode)); err != nil {
			return nil, err
		}
		return &Checkout{Category: model.CategoryEventRegistration, RecordID: reg.ID, Amount: reg.Amount}, nil
	}

	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	s.log.Info().Str("registration_id", reg.ID).Str("event_id", reg.EventID).Str("amount", reg.Amount.StringFixed(2)).Msg("registration created, awaiting payment")
	return s.checkout(ctx, who, &registrationRecord{rs: s.records, reg: reg})
}

// finalizeFree stores a registration nothing is owed for, gives it a number
// and counts the discount redemption, all in one transaction.
func (s *Service) finalizeFree(ctx context.Context, reg *model.EventRegistration, code string) error {
	return s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateRegistration(ctx, reg); err != nil {
			return err
		}
		if reg.DiscountCodeID != "" {
			ok, err := s.store.RedeemDiscount(ctx, reg.DiscountCodeID)
			if err != nil {
				return err
			}
			if !ok {
				return &model.DiscountRejected{Code: code, Reason: "redemption limit reached"}
			}
		}
		number, err := s.records.finalizeRegistration(ctx, reg.ID)
		if err != nil {
			return err
		}
		reg.IsPaid = true
		reg.RegistrationNumber = number
		return nil
	})
}

func (s *Service) registrationOf(ctx context.Context, eventID, userID string) (*model.EventRegistration, error) {
	reg, err := s.store.GetRegistrationByUser(ctx, eventID, userID)
	if errors.Is(err, model.ErrRegistrationNotFound) {
		return nil, nil
	}
	return reg, err
}

// paidRegistration is the prerequisite add-ons check: only a paid
// registration counts as existing.
func (s *Service) paidRegistration(ctx context.Context, eventID, userID string) (*model.EventRegistration, error) {
	reg, err := s.registrationOf(ctx, eventID, userID)
	if err != nil || reg == nil || !reg.IsPaid {
		return nil, err
	}
	return reg, nil
}

type AbstractInput struct {
	EventID       string
	Title         string
	Body          string
	AttachmentURL string
	Categories    []model.CategorySelection
}

// SubmitAbstract admits an abstract and gives it a unique abstract number.
func (s *Service) SubmitAbstract(ctx context.Context, who Principal, in AbstractInput) (*model.AbstractSubmission, error) {
	event, err := s.store.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	cfg := event.Abstract

	var reg *model.EventRegistration
	if cfg.RequireRegistration {
		if reg, err = s.registrationOf(ctx, in.EventID, who.UserID); err != nil {
			return nil, err
		}
	}
	count, err := s.store.CountAbstracts(ctx, in.EventID, who.UserID)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx, in.EventID)
	if err != nil {
		return nil, err
	}

	words := eligibility.CountWords(in.Body)
	if rej := eligibility.Evaluate(eligibility.Attempt{
		Now:                 s.clock.Now(),
		Enabled:             cfg.Enabled,
		Feature:             "submission",
		RequireRegistration: cfg.RequireRegistration,
		Registration:        reg,
		Window:              eligibility.Window{Opens: cfg.OpensAt, Closes: cfg.ClosesAt},
		MaxPerUser:          cfg.MaxPerUser,
		ExistingCount:       count,
		WordLimit:           cfg.WordLimit,
		WordCount:           words,
		RequireAttachment:   cfg.RequireAttachment,
		AttachmentRef:       in.AttachmentURL,
		RequiredFields:      []string{"title"},
		Fields:              map[string]string{"title": in.Title},
		ActiveCategories:    categories,
		Selected:            in.Categories,
	}); rej != nil {
		return nil, rej
	}

	sub := &model.AbstractSubmission{
		ID:            uuid.NewString(),
		EventID:       in.EventID,
		UserID:        who.UserID,
		Title:         strings.TrimSpace(in.Title),
		Body:          in.Body,
		WordCount:     words,
		AttachmentURL: in.AttachmentURL,
		Categories:    in.Categories,
		Status:        model.AbstractPending,
		CreatedAt:     s.clock.Now(),
	}
	number, err := s.allocator.Allocate(ctx, identifier.AbstractNumber, func(ctx context.Context, candidate string) error {
		sub.AbstractNumber = candidate
		return s.store.CreateAbstract(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	sub.AbstractNumber = number
	s.log.Info().Str("abstract_id", sub.ID).Str("abstract_number", number).Msg("abstract submitted")
	return sub, nil
}

// addonAttempt is the gate input shared by the paid add-ons: they need a
// paid, unsuspended event registration and an open registration window.
func (s *Service) addonAttempt(ctx context.Context, event *model.Event, userID, feature string) (eligibility.Attempt, error) {
	reg, err := s.paidRegistration(ctx, event.ID, userID)
	if err != nil {
		return eligibility.Attempt{}, err
	}
	return eligibility.Attempt{
		Now:                 s.clock.Now(),
		Enabled:             event.RegistrationEnabled,
		Feature:             feature,
		RequireRegistration: true,
		Registration:        reg,
		Window:              eligibility.Window{Opens: event.RegistrationOpensAt, Closes: event.RegistrationClosesAt},
	}, nil
}

type AccompanyInput struct {
	EventID string
	Persons []model.AccompanyPerson
}

func (s *Service) AddAccompany(ctx context.Context, who Principal, in AccompanyInput) (*Checkout, error) {
	event, err := s.store.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if len(in.Persons) == 0 {
		return nil, model.NewValidationError("persons", "at least one person is required")
	}
	attempt, err := s.addonAttempt(ctx, event, who.UserID, "accompany registration")
	if err != nil {
		return nil, err
	}
	attempt.Enabled = attempt.Enabled && event.AccompanyFee.IsPositive()
	if rej := eligibility.Evaluate(attempt); rej != nil {
		return nil, rej
	}

	acc := &model.Accompany{
		ID:             uuid.NewString(),
		EventID:        in.EventID,
		RegistrationID: attempt.Registration.ID,
		UserID:         who.UserID,
		Amount:         event.AccompanyFee.Mul(decimal.NewFromInt(int64(len(in.Persons)))),
		CreatedAt:      s.clock.Now(),
	}
	for _, p := range in.Persons {
		if strings.TrimSpace(p.Name) == "" {
			return nil, model.NewValidationError("persons.name", "is required")
		}
		acc.Persons = append(acc.Persons, model.AccompanyPerson{
			ID:          uuid.NewString(),
			AccompanyID: acc.ID,
			Name:        strings.TrimSpace(p.Name),
			Relation:    p.Relation,
		})
	}
	if err := s.store.CreateAccompany(ctx, acc); err != nil {
		return nil, err
	}
	return s.checkout(ctx, who, &accompanyRecord{rs: s.records, acc: acc})
}

type WorkshopInput struct {
	EventID     string
	WorkshopIDs []string
}

// AddWorkshops reserves one seat in each chosen workshop and opens an order.
// If any workshop is full nothing is reserved.
func (s *Service) AddWorkshops(ctx context.Context, who Principal, in WorkshopInput) (*Checkout, error) {
	event, err := s.store.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if len(in.WorkshopIDs) == 0 {
		return nil, model.NewValidationError("workshop_ids", "at least one workshop is required")
	}
	attempt, err := s.addonAttempt(ctx, event, who.UserID, "workshop registration")
	if err != nil {
		return nil, err
	}
	if rej := eligibility.Evaluate(attempt); rej != nil {
		return nil, rej
	}

	workshops, err := s.store.ListWorkshops(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Workshop, len(workshops))
	for _, w := range workshops {
		byID[w.ID] = w
	}

	reg := &model.WorkshopRegistration{
		ID:        uuid.NewString(),
		EventID:   in.EventID,
		UserID:    who.UserID,
		Amount:    decimal.Zero,
		QuotaHeld: true,
		CreatedAt: s.clock.Now(),
	}
	seen := map[string]bool{}
	var claims []ledger.Claim
	for _, id := range in.WorkshopIDs {
		w, ok := byID[id]
		if !ok {
			return nil, model.NewValidationError("workshop_ids", fmt.Sprintf("unknown workshop %s", id))
		}
		if seen[id] {
			return nil, model.NewValidationError("workshop_ids", fmt.Sprintf("workshop %s chosen twice", id))
		}
		seen[id] = true
		reg.Amount = reg.Amount.Add(w.Amount)
		reg.Selections = append(reg.Selections, model.WorkshopSelection{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			WorkshopID:     w.ID,
			QuotaID:        w.QuotaID,
		})
		claims = append(claims, ledger.Claim{QuotaID: w.QuotaID, N: 1})
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateWorkshopRegistration(ctx, reg); err != nil {
			return err
		}
		return s.ledger.ReserveAll(ctx, claims)
	})
	if err != nil {
		return nil, err
	}
	rec := &workshopRecord{rs: s.records, reg: reg}
	if !reg.Amount.IsPositive() {
		return s.settleFree(ctx, rec)
	}
	return s.checkout(ctx, who, rec)
}

type BanquetInput struct {
	EventID string
	Seats   []model.BanquetSeat
}

// AddBanquet reserves one slot per seat in the chosen banquet slabs.
func (s *Service) AddBanquet(ctx context.Context, who Principal, in BanquetInput) (*Checkout, error) {
	event, err := s.store.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if len(in.Seats) == 0 {
		return nil, model.NewValidationError("seats", "at least one seat is required")
	}
	attempt, err := s.addonAttempt(ctx, event, who.UserID, "banquet registration")
	if err != nil {
		return nil, err
	}
	if rej := eligibility.Evaluate(attempt); rej != nil {
		return nil, rej
	}

	slabs, err := s.store.ListBanquetSlabs(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.BanquetSlab, len(slabs))
	for _, b := range slabs {
		byID[b.ID] = b
	}

	reg := &model.BanquetRegistration{
		ID:        uuid.NewString(),
		EventID:   in.EventID,
		UserID:    who.UserID,
		Amount:    decimal.Zero,
		QuotaHeld: true,
		CreatedAt: s.clock.Now(),
	}
	var claims []ledger.Claim
	for _, seat := range in.Seats {
		slab, ok := byID[seat.SlabID]
		if !ok {
			return nil, model.NewValidationError("seats.banquet_slab_id", fmt.Sprintf("unknown banquet slab %s", seat.SlabID))
		}
		if strings.TrimSpace(seat.GuestName) == "" {
			return nil, model.NewValidationError("seats.guest_name", "is required")
		}
		reg.Amount = reg.Amount.Add(slab.Amount)
		reg.Seats = append(reg.Seats, model.BanquetSeat{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			SlabID:         slab.ID,
			QuotaID:        slab.QuotaID,
			GuestName:      strings.TrimSpace(seat.GuestName),
		})
		claims = append(claims, ledger.Claim{QuotaID: slab.QuotaID, N: 1})
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateBanquetRegistration(ctx, reg); err != nil {
			return err
		}
		return s.ledger.ReserveAll(ctx, claims)
	})
	if err != nil {
		return nil, err
	}
	rec := &banquetRecord{rs: s.records, reg: reg}
	if !reg.Amount.IsPositive() {
		return s.settleFree(ctx, rec)
	}
	return s.checkout(ctx, who, rec)
}

// NewOrder opens a fresh order for an unpaid record the caller owns, for
// example after an earlier payment failed. Capacity released by that
// failure is reserved again first. An order still open at the gateway blocks a new one
// with model.ErrPaymentPending.
func (s *Service) NewOrder(ctx context.Context, who Principal, category model.PaymentCategory, recordID string) (*Checkout, error) {
	if !category.Valid() {
		return nil, model.NewValidationError("category", "unknown payment category")
	}
	rec, err := s.records.load(ctx, category, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Owner() != who.UserID {
		return nil, model.ErrRecordNotFound
	}
	if rec.IsPaid() {
		return nil, model.ErrAlreadyPaid
	}
	if err := rec.Reacquire(ctx); err != nil {
		return nil, err
	}
	return s.checkout(ctx, who, rec)
}

func (s *Service) checkout(ctx context.Context, who Principal, rec payable) (*Checkout, error) {
	out := &Checkout{Category: rec.Category(), RecordID: rec.RecordID(), Amount: rec.Amount()}
	p, err := s.orders.CreateOrder(ctx, payment.OrderRequest{
		UserID:         who.UserID,
		Email:          who.Email,
		EventID:        rec.EventID(),
		Category:       rec.Category(),
		RecordID:       rec.RecordID(),
		Amount:         rec.Amount(),
		DiscountCodeID: rec.DiscountCodeID(),
	})
	out.Payment = p
	if err != nil {
		return out, err
	}
	return out, nil
}

// settleFree marks an add-on paid when nothing is owed for it.
func (s *Service) settleFree(ctx context.Context, rec payable) (*Checkout, error) {
	if err := rec.MarkPaid(ctx, model.Payment{}); err != nil {
		return nil, err
	}
	return &Checkout{Category: rec.Category(), RecordID: rec.RecordID(), Amount: rec.Amount()}, nil
}
