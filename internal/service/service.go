package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"confdesk/internal/dto"
	"confdesk/internal/model"
	"confdesk/internal/pricing"
	"confdesk/internal/registration"
	"confdesk/pkg/validator"
)

type Service interface {
	Health(ctx *ginext.Context)

	Pricing(ctx *ginext.Context)
	CheckDiscount(ctx *ginext.Context)
	Register(ctx *ginext.Context)
	SubmitAbstract(ctx *ginext.Context)
	AddAccompany(ctx *ginext.Context)
	AddWorkshops(ctx *ginext.Context)
	AddBanquet(ctx *ginext.Context)
	NewOrder(ctx *ginext.Context)
	Verify(ctx *ginext.Context)
	GetPayment(ctx *ginext.Context)

	Admin
}

// Core is the part of the registration service the handlers drive.
type Core interface {
	PriceAt(ctx context.Context, eventID string, at time.Time) (model.RegistrationSlab, error)
	Quote(ctx context.Context, eventID, code string) (pricing.Quote, error)
	Register(ctx context.Context, who registration.Principal, in registration.RegisterInput) (*registration.Checkout, error)
	SubmitAbstract(ctx context.Context, who registration.Principal, in registration.AbstractInput) (*model.AbstractSubmission, error)
	AddAccompany(ctx context.Context, who registration.Principal, in registration.AccompanyInput) (*registration.Checkout, error)
	AddWorkshops(ctx context.Context, who registration.Principal, in registration.WorkshopInput) (*registration.Checkout, error)
	AddBanquet(ctx context.Context, who registration.Principal, in registration.BanquetInput) (*registration.Checkout, error)
	NewOrder(ctx context.Context, who registration.Principal, category model.PaymentCategory, recordID string) (*registration.Checkout, error)

	CreateEvent(ctx context.Context, e *model.Event) error
	AddSlab(ctx context.Context, slab *model.RegistrationSlab) error
	AddDiscount(ctx context.Context, d *model.DiscountCode) error
	AddCategory(ctx context.Context, c *model.Category) error
	AddWorkshop(ctx context.Context, w *model.Workshop, seats int) error
	AddBanquetSlab(ctx context.Context, b *model.BanquetSlab, slots int) error
	CreateQuota(ctx context.Context, q *model.Quota) error
	GetQuota(ctx context.Context, id string) (*model.Quota, error)
	ReserveQuota(ctx context.Context, quotaID string, n int) (*model.Quota, error)
	ReleaseQuota(ctx context.Context, quotaID string, n int) (*model.Quota, error)
	SetItemSuspended(ctx context.Context, kind model.LineItemKind, parentID, itemID string, suspended bool) error
	SetRegistrationSuspended(ctx context.Context, id string, suspended bool) error
	SetAbstractStatus(ctx context.Context, id string, status model.AbstractStatus) error
	GetRegistration(ctx context.Context, id string) (*model.EventRegistration, error)
}

// Payments is the payment orchestrator as seen from HTTP.
type Payments interface {
	VerifyAndSettle(ctx context.Context, orderID, gatewayPaymentID, sig string) (*model.Payment, error)
	Reconcile(ctx context.Context, paymentID string) (*model.Payment, error)
	Get(ctx context.Context, id string) (*model.Payment, error)
}

type service struct {
	core     Core
	payments Payments
	log      *zerolog.Logger
}

func NewService(core Core, payments Payments, logger *zerolog.Logger) Service {
	return &service{
		core:     core,
		payments: payments,
		log:      logger,
	}
}

func principal(ctx *ginext.Context) registration.Principal {
	return registration.Principal{
		UserID: ctx.GetString(dto.CtxUserID),
		Email:  ctx.GetString(dto.CtxEmail),
	}
}

func isStaff(ctx *ginext.Context) bool {
	switch ctx.GetString(dto.CtxRole) {
	case "staff", "admin":
		return true
	}
	return false
}

// bind decodes and validates the JSON body into req, writing a 400 on failure.
func bind(ctx *ginext.Context, req any) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid JSON format")
		return false
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return false
	}
	return true
}

func (s *service) fail(ctx *ginext.Context, err error, msg string) {
	if !dto.DomainError(ctx, err) {
		s.log.Error().Err(err).Str("path", ctx.FullPath()).Msg(msg)
	}
}

func (s *service) Health(ctx *ginext.Context) {
	ctx.JSON(http.StatusOK, dto.Response{Status: "ok"})
}

func (s *service) Pricing(ctx *ginext.Context) {
	at := time.Now()
	if raw := ctx.Query("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			dto.FieldBadFormatError(ctx, "at")
			return
		}
		at = t
	}
	slab, err := s.core.PriceAt(ctx, ctx.Param("id"), at)
	if err != nil {
		s.fail(ctx, err, "failed to resolve pricing")
		return
	}
	dto.SuccessResponse(ctx, slab)
}

func (s *service) CheckDiscount(ctx *ginext.Context) {
	var req dto.DiscountCheckRequest
	if !bind(ctx, &req) {
		return
	}
	q, err := s.core.Quote(ctx, ctx.Param("id"), req.Code)
	if err != nil {
		s.fail(ctx, err, "failed to quote discount")
		return
	}
	dto.SuccessResponse(ctx, dto.QuoteResponse{
		SlabID:         q.Slab.ID,
		SlabName:       q.Slab.Name,
		Base:           q.Base,
		Amount:         q.Amount,
		DiscountCodeID: q.DiscountCodeID,
	})
}

func (s *service) Register(ctx *ginext.Context) {
	var req dto.RegisterRequest
	if !bind(ctx, &req) {
		return
	}
	out, err := s.core.Register(ctx, principal(ctx), registration.RegisterInput{
		EventID:      ctx.Param("id"),
		DiscountCode: req.DiscountCode,
		Answers:      req.Answers,
	})
	s.checkout(ctx, out, err)
}

// checkout answers an intake call. A gateway failure after the record was
// created still reports 503 so the client retries through /orders.
func (s *service) checkout(ctx *ginext.Context, out *registration.Checkout, err error) {
	if err != nil {
		if out != nil {
			s.log.Warn().Err(err).Str("record_id", out.RecordID).Str("category", string(out.Category)).Msg("record created but order failed")
		}
		s.fail(ctx, err, "checkout failed")
		return
	}
	dto.SuccessCreatedResponse(ctx, out)
}

func (s *service) SubmitAbstract(ctx *ginext.Context) {
	var req dto.AbstractRequest
	if !bind(ctx, &req) {
		return
	}
	sub, err := s.core.SubmitAbstract(ctx, principal(ctx), registration.AbstractInput{
		EventID:       ctx.Param("id"),
		Title:         req.Title,
		Body:          req.Body,
		AttachmentURL: req.AttachmentURL,
		Categories:    req.Categories,
	})
	if err != nil {
		s.fail(ctx, err, "failed to submit abstract")
		return
	}
	dto.SuccessCreatedResponse(ctx, sub)
}

func (s *service) AddAccompany(ctx *ginext.Context) {
	var req dto.AccompanyRequest
	if !bind(ctx, &req) {
		return
	}
	persons := make([]model.AccompanyPerson, 0, len(req.Persons))
	for _, p := range req.Persons {
		persons = append(persons, model.AccompanyPerson{Name: p.Name, Relation: p.Relation})
	}
	out, err := s.core.AddAccompany(ctx, principal(ctx), registration.AccompanyInput{
		EventID: ctx.Param("id"),
		Persons: persons,
	})
	s.checkout(ctx, out, err)
}

func (s *service) AddWorkshops(ctx *ginext.Context) {
	var req dto.WorkshopRequest
	if !bind(ctx, &req) {
		return
	}
	out, err := s.core.AddWorkshops(ctx, principal(ctx), registration.WorkshopInput{
		EventID:     ctx.Param("id"),
		WorkshopIDs: req.WorkshopIDs,
	})
	s.checkout(ctx, out, err)
}

func (s *service) AddBanquet(ctx *ginext.Context) {
	var req dto.BanquetRequest
	if !bind(ctx, &req) {
		return
	}
	seats := make([]model.BanquetSeat, 0, len(req.Seats))
	for _, st := range req.Seats {
		seats = append(seats, model.BanquetSeat{SlabID: st.SlabID, GuestName: st.GuestName})
	}
	out, err := s.core.AddBanquet(ctx, principal(ctx), registration.BanquetInput{
		EventID: ctx.Param("id"),
		Seats:   seats,
	})
	s.checkout(ctx, out, err)
}

func (s *service) NewOrder(ctx *ginext.Context) {
	var req dto.NewOrderRequest
	if !bind(ctx, &req) {
		return
	}
	out, err := s.core.NewOrder(ctx, principal(ctx), model.PaymentCategory(req.Category), req.RecordID)
	s.checkout(ctx, out, err)
}

func (s *service) Verify(ctx *ginext.Context) {
	var req dto.VerifyRequest
	if !bind(ctx, &req) {
		return
	}
	p, err := s.payments.VerifyAndSettle(ctx, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		s.fail(ctx, err, "failed to verify payment")
		return
	}
	s.log.Info().
		Str("payment_id", p.ID).
		Str("status", string(p.Status)).
		Msg("payment verified")
	dto.SuccessResponse(ctx, p)
}

func (s *service) GetPayment(ctx *ginext.Context) {
	p, err := s.payments.Get(ctx, ctx.Param("id"))
	if err != nil {
		s.fail(ctx, err, "failed to load payment")
		return
	}
	// Other delegates' payments look absent.
	if p.UserID != ctx.GetString(dto.CtxUserID) && !isStaff(ctx) {
		s.fail(ctx, model.ErrPaymentNotFound, "")
		return
	}
	dto.SuccessResponse(ctx, p)
}
