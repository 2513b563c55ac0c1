package service

import (
	"github.com/wb-go/wbf/ginext"

	"confdesk/internal/dto"
	"confdesk/internal/model"
)

type Admin interface {
	CreateEvent(ctx *ginext.Context)
	AddSlab(ctx *ginext.Context)
	AddDiscount(ctx *ginext.Context)
	AddCategory(ctx *ginext.Context)
	AddWorkshop(ctx *ginext.Context)
	AddBanquetSlab(ctx *ginext.Context)
	CreateQuota(ctx *ginext.Context)
	GetQuota(ctx *ginext.Context)
	ReserveQuota(ctx *ginext.Context)
	ReleaseQuota(ctx *ginext.Context)
	SetItemSuspended(ctx *ginext.Context)
	SetRegistrationSuspended(ctx *ginext.Context)
	SetAbstractStatus(ctx *ginext.Context)
	GetRegistration(ctx *ginext.Context)
	ReconcilePayment(ctx *ginext.Context)
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if !bind(ctx, &req) {
		return
	}
	event := req.Model()
	if err := s.core.CreateEvent(ctx, event); err != nil {
		s.fail(ctx, err, "failed to create event")
		return
	}
	s.log.Info().Str("event_id", event.ID).Str("name", event.Name).Msg("event created")
	dto.SuccessCreatedResponse(ctx, event)
}

func (s *service) AddSlab(ctx *ginext.Context) {
	var req dto.SlabRequest
	if !bind(ctx, &req) {
		return
	}
	slab := &model.RegistrationSlab{
		EventID:   ctx.Param("id"),
		Name:      req.Name,
		Amount:    req.Amount,
		ValidFrom: req.ValidFrom,
		ValidTo:   req.ValidTo,
	}
	if err := s.core.AddSlab(ctx, slab); err != nil {
		s.fail(ctx, err, "failed to add slab")
		return
	}
	dto.SuccessCreatedResponse(ctx, slab)
}

func (s *service) AddDiscount(ctx *ginext.Context) {
	var req dto.DiscountRequest
	if !bind(ctx, &req) {
		return
	}
	d := &model.DiscountCode{
		EventID:         ctx.Param("id"),
		Code:            req.Code,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		RedemptionLimit: req.RedemptionLimit,
		ValidFrom:       req.ValidFrom,
		ValidTo:         req.ValidTo,
	}
	if err := s.core.AddDiscount(ctx, d); err != nil {
		s.fail(ctx, err, "failed to add discount")
		return
	}
	dto.SuccessCreatedResponse(ctx, d)
}

func (s *service) AddCategory(ctx *ginext.Context) {
	var req dto.CategoryRequest
	if !bind(ctx, &req) {
		return
	}
	c := &model.Category{
		EventID: ctx.Param("id"),
		Name:    req.Name,
		Active:  req.Active,
		Options: req.Options,
	}
	if err := s.core.AddCategory(ctx, c); err != nil {
		s.fail(ctx, err, "failed to add category")
		return
	}
	dto.SuccessCreatedResponse(ctx, c)
}

func (s *service) AddWorkshop(ctx *ginext.Context) {
	var req dto.WorkshopCreateRequest
	if !bind(ctx, &req) {
		return
	}
	w := &model.Workshop{EventID: ctx.Param("id"), Name: req.Name, Amount: req.Amount}
	if err := s.core.AddWorkshop(ctx, w, req.Seats); err != nil {
		s.fail(ctx, err, "failed to add workshop")
		return
	}
	dto.SuccessCreatedResponse(ctx, w)
}

func (s *service) AddBanquetSlab(ctx *ginext.Context) {
	var req dto.BanquetSlabRequest
	if !bind(ctx, &req) {
		return
	}
	b := &model.BanquetSlab{EventID: ctx.Param("id"), Name: req.Name, Amount: req.Amount}
	if err := s.core.AddBanquetSlab(ctx, b, req.Slots); err != nil {
		s.fail(ctx, err, "failed to add banquet slab")
		return
	}
	dto.SuccessCreatedResponse(ctx, b)
}

func (s *service) CreateQuota(ctx *ginext.Context) {
	var req dto.QuotaRequest
	if !bind(ctx, &req) {
		return
	}
	q := &model.Quota{
		OwnerType: model.QuotaOwner(req.OwnerType),
		OwnerID:   req.OwnerID,
		Label:     req.Label,
		Capacity:  req.Capacity,
	}
	if err := s.core.CreateQuota(ctx, q); err != nil {
		s.fail(ctx, err, "failed to create quota")
		return
	}
	dto.SuccessCreatedResponse(ctx, q)
}

func (s *service) GetQuota(ctx *ginext.Context) {
	q, err := s.core.GetQuota(ctx, ctx.Param("id"))
	if err != nil {
		s.fail(ctx, err, "failed to load quota")
		return
	}
	dto.SuccessResponse(ctx, q)
}

func (s *service) ReserveQuota(ctx *ginext.Context) {
	var req dto.QuotaAmountRequest
	if !bind(ctx, &req) {
		return
	}
	q, err := s.core.ReserveQuota(ctx, ctx.Param("id"), req.N)
	if err != nil {
		s.fail(ctx, err, "failed to reserve quota")
		return
	}
	dto.SuccessResponse(ctx, q)
}

func (s *service) ReleaseQuota(ctx *ginext.Context) {
	var req dto.QuotaAmountRequest
	if !bind(ctx, &req) {
		return
	}
	q, err := s.core.ReleaseQuota(ctx, ctx.Param("id"), req.N)
	if err != nil {
		s.fail(ctx, err, "failed to release quota")
		return
	}
	dto.SuccessResponse(ctx, q)
}

func (s *service) SetItemSuspended(ctx *ginext.Context) {
	var req dto.SuspensionRequest
	if !bind(ctx, &req) {
		return
	}
	err := s.core.SetItemSuspended(ctx, model.LineItemKind(req.Kind), req.ParentID, req.ItemID, req.Suspended)
	if err != nil {
		s.fail(ctx, err, "failed to change suspension")
		return
	}
	s.log.Info().
		Str("kind", req.Kind).
		Str("item_id", req.ItemID).
		Bool("suspended", req.Suspended).
		Msg("line item suspension changed")
	dto.SuccessResponse(ctx, req)
}

func (s *service) SetRegistrationSuspended(ctx *ginext.Context) {
	var req dto.RegistrationSuspensionRequest
	if !bind(ctx, &req) {
		return
	}
	if err := s.core.SetRegistrationSuspended(ctx, ctx.Param("id"), req.Suspended); err != nil {
		s.fail(ctx, err, "failed to change registration suspension")
		return
	}
	reg, err := s.core.GetRegistration(ctx, ctx.Param("id"))
	if err != nil {
		s.fail(ctx, err, "failed to reload registration")
		return
	}
	dto.SuccessResponse(ctx, reg)
}

func (s *service) SetAbstractStatus(ctx *ginext.Context) {
	var req dto.AbstractStatusRequest
	if !bind(ctx, &req) {
		return
	}
	if err := s.core.SetAbstractStatus(ctx, ctx.Param("id"), model.AbstractStatus(req.Status)); err != nil {
		s.fail(ctx, err, "failed to change abstract status")
		return
	}
	dto.SuccessResponse(ctx, req)
}

func (s *service) GetRegistration(ctx *ginext.Context) {
	reg, err := s.core.GetRegistration(ctx, ctx.Param("id"))
	if err != nil {
		s.fail(ctx, err, "failed to load registration")
		return
	}
	dto.SuccessResponse(ctx, reg)
}

// ReconcilePayment asks the gateway for the outcome of a payment the
// client never reported back.
func (s *service) ReconcilePayment(ctx *ginext.Context) {
	p, err := s.payments.Reconcile(ctx, ctx.Param("id"))
	if err != nil {
		s.fail(ctx, err, "failed to reconcile payment")
		return
	}
	s.log.Info().Str("payment_id", p.ID).Str("status", string(p.Status)).Msg("payment reconciled")
	dto.SuccessResponse(ctx, p)
}
