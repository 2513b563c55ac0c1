package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"confdesk/internal/model"
)

type DiscountCheckRequest struct {
	Code string `json:"code" validate:"required,code"`
}

type RegisterRequest struct {
	DiscountCode string            `json:"discount_code" validate:"omitempty,code"`
	Answers      map[string]string `json:"answers"`
}

type AbstractRequest struct {
	Title         string                    `json:"title" validate:"required,max=500"`
	Body          string                    `json:"body" validate:"required"`
	AttachmentURL string                    `json:"attachment_url" validate:"omitempty,url"`
	Categories    []model.CategorySelection `json:"categories"`
}

type AccompanyPersonRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Relation string `json:"relation" validate:"max=64"`
}

type AccompanyRequest struct {
	Persons []AccompanyPersonRequest `json:"persons" validate:"required,min=1,dive"`
}

type WorkshopRequest struct {
	WorkshopIDs []string `json:"workshop_ids" validate:"required,min=1"`
}

type BanquetSeatRequest struct {
	SlabID    string `json:"banquet_slab_id" validate:"required"`
	GuestName string `json:"guest_name" validate:"required,max=255"`
}

type BanquetRequest struct {
	Seats []BanquetSeatRequest `json:"seats" validate:"required,min=1,dive"`
}

type NewOrderRequest struct {
	Category string `json:"category" validate:"required,category"`
	RecordID string `json:"record_id" validate:"required"`
}

type VerifyRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type AbstractSettingsRequest struct {
	Enabled             bool       `json:"enabled"`
	OpensAt             *time.Time `json:"opens_at"`
	ClosesAt            *time.Time `json:"closes_at"`
	MaxPerUser          int        `json:"max_per_user" validate:"gte=0"`
	WordLimit           int        `json:"word_limit" validate:"gte=0"`
	RequireAttachment   bool       `json:"require_attachment"`
	RequireRegistration bool       `json:"require_registration"`
}

type CreateEventRequest struct {
	Name                       string                  `json:"name" validate:"required,max=255"`
	Currency                   string                  `json:"currency" validate:"omitempty,len=3"`
	StartsAt                   time.Time               `json:"starts_at" validate:"required"`
	EndsAt                     time.Time               `json:"ends_at" validate:"required"`
	RegistrationEnabled        bool                    `json:"registration_enabled"`
	RegistrationOpensAt        *time.Time              `json:"registration_opens_at"`
	RegistrationClosesAt       *time.Time              `json:"registration_closes_at"`
	RegistrationRequiredFields []string                `json:"registration_required_fields"`
	Abstract                   AbstractSettingsRequest `json:"abstract"`
	AccompanyFee               decimal.Decimal         `json:"accompany_fee" validate:"nonnegative"`
}

func (r CreateEventRequest) Model() *model.Event {
	return &model.Event{
		Name:                       r.Name,
		Currency:                   r.Currency,
		StartsAt:                   r.StartsAt,
		EndsAt:                     r.EndsAt,
		RegistrationEnabled:        r.RegistrationEnabled,
		RegistrationOpensAt:        r.RegistrationOpensAt,
		RegistrationClosesAt:       r.RegistrationClosesAt,
		RegistrationRequiredFields: r.RegistrationRequiredFields,
		Abstract: model.AbstractSettings{
			Enabled:             r.Abstract.Enabled,
			OpensAt:             r.Abstract.OpensAt,
			ClosesAt:            r.Abstract.ClosesAt,
			MaxPerUser:          r.Abstract.MaxPerUser,
			WordLimit:           r.Abstract.WordLimit,
			RequireAttachment:   r.Abstract.RequireAttachment,
			RequireRegistration: r.Abstract.RequireRegistration,
		},
		AccompanyFee: r.AccompanyFee,
	}
}

type SlabRequest struct {
	Name      string          `json:"name" validate:"required,max=255"`
	Amount    decimal.Decimal `json:"amount" validate:"nonnegative"`
	ValidFrom *time.Time      `json:"valid_from"`
	ValidTo   *time.Time      `json:"valid_to"`
}

type DiscountRequest struct {
	Code            string             `json:"code" validate:"required,code"`
	DiscountType    model.DiscountType `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue   decimal.Decimal    `json:"discount_value" validate:"positive"`
	RedemptionLimit int                `json:"redemption_limit" validate:"gte=0"`
	ValidFrom       time.Time          `json:"valid_from" validate:"required"`
	ValidTo         time.Time          `json:"valid_to" validate:"required"`
}

type CategoryRequest struct {
	Name    string   `json:"name" validate:"required,max=255"`
	Active  bool     `json:"active"`
	Options []string `json:"options"`
}

type WorkshopCreateRequest struct {
	Name   string          `json:"name" validate:"required,max=255"`
	Amount decimal.Decimal `json:"amount" validate:"nonnegative"`
	Seats  int             `json:"seats" validate:"positive"`
}

type BanquetSlabRequest struct {
	Name   string          `json:"name" validate:"required,max=255"`
	Amount decimal.Decimal `json:"amount" validate:"nonnegative"`
	Slots  int             `json:"slots" validate:"positive"`
}

type QuotaRequest struct {
	OwnerType string `json:"owner_type" validate:"required"`
	OwnerID   string `json:"owner_id"`
	Label     string `json:"label" validate:"max=255"`
	Capacity  int    `json:"capacity" validate:"gte=0"`
}

type QuotaAmountRequest struct {
	N int `json:"n" validate:"positive"`
}

type SuspensionRequest struct {
	Kind      string `json:"kind" validate:"required,itemkind"`
	ParentID  string `json:"parent_id" validate:"required"`
	ItemID    string `json:"item_id" validate:"required"`
	Suspended bool   `json:"suspended"`
}

type RegistrationSuspensionRequest struct {
	Suspended bool `json:"suspended"`
}

type AbstractStatusRequest struct {
	Status string `json:"status" validate:"required,abstractstatus"`
}

type QuoteResponse struct {
	SlabID         string          `json:"slab_id"`
	SlabName       string          `json:"slab_name"`
	Base           decimal.Decimal `json:"base"`
	Amount         decimal.Decimal `json:"amount"`
	DiscountCodeID string          `json:"discount_code_id,omitempty"`
}
