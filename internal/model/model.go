package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID                         string           `db:"id" json:"id"`
	Name                       string           `db:"name" json:"name"`
	Currency                   string           `db:"currency" json:"currency"`
	StartsAt                   time.Time        `db:"starts_at" json:"starts_at"`
	EndsAt                     time.Time        `db:"ends_at" json:"ends_at"`
	RegistrationEnabled        bool             `db:"registration_enabled" json:"registration_enabled"`
	RegistrationOpensAt        *time.Time       `db:"registration_opens_at" json:"registration_opens_at,omitempty"`
	RegistrationClosesAt       *time.Time       `db:"registration_closes_at" json:"registration_closes_at,omitempty"`
	RegistrationRequiredFields []string         `db:"registration_required_fields" json:"registration_required_fields,omitempty"`
	Abstract                   AbstractSettings `json:"abstract"`
	AccompanyFee               decimal.Decimal  `db:"accompany_fee" json:"accompany_fee"`
	CreatedAt                  time.Time        `db:"created_at" json:"created_at"`
}

// AbstractSettings is the per-event configuration of the abstract call.
type AbstractSettings struct {
	Enabled             bool       `db:"abstract_enabled" json:"enabled"`
	OpensAt             *time.Time `db:"abstract_opens_at" json:"opens_at,omitempty"`
	ClosesAt            *time.Time `db:"abstract_closes_at" json:"closes_at,omitempty"`
	MaxPerUser          int        `db:"abstract_max_per_user" json:"max_per_user"`
	WordLimit           int        `db:"abstract_word_limit" json:"word_limit"`
	RequireAttachment   bool       `db:"abstract_require_attachment" json:"require_attachment"`
	RequireRegistration bool       `db:"abstract_require_registration" json:"require_registration"`
}

type RegistrationSlab struct {
	ID        string          `db:"id" json:"id"`
	EventID   string          `db:"event_id" json:"event_id"`
	Name      string          `db:"name" json:"name"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	ValidFrom *time.Time      `db:"valid_from" json:"valid_from,omitempty"`
	ValidTo   *time.Time      `db:"valid_to" json:"valid_to,omitempty"`
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type DiscountCode struct {
	ID              string          `db:"id" json:"id"`
	EventID         string          `db:"event_id" json:"event_id"`
	Code            string          `db:"code" json:"code"`
	DiscountType    DiscountType    `db:"discount_type" json:"discount_type"`
	DiscountValue   decimal.Decimal `db:"discount_value" json:"discount_value"`
	RedemptionLimit int             `db:"redemption_limit" json:"redemption_limit"`
	Redeemed        int             `db:"redeemed" json:"redeemed"`
	ValidFrom       time.Time       `db:"valid_from" json:"valid_from"`
	ValidTo         time.Time       `db:"valid_to" json:"valid_to"`
}

type Category struct {
	ID      string   `db:"id" json:"id"`
	EventID string   `db:"event_id" json:"event_id"`
	Name    string   `db:"name" json:"name"`
	Active  bool     `db:"active" json:"active"`
	Options []string `db:"options" json:"options"`
}

type EventRegistration struct {
	ID                 string          `db:"id" json:"id"`
	EventID            string          `db:"event_id" json:"event_id"`
	UserID             string          `db:"user_id" json:"user_id"`
	SlabID             string          `db:"slab_id" json:"slab_id"`
	DiscountCodeID     string          `db:"discount_code_id" json:"discount_code_id,omitempty"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	IsPaid             bool            `db:"is_paid" json:"is_paid"`
	RegistrationNumber string          `db:"registration_number" json:"registration_number,omitempty"`
	Suspended          bool            `db:"suspended" json:"suspended"`
	Answers            json.RawMessage `db:"answers" json:"answers,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

type AbstractStatus string

const (
	AbstractPending  AbstractStatus = "pending"
	AbstractReviewed AbstractStatus = "reviewed"
	AbstractAccept   AbstractStatus = "accept"
	AbstractReject   AbstractStatus = "reject"
)

func (s AbstractStatus) Valid() bool {
	switch s {
	case AbstractPending, AbstractReviewed, AbstractAccept, AbstractReject:
		return true
	}
	return false
}

// CategorySelection is one category picked on an abstract, with the chosen option.
type CategorySelection struct {
	CategoryID string `json:"category_id"`
	Option     string `json:"option,omitempty"`
}

type AbstractSubmission struct {
	ID             string              `db:"id" json:"id"`
	EventID        string              `db:"event_id" json:"event_id"`
	UserID         string              `db:"user_id" json:"user_id"`
	AbstractNumber string              `db:"abstract_number" json:"abstract_number"`
	Title          string              `db:"title" json:"title"`
	Body           string              `db:"body" json:"body"`
	WordCount      int                 `db:"word_count" json:"word_count"`
	AttachmentURL  string              `db:"attachment_url" json:"attachment_url,omitempty"`
	Categories     []CategorySelection `db:"categories" json:"categories"`
	Status         AbstractStatus      `db:"status" json:"status"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

type Accompany struct {
	ID             string            `db:"id" json:"id"`
	EventID        string            `db:"event_id" json:"event_id"`
	RegistrationID string            `db:"registration_id" json:"registration_id"`
	UserID         string            `db:"user_id" json:"user_id"`
	Amount         decimal.Decimal   `db:"amount" json:"amount"`
	IsPaid         bool              `db:"is_paid" json:"is_paid"`
	Persons        []AccompanyPerson `json:"persons"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}

type AccompanyPerson struct {
	ID          string `db:"id" json:"id"`
	AccompanyID string `db:"accompany_id" json:"accompany_id"`
	Name        string `db:"name" json:"name"`
	Relation    string `db:"relation" json:"relation,omitempty"`
	Suspended   bool   `db:"suspended" json:"suspended"`
}

type Workshop struct {
	ID      string          `db:"id" json:"id"`
	EventID string          `db:"event_id" json:"event_id"`
	Name    string          `db:"name" json:"name"`
	Amount  decimal.Decimal `db:"amount" json:"amount"`
	QuotaID string          `db:"quota_id" json:"quota_id"`
}

type WorkshopRegistration struct {
	ID         string              `db:"id" json:"id"`
	EventID    string              `db:"event_id" json:"event_id"`
	UserID     string              `db:"user_id" json:"user_id"`
	Amount     decimal.Decimal     `db:"amount" json:"amount"`
	IsPaid     bool                `db:"is_paid" json:"is_paid"`
	QuotaHeld  bool                `db:"quota_held" json:"quota_held"`
	Selections []WorkshopSelection `json:"selections"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
}

type WorkshopSelection struct {
	ID             string `db:"id" json:"id"`
	RegistrationID string `db:"workshop_registration_id" json:"workshop_registration_id"`
	WorkshopID     string `db:"workshop_id" json:"workshop_id"`
	QuotaID        string `db:"quota_id" json:"quota_id"`
	Suspended      bool   `db:"suspended" json:"suspended"`
}

type BanquetSlab struct {
	ID      string          `db:"id" json:"id"`
	EventID string          `db:"event_id" json:"event_id"`
	Name    string          `db:"name" json:"name"`
	Amount  decimal.Decimal `db:"amount" json:"amount"`
	QuotaID string          `db:"quota_id" json:"quota_id"`
}

type BanquetRegistration struct {
	ID        string          `db:"id" json:"id"`
	EventID   string          `db:"event_id" json:"event_id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	IsPaid    bool            `db:"is_paid" json:"is_paid"`
	QuotaHeld bool            `db:"quota_held" json:"quota_held"`
	Seats     []BanquetSeat   `json:"seats"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type BanquetSeat struct {
	ID             string `db:"id" json:"id"`
	RegistrationID string `db:"banquet_registration_id" json:"banquet_registration_id"`
	SlabID         string `db:"banquet_slab_id" json:"banquet_slab_id"`
	QuotaID        string `db:"quota_id" json:"quota_id"`
	GuestName      string `db:"guest_name" json:"guest_name"`
	Suspended      bool   `db:"suspended" json:"suspended"`
}

type QuotaOwner string

const (
	QuotaSponsorRegistration  QuotaOwner = "sponsor_registration"
	QuotaSponsorTravel        QuotaOwner = "sponsor_travel"
	QuotaSponsorAccommodation QuotaOwner = "sponsor_accommodation"
	QuotaWorkshopSeats        QuotaOwner = "workshop_seats"
	QuotaBanquetSlots         QuotaOwner = "banquet_slots"
)

type Quota struct {
	ID        string     `db:"id" json:"id"`
	OwnerType QuotaOwner `db:"owner_type" json:"owner_type"`
	OwnerID   string     `db:"owner_id" json:"owner_id"`
	Label     string     `db:"label" json:"label"`
	Capacity  int        `db:"capacity" json:"capacity"`
	Consumed  int        `db:"consumed" json:"consumed"`
}

func (q Quota) Remaining() int {
	return q.Capacity - q.Consumed
}

// LineItemKind names the nested records that carry their own suspension flag.
type LineItemKind string

const (
	ItemAccompanyPerson   LineItemKind = "accompany_person"
	ItemWorkshopSelection LineItemKind = "workshop_selection"
	ItemBanquetSeat       LineItemKind = "banquet_seat"
)

func (k LineItemKind) Valid() bool {
	switch k {
	case ItemAccompanyPerson, ItemWorkshopSelection, ItemBanquetSeat:
		return true
	}
	return false
}
