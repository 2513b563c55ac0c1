package dto

import (
	"errors"
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"confdesk/internal/eligibility"
	"confdesk/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	Unauthorized        = "UNAUTHORIZED"
	Forbidden           = "FORBIDDEN"
	NotFound            = "NOT_FOUND"
	EligibilityRejected = "ELIGIBILITY_REJECTED"
	RegistrationExists  = "REGISTRATION_DUPLICATE"
	AlreadyPaid         = "ALREADY_PAID"
	PaymentPending      = "PAYMENT_PENDING"
	QuotaExhausted      = "QUOTA_EXHAUSTED"
	Conflict            = "CONFLICT"
	NoActivePricing     = "NO_ACTIVE_PRICING"
	DiscountRejected    = "DISCOUNT_REJECTED"
	SignatureMismatch   = "SIGNATURE_MISMATCH"
	GatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	IdentifierExhausted = "IDENTIFIER_EXHAUSTED"
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code  string `json:"code"`
	Desc  string `json:"desc"`
	Check string `json:"check,omitempty"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error:  &Error{Code: code, Desc: desc},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{Status: "ok", Data: data})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{Status: "ok", Data: data})
}

// DomainError writes the response for an error returned by the core. It
// reports whether err was one the client caused; anything else is a 500.
func DomainError(c *ginext.Context, err error) bool {
	var (
		rej  *eligibility.Rejection
		verr *model.ValidationError
		derr *model.DiscountRejected
		gerr *model.GatewayError
	)
	switch {
	case errors.As(err, &rej):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, Response{
			Status: "error",
			Error:  &Error{Code: EligibilityRejected, Desc: rej.Message, Check: rej.Check},
		})
	case errors.As(err, &verr):
		BadResponseError(c, FieldIncorrect, verr.Error())
	case errors.As(err, &derr):
		ErrorResponse(c, http.StatusUnprocessableEntity, DiscountRejected, derr.Error())
	case errors.As(err, &gerr):
		ErrorResponse(c, http.StatusServiceUnavailable, GatewayUnavailable, "Payment gateway is unavailable, please retry")
	case errors.Is(err, model.ErrSignatureMismatch):
		BadResponseError(c, SignatureMismatch, "Payment signature does not match")
	case errors.Is(err, model.ErrEventNotFound),
		errors.Is(err, model.ErrRegistrationNotFound),
		errors.Is(err, model.ErrAbstractNotFound),
		errors.Is(err, model.ErrPaymentNotFound),
		errors.Is(err, model.ErrQuotaNotFound),
		errors.Is(err, model.ErrRecordNotFound),
		errors.Is(err, model.ErrItemNotFound):
		ErrorResponse(c, http.StatusNotFound, NotFound, err.Error())
	case errors.Is(err, model.ErrDuplicateRegistration):
		ErrorResponse(c, http.StatusConflict, RegistrationExists, "You have already registered for this event")
	case errors.Is(err, model.ErrAlreadyPaid):
		ErrorResponse(c, http.StatusConflict, AlreadyPaid, "Record is already paid")
	case errors.Is(err, model.ErrPaymentPending):
		ErrorResponse(c, http.StatusConflict, PaymentPending, "A payment for this record is already in progress")
	case errors.Is(err, model.ErrQuotaExhausted):
		ErrorResponse(c, http.StatusConflict, QuotaExhausted, "No capacity left")
	case errors.Is(err, model.ErrNoActivePricing):
		ErrorResponse(c, http.StatusUnprocessableEntity, NoActivePricing, "No pricing is active for this event right now")
	case errors.Is(err, model.ErrIdentifierExhausted):
		ErrorResponse(c, http.StatusServiceUnavailable, IdentifierExhausted, "Could not allocate an identifier, please retry")
	case errors.Is(err, model.ErrConflict):
		ErrorResponse(c, http.StatusConflict, Conflict, "Concurrent update, please retry")
	default:
		InternalServerError(c)
		return false
	}
	return true
}

// Keys the auth middleware stores the caller under.
const (
	CtxUserID = "auth.user_id"
	CtxEmail  = "auth.email"
	CtxRole   = "auth.role"
)
