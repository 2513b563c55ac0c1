package validator

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"time"

	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"

	"confdesk/internal/model"
)

var (
	global    *validator.Validate
	codeRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]{3,32}$`)
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	// Amounts are checked as numbers.
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("code", validateCode)
	_ = v.RegisterValidation("future", validateFutureDate)
	_ = v.RegisterValidation("positive", validatePositive)
	_ = v.RegisterValidation("nonnegative", validateNonNegative)
	_ = v.RegisterValidation("category", validateCategory)
	_ = v.RegisterValidation("itemkind", validateItemKind)
	_ = v.RegisterValidation("abstractstatus", validateAbstractStatus)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func validateCode(fl validator.FieldLevel) bool {
	return codeRegex.MatchString(fl.Field().String())
}

func validateFutureDate(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.After(time.Now())
}

func validatePositive(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case int:
		return v > 0
	case float64:
		return v > 0
	}
	return false
}

func validateNonNegative(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case int:
		return v >= 0
	case float64:
		return v >= 0
	}
	return false
}

func validateCategory(fl validator.FieldLevel) bool {
	return model.PaymentCategory(fl.Field().String()).Valid()
}

func validateItemKind(fl validator.FieldLevel) bool {
	return model.LineItemKind(fl.Field().String()).Valid()
}

func validateAbstractStatus(fl validator.FieldLevel) bool {
	return model.AbstractStatus(fl.Field().String()).Valid()
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "code", "category", "itemkind", "abstractstatus", "email", "oneof", "url", "len":
		msg = ErrInvalidFormat
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "future":
		msg = "Date must be in the future"
	case "positive":
		msg = "Value must be positive"
	case "nonnegative":
		msg = "Value must not be negative"
	default:
		msg = ErrUnknownValidation
	}
	return errors.New(msg + ": " + ve.Namespace())
}
