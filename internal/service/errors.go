package service

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"storefront/internal/cart"

	"github.com/go-playground/validator/v10"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrItemNotFound        = cart.ErrItemNotFound
	ErrSizeRequired        = errors.New("select size")
	ErrSignInRequired      = errors.New("sign in required")
	ErrLoginRequired       = errors.New("login required")
	ErrCartIDRequired      = errors.New("cart id required")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrPaymentUnavailable  = errors.New("payment unavailable")
	ErrCheckoutInProgress  = errors.New("checkout already in progress")
	ErrPaymentProvider     = errors.New("payment provider error")
	ErrMissingOrderID      = errors.New("missing order_id in metadata")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrWebhookUnconfigured = errors.New("webhook signing secret not configured")
	ErrAlreadyReviewed     = errors.New("product already reviewed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUnknownCarrier      = errors.New("unknown carrier")
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// newValidator returns a validator that reports fields by their JSON name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs v over s and converts failures into a ValidationError.
func validateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the top-level struct name: "CheckoutRequest.shipping_address.street"
// becomes "shipping_address.street".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
