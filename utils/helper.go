package utils

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var structValidator = validator.New()

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func DereferencePtr[T any](ptr *T, def ...T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	if len(def) > 0 {
		return def[0]
	}
	return zero
}

// ValidateStruct runs tag validation on an input struct. Failures come back
// as one error carrying the field -> rule map.
func ValidateStruct(input any) error {
	err := structValidator.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		return fmt.Errorf("validation failed: %v", ProcessValidationErrors(fieldErrors))
	}
	return err
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// RoundMoney rounds to the 4-decimal scale used by all money columns.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

// SafeDiv returns a/b, or zero when b is zero. Used for unit prices derived
// from rolled-up costs where the quantity may legitimately be zero.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}
