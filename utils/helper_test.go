package utils

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateStruct(t *testing.T) {
	type line struct {
		PartId   int             `validate:"required"`
		Quantity decimal.Decimal `validate:"required"`
	}
	type input struct {
		Name  string `validate:"required"`
		Lines []line `validate:"dive"`
	}

	if err := ValidateStruct(&input{}); err == nil {
		t.Fatal("expected error for empty struct")
	} else if !strings.Contains(err.Error(), "Name") || !strings.Contains(err.Error(), "required") {
		t.Fatalf("error should name the failing field and rule, got %q", err)
	}

	good := &input{
		Name:  "bolt",
		Lines: []line{{PartId: 1, Quantity: decimal.NewFromInt(2)}},
	}
	if err := ValidateStruct(good); err != nil {
		t.Fatalf("expected valid struct to pass, got %v", err)
	}

	bad := &input{
		Name:  "bolt",
		Lines: []line{{PartId: 1}},
	}
	if err := ValidateStruct(bad); err == nil {
		t.Fatal("expected error for zero line quantity")
	} else if !strings.Contains(err.Error(), "Quantity") {
		t.Fatalf("error should name the nested field, got %q", err)
	}
}

func TestSafeDiv(t *testing.T) {
	if got := SafeDiv(decimal.NewFromInt(10), decimal.NewFromInt(4)); !got.Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("expected 2.5, got %s", got)
	}
	if got := SafeDiv(decimal.NewFromInt(10), decimal.Zero); !got.IsZero() {
		t.Fatalf("expected zero on zero divisor, got %s", got)
	}
}
