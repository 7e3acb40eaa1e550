package models_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/erp_backend/models"
)

func TestCalcTotalSum(t *testing.T) {
	lot := models.LotCore{
		Quantity: decimal.RequireFromString("3"),
		Price:    decimal.RequireFromString("12.5"),
	}
	lot.CalcTotalSum()
	if !lot.TotalSum.Equal(decimal.RequireFromString("37.5")) {
		t.Fatalf("expected 37.5, got %s", lot.TotalSum)
	}

	// recompute is idempotent
	lot.CalcTotalSum()
	if !lot.TotalSum.Equal(decimal.RequireFromString("37.5")) {
		t.Fatalf("recompute changed the total: %s", lot.TotalSum)
	}

	lot.Quantity = decimal.Zero
	lot.CalcTotalSum()
	if !lot.TotalSum.IsZero() {
		t.Fatalf("zero quantity must zero the total, got %s", lot.TotalSum)
	}
}

func TestCalcTotalSumRoundsToMoneyScale(t *testing.T) {
	lot := models.LotCore{
		Quantity: decimal.RequireFromString("0.3333"),
		Price:    decimal.RequireFromString("10.0001"),
	}
	lot.CalcTotalSum()
	// 0.3333 * 10.0001 = 3.33333333 -> 3.3333 at the 4-decimal scale
	if !lot.TotalSum.Equal(decimal.RequireFromString("3.3333")) {
		t.Fatalf("expected 3.3333, got %s", lot.TotalSum)
	}
}

func TestParseInvoiceType(t *testing.T) {
	for _, valid := range []string{"invoice", "production", "expense", "transfer"} {
		if _, err := models.ParseInvoiceType(valid); err != nil {
			t.Fatalf("%s should parse: %v", valid, err)
		}
	}
	if _, err := models.ParseInvoiceType("receipt"); err == nil {
		t.Fatal("unknown type should not parse")
	}
	if _, err := models.ParseInvoiceType(""); err == nil {
		t.Fatal("empty type should not parse")
	}
}

func TestParseBalanceHolderType(t *testing.T) {
	got, err := models.ParseBalanceHolderType("cash_register")
	if err != nil {
		t.Fatalf("cash_register should parse: %v", err)
	}
	if got != models.BalanceHolderTypeCashRegister {
		t.Fatalf("wrong holder type: %s", got)
	}
	if _, err := models.ParseBalanceHolderType("wallet"); err == nil {
		t.Fatal("unknown holder type should not parse")
	}
}
