package workflow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the walk that
// every consumption path shares: oldest layer first, partial-lot splitting,
// slice pricing at the source layer's price, and the shortfall contract.
// Full invoice lifecycle tests run against MySQL, see
// invoice_workflow_integration_test.go.

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func layers(qtyPrice ...string) []FifoLayer {
	var out []FifoLayer
	for i := 0; i+1 < len(qtyPrice); i += 2 {
		out = append(out, FifoLayer{
			LotId:    i/2 + 1,
			Quantity: dec(qtyPrice[i]),
			Price:    dec(qtyPrice[i+1]),
		})
	}
	return out
}

func TestConsumeLayersOldestFirstWithSplit(t *testing.T) {
	// two layers: 5 @ 10 then 3 @ 12; taking 6 splits the second layer
	slices, shortfall := consumeLayers(layers("5", "10", "3", "12"), dec("6"))

	if !shortfall.IsZero() {
		t.Fatalf("expected no shortfall, got %s", shortfall)
	}
	if len(slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(slices))
	}
	if slices[0].LotId != 1 || !slices[0].Quantity.Equal(dec("5")) || !slices[0].Price.Equal(dec("10")) {
		t.Fatalf("first slice wrong: %+v", slices[0])
	}
	if slices[1].LotId != 2 || !slices[1].Quantity.Equal(dec("1")) || !slices[1].Price.Equal(dec("12")) {
		t.Fatalf("second slice wrong: %+v", slices[1])
	}
	if got := SlicesCost(slices); !got.Equal(dec("62")) {
		t.Fatalf("expected cost 62, got %s", got)
	}
}

func TestConsumeLayersShortfall(t *testing.T) {
	// 8 on hand, 10 required: everything is consumed and 2 remains owed
	slices, shortfall := consumeLayers(layers("5", "10", "3", "12"), dec("10"))

	if !shortfall.Equal(dec("2")) {
		t.Fatalf("expected shortfall 2, got %s", shortfall)
	}
	if got := SlicesCost(slices); !got.Equal(dec("86")) {
		t.Fatalf("expected cost 86, got %s", got)
	}

	consumed := decimal.Zero
	for _, s := range slices {
		consumed = consumed.Add(s.Quantity)
	}
	if !consumed.Add(shortfall).Equal(dec("10")) {
		t.Fatalf("consumed %s + shortfall %s != required 10", consumed, shortfall)
	}
}

func TestConsumeLayersExactFit(t *testing.T) {
	slices, shortfall := consumeLayers(layers("5", "10", "3", "12"), dec("8"))

	if !shortfall.IsZero() {
		t.Fatalf("expected no shortfall, got %s", shortfall)
	}
	if len(slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(slices))
	}
	if !slices[1].Quantity.Equal(dec("3")) {
		t.Fatalf("second layer should be fully consumed, got %s", slices[1].Quantity)
	}
}

func TestConsumeLayersNonPositiveRequired(t *testing.T) {
	slices, shortfall := consumeLayers(layers("5", "10"), decimal.Zero)
	if len(slices) != 0 || !shortfall.IsZero() {
		t.Fatalf("zero required must be a no-op, got %d slices shortfall %s", len(slices), shortfall)
	}

	slices, shortfall = consumeLayers(layers("5", "10"), dec("-3"))
	if len(slices) != 0 {
		t.Fatalf("negative required must be a no-op, got %d slices", len(slices))
	}
	if shortfall.IsPositive() {
		t.Fatalf("negative required must not owe anything, got %s", shortfall)
	}
}

func TestConsumeLayersSkipsEmptyLayers(t *testing.T) {
	// a zeroed layer in the middle must not emit a slice
	slices, shortfall := consumeLayers(layers("2", "10", "0", "11", "4", "12"), dec("5"))

	if !shortfall.IsZero() {
		t.Fatalf("expected no shortfall, got %s", shortfall)
	}
	if len(slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(slices))
	}
	if slices[1].LotId != 3 {
		t.Fatalf("expected second slice from lot 3, got lot %d", slices[1].LotId)
	}
	if got := SlicesCost(slices); !got.Equal(dec("56")) {
		t.Fatalf("expected cost 56, got %s", got)
	}
}

func TestConsumeLayersNoStock(t *testing.T) {
	slices, shortfall := consumeLayers(nil, dec("4"))
	if len(slices) != 0 {
		t.Fatalf("expected no slices, got %d", len(slices))
	}
	if !shortfall.Equal(dec("4")) {
		t.Fatalf("expected full shortfall 4, got %s", shortfall)
	}
}

func TestConsumeLayersFractionalQuantities(t *testing.T) {
	// liter-measured stock: 2.5 @ 10.50 then 1.5 @ 11.00, take 3.25
	slices, shortfall := consumeLayers(layers("2.5", "10.50", "1.5", "11.00"), dec("3.25"))

	if !shortfall.IsZero() {
		t.Fatalf("expected no shortfall, got %s", shortfall)
	}
	if !slices[1].Quantity.Equal(dec("0.75")) {
		t.Fatalf("expected split of 0.75, got %s", slices[1].Quantity)
	}
	// 2.5*10.50 + 0.75*11.00 = 26.25 + 8.25 = 34.50
	if got := SlicesCost(slices); !got.Equal(dec("34.5")) {
		t.Fatalf("expected cost 34.5, got %s", got)
	}
}

func TestDaysIn(t *testing.T) {
	cases := []struct {
		date string
		want int
	}{
		{"2024-02-10", 29},
		{"2023-02-01", 28},
		{"2024-01-31", 31},
		{"2024-04-15", 30},
	}
	for _, c := range cases {
		parsed, err := time.Parse("2006-01-02", c.date)
		if err != nil {
			t.Fatalf("parse %s: %v", c.date, err)
		}
		if got := daysIn(parsed); got != c.want {
			t.Fatalf("daysIn(%s) = %d, want %d", c.date, got, c.want)
		}
	}
}
