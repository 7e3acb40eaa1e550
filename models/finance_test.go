package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/erp_backend/models"
)

func TestCounterpartyInChargePeriod(t *testing.T) {
	created := time.Date(2026, time.January, 15, 9, 30, 0, 0, time.UTC)
	counterparty := &models.Counterparty{CreatedAt: created, ChargePeriodMonths: 3}

	if !counterparty.InChargePeriod(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected charge period open one month in")
	}
	// window closes at created_at + 3 months; the closing day still charges
	if !counterparty.InChargePeriod(time.Date(2026, time.April, 15, 23, 59, 0, 0, time.UTC)) {
		t.Fatal("expected charge period open on the closing day")
	}
	if counterparty.InChargePeriod(time.Date(2026, time.April, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected charge period closed the day after")
	}

	// zero months: only the creation day itself is inside the window
	sameDay := &models.Counterparty{CreatedAt: created, ChargePeriodMonths: 0}
	if !sameDay.InChargePeriod(created) {
		t.Fatal("expected zero-month period to cover the creation day")
	}
	if sameDay.InChargePeriod(created.AddDate(0, 0, 1)) {
		t.Fatal("expected zero-month period closed the next day")
	}
}
