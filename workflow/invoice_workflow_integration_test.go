package workflow_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
	"bitbucket.org/mmdatafocus/erp_backend/workflow"
)

// Full lifecycle test against MySQL. Set INTEGRATION_TESTS=1 and point
// DB_USER/DB_PASSWORD/DB_HOST/DB_PORT/DB_NAME at an empty test database.
func TestInvoiceLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires mysql)")
	}

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	mainWh, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	branchWh, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Branch"})
	if err != nil {
		t.Fatalf("create warehouse: %v", err)
	}

	part, err := models.CreatePart(ctx, &models.NewPart{Name: "Cap"})
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	container, err := models.CreateContainer(ctx, &models.NewContainer{Name: "Bottle 19l"})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Water 19l",
		Containers: []models.NewProductContainer{
			{ContainerId: container.ID, Quantity: decimal.NewFromInt(1)},
		},
		Parts: []models.NewProductPart{
			{PartId: part.ID, Quantity: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	// seed part stock as two receipts: 5 @ 10 then 3 @ 12
	receiveParts := func(qty, price string) int {
		t.Helper()
		inv, err := models.CreateInvoice(ctx, &models.NewInvoice{
			Type:        string(models.InvoiceTypeInvoice),
			WarehouseId: mainWh.ID,
			PartLines: []models.NewInvoicePartLine{
				{PartId: part.ID, Quantity: decimal.RequireFromString(qty), Price: decimal.RequireFromString(price)},
			},
		})
		if err != nil {
			t.Fatalf("create receipt: %v", err)
		}
		if _, err := workflow.PublishInvoice(ctx, inv.ID); err != nil {
			t.Fatalf("publish receipt: %v", err)
		}
		return inv.ID
	}
	firstReceiptId := receiveParts("5", "10")
	secondReceiptId := receiveParts("3", "12")

	partQuantities := func() []decimal.Decimal {
		t.Helper()
		var lots []*models.PartLot
		if err := db.Where("part_id = ?", part.ID).Order("id ASC").Find(&lots).Error; err != nil {
			t.Fatalf("load part lots: %v", err)
		}
		out := make([]decimal.Decimal, 0, len(lots))
		for _, lot := range lots {
			out = append(out, lot.Quantity)
		}
		return out
	}

	expectQuantities := func(got []decimal.Decimal, want ...string) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("expected %d lots, got %d", len(want), len(got))
		}
		for i := range want {
			if !got[i].Equal(decimal.RequireFromString(want[i])) {
				t.Fatalf("lot %d: expected quantity %s, got %s", i, want[i], got[i])
			}
		}
	}

	expectInvoiceCaches := func(invoiceId int, total, quantity string) {
		t.Helper()
		var inv models.Invoice
		if err := db.First(&inv, invoiceId).Error; err != nil {
			t.Fatalf("reload invoice %d: %v", invoiceId, err)
		}
		if !inv.TotalSum.Equal(decimal.RequireFromString(total)) {
			t.Fatalf("invoice %d: expected total %s, got %s", invoiceId, total, inv.TotalSum)
		}
		if !inv.Quantity.Equal(decimal.RequireFromString(quantity)) {
			t.Fatalf("invoice %d: expected quantity %s, got %s", invoiceId, quantity, inv.Quantity)
		}
	}
	expectInvoiceCaches(firstReceiptId, "50", "5")
	expectInvoiceCaches(secondReceiptId, "36", "3")

	t.Run("expense consumes oldest first and cancel restores", func(t *testing.T) {
		inv, err := models.CreateInvoice(ctx, &models.NewInvoice{
			Type:        string(models.InvoiceTypeExpense),
			WarehouseId: mainWh.ID,
			PartLines: []models.NewInvoicePartLine{
				{PartId: part.ID, Quantity: decimal.NewFromInt(6)},
			},
		})
		if err != nil {
			t.Fatalf("create expense: %v", err)
		}
		if _, err := workflow.PublishInvoice(ctx, inv.ID); err != nil {
			t.Fatalf("publish expense: %v", err)
		}
		expectQuantities(partQuantities(), "0", "2")

		// the receipts own the consumed lots, so their cached totals must
		// follow the decrement even though this invoice is a different one
		expectInvoiceCaches(firstReceiptId, "0", "0")
		expectInvoiceCaches(secondReceiptId, "24", "2")

		if _, err := workflow.CancelInvoice(ctx, inv.ID); err != nil {
			t.Fatalf("cancel expense: %v", err)
		}
		expectQuantities(partQuantities(), "5", "3")
		expectInvoiceCaches(firstReceiptId, "50", "5")
		expectInvoiceCaches(secondReceiptId, "36", "3")
	})

	t.Run("transfer past available stock rolls back entirely", func(t *testing.T) {
		inv, err := models.CreateInvoice(ctx, &models.NewInvoice{
			Type:              string(models.InvoiceTypeTransfer),
			WarehouseId:       branchWh.ID,
			SenderWarehouseId: &mainWh.ID,
			PartLines: []models.NewInvoicePartLine{
				{PartId: part.ID, Quantity: decimal.NewFromInt(10)},
			},
		})
		if err != nil {
			t.Fatalf("create transfer: %v", err)
		}
		_, err = workflow.PublishInvoice(ctx, inv.ID)
		if !errors.Is(err, utils.ErrorNotAvailableQuantity) {
			t.Fatalf("expected ErrorNotAvailableQuantity, got %v", err)
		}
		// no partial consumption may survive the rollback
		expectQuantities(partQuantities(), "5", "3")

		refreshed, err := models.GetInvoice(ctx, inv.ID)
		if err != nil {
			t.Fatalf("reload invoice: %v", err)
		}
		if refreshed.Status != models.InvoiceStatusDraft {
			t.Fatalf("failed publish must leave the invoice draft, got %s", refreshed.Status)
		}
	})

	t.Run("expense shortfall records debt and cancel clears it", func(t *testing.T) {
		inv, err := models.CreateInvoice(ctx, &models.NewInvoice{
			Type:        string(models.InvoiceTypeExpense),
			WarehouseId: mainWh.ID,
			PartLines: []models.NewInvoicePartLine{
				{PartId: part.ID, Quantity: decimal.NewFromInt(10)},
			},
		})
		if err != nil {
			t.Fatalf("create expense: %v", err)
		}
		if _, err := workflow.PublishInvoice(ctx, inv.ID); err != nil {
			t.Fatalf("debt-tolerant expense must not fail: %v", err)
		}
		expectQuantities(partQuantities(), "0", "0")

		var debts []*models.Debt
		if err := db.Where("invoice_id = ?", inv.ID).Find(&debts).Error; err != nil {
			t.Fatalf("load debts: %v", err)
		}
		if len(debts) != 1 {
			t.Fatalf("expected 1 debt, got %d", len(debts))
		}
		if !debts[0].Quantity.Equal(decimal.NewFromInt(2)) {
			t.Fatalf("expected debt of 2, got %s", debts[0].Quantity)
		}

		if _, err := workflow.CancelInvoice(ctx, inv.ID); err != nil {
			t.Fatalf("cancel expense: %v", err)
		}
		expectQuantities(partQuantities(), "5", "3")

		var count int64
		if err := db.Model(&models.Debt{}).Where("invoice_id = ?", inv.ID).Count(&count).Error; err != nil {
			t.Fatalf("count debts: %v", err)
		}
		if count != 0 {
			t.Fatalf("cancel must delete the invoice's debts, %d remain", count)
		}
	})

	t.Run("estimates price stock without consuming", func(t *testing.T) {
		loaded, err := models.GetProductWithComposition(ctx, product.ID)
		if err != nil {
			t.Fatalf("load product: %v", err)
		}

		// one unit: 2 parts @ 10; no container stock and no container
		// recipe, so the container line prices as zero
		cost, err := workflow.EstimateProductCost(db, mainWh.ID, loaded, decimal.NewFromInt(1))
		if err != nil {
			t.Fatalf("estimate product: %v", err)
		}
		if !cost.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("expected estimate 20, got %s", cost)
		}

		// five units need 10 parts: 5 @ 10 + 3 @ 12, the last 2 owed and
		// priced as zero because parts are terminal
		cost, err = workflow.EstimateProductCost(db, mainWh.ID, loaded, decimal.NewFromInt(5))
		if err != nil {
			t.Fatalf("estimate product: %v", err)
		}
		if !cost.Equal(decimal.NewFromInt(86)) {
			t.Fatalf("expected estimate 86, got %s", cost)
		}

		// a container with a part recipe and no stock prices its whole
		// shortfall by building from parts: 2 containers * 3 caps = 6 caps,
		// 5 @ 10 + 1 @ 12
		crate, err := models.CreateContainer(ctx, &models.NewContainer{
			Name: "Crate",
			Parts: []models.NewContainerPart{
				{PartId: part.ID, Quantity: decimal.NewFromInt(3)},
			},
		})
		if err != nil {
			t.Fatalf("create container: %v", err)
		}
		crateLoaded, err := models.GetContainerWithParts(ctx, crate.ID)
		if err != nil {
			t.Fatalf("load container: %v", err)
		}
		cost, err = workflow.EstimateContainerCost(db, mainWh.ID, crateLoaded, decimal.NewFromInt(2))
		if err != nil {
			t.Fatalf("estimate container: %v", err)
		}
		if !cost.Equal(decimal.NewFromInt(62)) {
			t.Fatalf("expected estimate 62, got %s", cost)
		}

		// estimating is a pure read: nothing is consumed, no debt recorded
		expectQuantities(partQuantities(), "5", "3")
		var debtCount int64
		if err := db.Model(&models.Debt{}).Count(&debtCount).Error; err != nil {
			t.Fatalf("count debts: %v", err)
		}
		if debtCount != 0 {
			t.Fatalf("estimates must not record debts, found %d", debtCount)
		}
	})

	t.Run("production rolls up component cost and mints units", func(t *testing.T) {
		// container stock: 1 @ 20
		receiptInv, err := models.CreateInvoice(ctx, &models.NewInvoice{
			Type:        string(models.InvoiceTypeInvoice),
			WarehouseId: mainWh.ID,
			ContainerLines: []models.NewInvoiceContainerLine{
				{ContainerId: container.ID, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(20)},
			},
		})
		if err != nil {
			t.Fatalf("create container receipt: %v", err)
		}
		if _, err := workflow.PublishInvoice(ctx, receiptInv.ID); err != nil {
			t.Fatalf("publish container receipt: %v", err)
		}

		// one free serial code for one produced unit
		filter := models.MarkupFilter{Name: "batch-1", ProductId: product.ID}
		if err := db.Create(&filter).Error; err != nil {
			t.Fatalf("create filter: %v", err)
		}
		markup := models.Markup{Code: "SN-0001", IsUsed: utils.NewFalse()}
		if err := db.Create(&markup).Error; err != nil {
			t.Fatalf("create markup: %v", err)
		}
		if err := db.Model(&filter).Association("Markups").Append(&markup); err != nil {
			t.Fatalf("attach markup: %v", err)
		}

		filterId := filter.ID
		prodInv, err := models.CreateInvoice(ctx, &models.NewInvoice{
			Type:        string(models.InvoiceTypeProduction),
			WarehouseId: mainWh.ID,
			ProductLines: []models.NewInvoiceProductLine{
				{ProductId: product.ID, Quantity: decimal.NewFromInt(1), MarkupFilterId: &filterId},
			},
		})
		if err != nil {
			t.Fatalf("create production: %v", err)
		}
		if _, err := workflow.PublishInvoice(ctx, prodInv.ID); err != nil {
			t.Fatalf("publish production: %v", err)
		}

		// 2 parts @ 10 + 1 container @ 20 = 40
		var lot models.ProductLot
		if err := db.Where("invoice_id = ?", prodInv.ID).First(&lot).Error; err != nil {
			t.Fatalf("load product lot: %v", err)
		}
		if !lot.Quantity.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("expected lot quantity 1, got %s", lot.Quantity)
		}
		if !lot.Price.Equal(decimal.NewFromInt(40)) {
			t.Fatalf("expected rolled-up price 40, got %s", lot.Price)
		}
		if !lot.TotalSum.Equal(decimal.NewFromInt(40)) {
			t.Fatalf("expected total 40, got %s", lot.TotalSum)
		}

		var units []*models.ProductUnit
		if err := db.Where("product_lot_id = ?", lot.ID).Find(&units).Error; err != nil {
			t.Fatalf("load units: %v", err)
		}
		if len(units) != 1 || units[0].Code != "SN-0001" {
			t.Fatalf("expected one unit with code SN-0001, got %+v", units)
		}

		expectQuantities(partQuantities(), "3", "3")

		used, free, err := workflow.ReconcileMarkupFilter(ctx, filter.ID)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if used != 1 || free != 0 {
			t.Fatalf("expected 1 used / 0 free, got %d/%d", used, free)
		}

		containerQuantity := func() decimal.Decimal {
			t.Helper()
			var containerLot models.ContainerLot
			err := db.Where("container_id = ? AND warehouse_id = ?", container.ID, mainWh.ID).
				Order("id DESC").First(&containerLot).Error
			if err != nil {
				t.Fatalf("load container lot: %v", err)
			}
			return containerLot.Quantity
		}
		if got := containerQuantity(); !got.IsZero() {
			t.Fatalf("production must have emptied the container lot, got %s", got)
		}

		// expensing the unit without its container puts the container back
		// on the newest lot, even one production already emptied
		unitId := units[0].ID
		unitExpense, err := models.CreateInvoice(ctx, &models.NewInvoice{
			Type:        string(models.InvoiceTypeExpense),
			WarehouseId: mainWh.ID,
			UnitLines: []models.NewInvoiceUnitLine{
				{ProductUnitId: unitId},
			},
		})
		if err != nil {
			t.Fatalf("create unit expense: %v", err)
		}
		if _, err := workflow.PublishInvoice(ctx, unitExpense.ID); err != nil {
			t.Fatalf("publish unit expense: %v", err)
		}
		if got := containerQuantity(); !got.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("expected container returned to stock, got %s", got)
		}
		if _, err := workflow.CancelInvoice(ctx, unitExpense.ID); err != nil {
			t.Fatalf("cancel unit expense: %v", err)
		}
		if got := containerQuantity(); !got.IsZero() {
			t.Fatalf("cancel must take the returned container back out, got %s", got)
		}

		if _, err := workflow.CancelInvoice(ctx, prodInv.ID); err != nil {
			t.Fatalf("cancel production: %v", err)
		}
		expectQuantities(partQuantities(), "5", "3")

		var unitCount int64
		if err := db.Model(&models.ProductUnit{}).Where("product_lot_id = ?", lot.ID).Count(&unitCount).Error; err != nil {
			t.Fatalf("count units: %v", err)
		}
		if unitCount != 0 {
			t.Fatalf("cancel must delete minted units, %d remain", unitCount)
		}
	})

	t.Run("transaction publish and cancel are exact inverses", func(t *testing.T) {
		register := models.CashRegister{Name: "Front desk", Balance: decimal.NewFromInt(100), IsActive: utils.NewTrue()}
		if err := db.Create(&register).Error; err != nil {
			t.Fatalf("create register: %v", err)
		}
		counterparty := models.Counterparty{Name: "Acme", IsActive: utils.NewTrue(), AutoCharge: utils.NewFalse()}
		if err := db.Create(&counterparty).Error; err != nil {
			t.Fatalf("create counterparty: %v", err)
		}

		txn, err := models.CreateTransaction(ctx, &models.NewTransaction{
			Amount:     decimal.NewFromInt(30),
			CreditType: string(models.BalanceHolderTypeCashRegister),
			CreditId:   register.ID,
			DebitType:  string(models.BalanceHolderTypeCounterparty),
			DebitId:    counterparty.ID,
		})
		if err != nil {
			t.Fatalf("create transaction: %v", err)
		}
		if _, err := workflow.PublishTransaction(ctx, txn.ID); err != nil {
			t.Fatalf("publish transaction: %v", err)
		}

		var reg models.CashRegister
		if err := db.First(&reg, register.ID).Error; err != nil {
			t.Fatalf("reload register: %v", err)
		}
		if !reg.Balance.Equal(decimal.NewFromInt(70)) {
			t.Fatalf("expected register balance 70, got %s", reg.Balance)
		}
		var cp models.Counterparty
		if err := db.First(&cp, counterparty.ID).Error; err != nil {
			t.Fatalf("reload counterparty: %v", err)
		}
		if !cp.Balance.Equal(decimal.NewFromInt(30)) {
			t.Fatalf("expected counterparty balance 30, got %s", cp.Balance)
		}

		if _, err := workflow.CancelTransaction(ctx, txn.ID); err != nil {
			t.Fatalf("cancel transaction: %v", err)
		}
		if err := db.First(&reg, register.ID).Error; err != nil {
			t.Fatalf("reload register: %v", err)
		}
		if !reg.Balance.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("cancel must restore the register to 100, got %s", reg.Balance)
		}
	})

	t.Run("system account seeding is complete and idempotent", func(t *testing.T) {
		if err := models.EnsureSystemBalanceAccounts(ctx); err != nil {
			t.Fatalf("seed accounts: %v", err)
		}
		// a second run must not duplicate anything
		if err := models.EnsureSystemBalanceAccounts(ctx); err != nil {
			t.Fatalf("reseed accounts: %v", err)
		}
		var count int64
		if err := db.Model(&models.BalanceAccount{}).Where("is_system = true").Count(&count).Error; err != nil {
			t.Fatalf("count accounts: %v", err)
		}
		if count != 12 {
			t.Fatalf("expected 12 system accounts, got %d", count)
		}
		var account models.BalanceAccount
		if err := db.Where("name = ?", models.FixedExpensesAccountName).First(&account).Error; err != nil {
			t.Fatalf("load fixed expenses account: %v", err)
		}
		if account.Code != "9430" {
			t.Fatalf("expected code 9430, got %s", account.Code)
		}
	})
}
