package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

const stockPostingScope = "stock"

// PublishInvoice applies the invoice's ledger effect and moves it from
// draft to published. The whole effect runs in one DB transaction under the
// posting lock; any failure rolls everything back and the invoice stays
// draft.
func PublishInvoice(ctx context.Context, invoiceId int) (*models.Invoice, error) {

	db := config.GetDB()
	logger := config.GetLogger()

	var invoice *models.Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := AcquirePostingLock(tx, stockPostingScope); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, stockPostingScope)

		var err error
		invoice, err = models.FetchInvoiceForUpdate(tx, invoiceId)
		if err != nil {
			return err
		}
		if invoice.Status != models.InvoiceStatusDraft {
			return fmt.Errorf("invoice %d is %s, only draft invoices can be published", invoiceId, invoice.Status)
		}

		switch invoice.Type {
		case models.InvoiceTypeInvoice:
			err = publishReceipt(tx, invoice)
		case models.InvoiceTypeProduction:
			err = publishProduction(tx, logger, invoice)
		case models.InvoiceTypeExpense:
			err = publishExpense(tx, logger, invoice)
		case models.InvoiceTypeTransfer:
			err = publishTransfer(tx, logger, invoice)
		default:
			err = fmt.Errorf("unknown invoice type: %s", invoice.Type)
		}
		if err != nil {
			return err
		}

		invoice.Status = models.InvoiceStatusPublished
		if err := tx.Save(invoice).Error; err != nil {
			return err
		}
		if err := recomputeAffectedTotals(tx, invoice.ID); err != nil {
			return err
		}
		return models.CreateInvoiceLog(tx, ctx, invoice.ID, "publish", "")
	})
	if err != nil {
		config.LogError(logger, "invoiceWorkflow.go", "PublishInvoice", "Transaction", invoiceId, err)
		return nil, err
	}
	return invoice, nil
}

// publishReceipt creates container and part lots at the receiving warehouse
// at the prices on the lines.
func publishReceipt(tx *gorm.DB, invoice *models.Invoice) error {
	for _, line := range invoice.ContainerLines {
		if _, err := IncreaseContainer(tx, invoice.ID, invoice.WarehouseId, line.ContainerId, line.Quantity, line.Price, nil); err != nil {
			return err
		}
	}
	for _, line := range invoice.PartLines {
		if _, err := IncreasePart(tx, invoice.ID, invoice.WarehouseId, line.PartId, line.Quantity, line.Price, nil); err != nil {
			return err
		}
	}
	return nil
}

// publishProduction consumes each product line's components by FIFO, mints
// a product lot priced at the rolled-up cost, and stamps one serial code
// per produced unit. The code count must match the lot quantity exactly.
func publishProduction(tx *gorm.DB, logger *logrus.Logger, invoice *models.Invoice) error {

	for _, line := range invoice.ProductLines {

		if !line.Quantity.IsInteger() {
			return utils.ErrorNotRightQuantity
		}
		if line.MarkupFilterId == nil {
			return errors.New("production line requires a markup filter")
		}

		var filter models.MarkupFilter
		if err := tx.First(&filter, *line.MarkupFilterId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if filter.ProductId != line.ProductId {
			return fmt.Errorf("markup filter %d belongs to a different product", filter.ID)
		}

		var product models.Product
		err := tx.
			Preload("Containers").
			Preload("Parts").
			First(&product, line.ProductId).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}

		cost, err := ConsumeProductComponents(tx, logger, invoice.ID, invoice.WarehouseId, &product, line.Quantity)
		if err != nil {
			return err
		}
		unitPrice := utils.RoundMoney(utils.SafeDiv(cost, line.Quantity))

		lot, err := IncreaseProduct(tx, invoice.ID, invoice.WarehouseId, line.ProductId, line.Quantity, unitPrice, nil)
		if err != nil {
			return err
		}

		unitCount := int(line.Quantity.IntPart())
		markups, err := models.GetFreeMarkupsByFilter(tx, filter.ID, unitCount)
		if err != nil {
			return err
		}
		if len(markups) != unitCount {
			return utils.ErrorNotRightQuantity
		}
		for _, markup := range markups {
			unit := models.ProductUnit{
				Code:         markup.Code,
				ProductLotId: lot.ID,
			}
			if err := tx.Create(&unit).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// publishExpense writes stock off. Container and part lines consume with
// debt tolerance; unit lines move serialized units into expense-side lots
// grouped by product and price. A unit whose line is not flagged
// with_container leaves its container behind, returned to the newest
// container lot.
func publishExpense(tx *gorm.DB, logger *logrus.Logger, invoice *models.Invoice) error {

	for _, line := range invoice.ContainerLines {
		if _, err := DecreaseContainer(tx, logger, invoice.ID, invoice.WarehouseId, line.ContainerId, line.Quantity, true); err != nil {
			return err
		}
	}
	for _, line := range invoice.PartLines {
		if _, err := DecreasePart(tx, logger, invoice.ID, invoice.WarehouseId, line.PartId, line.Quantity, true); err != nil {
			return err
		}
	}
	return moveUnits(tx, logger, invoice, invoice.WarehouseId)
}

// publishTransfer moves stock from the sender warehouse to the receiver.
// Shortfalls abort: a transfer cannot move stock that does not exist. Every
// consumed slice reappears as a new lot at the receiver, at the slice's
// price, linked back to its source lot.
func publishTransfer(tx *gorm.DB, logger *logrus.Logger, invoice *models.Invoice) error {

	if invoice.SenderWarehouseId == nil {
		return errors.New("transfer has no sender warehouse")
	}
	sender := *invoice.SenderWarehouseId

	for _, line := range invoice.ContainerLines {
		slices, err := DecreaseContainer(tx, logger, invoice.ID, sender, line.ContainerId, line.Quantity, false)
		if err != nil {
			return err
		}
		for _, s := range slices {
			sourceLotId := s.LotId
			if _, err := IncreaseContainer(tx, invoice.ID, invoice.WarehouseId, line.ContainerId, s.Quantity, s.Price, &sourceLotId); err != nil {
				return err
			}
		}
	}
	for _, line := range invoice.PartLines {
		slices, err := DecreasePart(tx, logger, invoice.ID, sender, line.PartId, line.Quantity, false)
		if err != nil {
			return err
		}
		for _, s := range slices {
			sourceLotId := s.LotId
			if _, err := IncreasePart(tx, invoice.ID, invoice.WarehouseId, line.PartId, s.Quantity, s.Price, &sourceLotId); err != nil {
				return err
			}
		}
	}
	return moveUnits(tx, logger, invoice, sender)
}

// moveUnits takes the invoice's unit lines out of their lots one unit at a
// time and regroups them into new lots under the invoice, one lot per
// (product, price) pair. The new lots sit at the invoice's receiving
// warehouse; for expenses that warehouse is the write-off side and the lots
// are never consumable because their invoice is an expense.
func moveUnits(tx *gorm.DB, logger *logrus.Logger, invoice *models.Invoice, sourceWarehouseId int) error {

	if len(invoice.UnitLines) == 0 {
		return nil
	}

	unitIds := make([]int, 0, len(invoice.UnitLines))
	withContainer := make(map[int]bool, len(invoice.UnitLines))
	for _, line := range invoice.UnitLines {
		unitIds = append(unitIds, line.ProductUnitId)
		withContainer[line.ProductUnitId] = utils.DereferencePtr(line.WithContainer)
	}

	units, err := models.UnitsByIds(tx, unitIds)
	if err != nil {
		return err
	}

	type groupKey struct {
		productId int
		price     string
	}
	destLots := make(map[groupKey]*models.ProductLot)

	for _, unit := range units {
		sourceLot := unit.ProductLot
		if sourceLot == nil {
			return utils.ErrorRecordNotFound
		}
		if sourceLot.WarehouseId != sourceWarehouseId {
			return fmt.Errorf("unit %d is not in warehouse %d", unit.ID, sourceWarehouseId)
		}
		// serialized stock never goes into debt: a unit without backing
		// quantity cannot leave
		if sourceLot.Quantity.LessThan(decimal.NewFromInt(1)) {
			return utils.ErrorNotAvailableQuantity
		}

		sourceLot.Quantity = sourceLot.Quantity.Sub(decimal.NewFromInt(1))
		sourceLot.CalcTotalSum()
		if err := tx.Save(sourceLot).Error; err != nil {
			return err
		}
		if err := models.RecordLotConsumption(tx, invoice.ID, models.CommodityKindProduct, sourceLot.ID, decimal.NewFromInt(1)); err != nil {
			return err
		}

		key := groupKey{productId: sourceLot.ProductId, price: sourceLot.Price.String()}
		destLot, ok := destLots[key]
		if !ok {
			destLot, err = IncreaseProduct(tx, invoice.ID, invoice.WarehouseId, sourceLot.ProductId, decimal.Zero, sourceLot.Price, nil)
			if err != nil {
				return err
			}
			destLots[key] = destLot
		}
		destLot.Quantity = destLot.Quantity.Add(decimal.NewFromInt(1))
		destLot.ConstQuantity = destLot.ConstQuantity.Add(decimal.NewFromInt(1))
		destLot.CalcTotalSum()
		if err := tx.Save(destLot).Error; err != nil {
			return err
		}

		fromLotId := sourceLot.ID
		unit.ProductLotId = destLot.ID
		if err := tx.Save(unit).Error; err != nil {
			return err
		}
		if err := models.RecordUnitTransfer(tx, invoice.ID, unit.ID, fromLotId, destLot.ID); err != nil {
			return err
		}

		// expense without the container: the container stays behind and
		// goes back onto the newest consumable lot
		if invoice.Type == models.InvoiceTypeExpense && !withContainer[unit.ID] {
			if err := returnUnitContainers(tx, logger, invoice, sourceWarehouseId, sourceLot.ProductId); err != nil {
				return err
			}
		}
	}
	return nil
}

// returnUnitContainers puts one unit's worth of containers back on stock
// after an expense that kept the containers. Recorded in the trail with
// negative quantity so cancellation takes them out again.
func returnUnitContainers(tx *gorm.DB, logger *logrus.Logger, invoice *models.Invoice, warehouseId int, productId int) error {

	var compositionLines []models.ProductContainer
	if err := tx.Where("product_id = ?", productId).Find(&compositionLines).Error; err != nil {
		return err
	}

	for _, line := range compositionLines {
		lot, err := models.NewestContainerLot(tx, warehouseId, line.ContainerId)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// nothing to return onto; the container is simply gone
			logger.WithFields(logrus.Fields{
				"module":      "invoiceWorkflow.go",
				"containerId": line.ContainerId,
				"warehouseId": warehouseId,
			}).Warn("no container lot to return containers to")
			continue
		}
		if err != nil {
			return err
		}
		lot.Quantity = lot.Quantity.Add(line.Quantity)
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return err
		}
		if err := models.RecordLotConsumption(tx, invoice.ID, models.CommodityKindContainer, lot.ID, line.Quantity.Neg()); err != nil {
			return err
		}
	}
	return nil
}

// CancelInvoice reverses a published invoice's ledger effect and moves it
// to canceled. The reversal replays the consumption trail backwards rather
// than reconstructing state, so it is exact even after partial-lot splits.
func CancelInvoice(ctx context.Context, invoiceId int) (*models.Invoice, error) {

	db := config.GetDB()
	logger := config.GetLogger()

	var invoice *models.Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := AcquirePostingLock(tx, stockPostingScope); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, stockPostingScope)

		var err error
		invoice, err = models.FetchInvoiceForUpdate(tx, invoiceId)
		if err != nil {
			return err
		}
		if invoice.Status != models.InvoiceStatusPublished {
			return fmt.Errorf("invoice %d is %s, only published invoices can be canceled", invoiceId, invoice.Status)
		}

		switch invoice.Type {
		case models.InvoiceTypeInvoice:
			err = cancelReceipt(tx, invoice)
		case models.InvoiceTypeProduction:
			err = cancelProduction(tx, invoice)
		case models.InvoiceTypeExpense:
			err = cancelExpense(tx, invoice)
		case models.InvoiceTypeTransfer:
			err = cancelTransfer(tx, invoice)
		default:
			err = fmt.Errorf("unknown invoice type: %s", invoice.Type)
		}
		if err != nil {
			return err
		}

		if err := models.DeleteDebtsByInvoice(tx, invoice.ID); err != nil {
			return err
		}
		if err := recomputeAffectedTotals(tx, invoice.ID); err != nil {
			return err
		}

		invoice.Status = models.InvoiceStatusCanceled
		if err := tx.Save(invoice).Error; err != nil {
			return err
		}
		return models.CreateInvoiceLog(tx, ctx, invoice.ID, "cancel", "")
	})
	if err != nil {
		config.LogError(logger, "invoiceWorkflow.go", "CancelInvoice", "Transaction", invoiceId, err)
		return nil, err
	}
	return invoice, nil
}

// requireUntouchedAndZero verifies none of the invoice's lots have been
// consumed since publish, then drives them to zero. Canceling stock that
// something else already drew from is refused.
func requireUntouchedAndZero(tx *gorm.DB, invoiceId int) error {

	productLots, containerLots, partLots, err := models.LotsByInvoice(tx, invoiceId)
	if err != nil {
		return err
	}
	for _, lot := range productLots {
		if !lot.Quantity.Equal(lot.ConstQuantity) {
			return utils.ErrorNotAvailableQuantity
		}
		lot.Quantity = decimal.Zero
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return err
		}
	}
	for _, lot := range containerLots {
		if !lot.Quantity.Equal(lot.ConstQuantity) {
			return utils.ErrorNotAvailableQuantity
		}
		lot.Quantity = decimal.Zero
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return err
		}
	}
	for _, lot := range partLots {
		if !lot.Quantity.Equal(lot.ConstQuantity) {
			return utils.ErrorNotAvailableQuantity
		}
		lot.Quantity = decimal.Zero
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return err
		}
	}
	return nil
}

// replayConsumptionTrail undoes every unreversed consumption row of the
// invoice, newest first. Positive rows put stock back; negative rows (the
// container returns) take it out again.
func replayConsumptionTrail(tx *gorm.DB, invoiceId int) error {

	rows, err := models.ConsumptionsByInvoice(tx, invoiceId)
	if err != nil {
		return err
	}
	for _, row := range rows {
		switch row.Kind {
		case models.CommodityKindProduct:
			var lot models.ProductLot
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lot, row.LotId).Error; err != nil {
				return utils.ErrorRecordNotFound
			}
			lot.Quantity = lot.Quantity.Add(row.Quantity)
			lot.CalcTotalSum()
			if err := tx.Save(&lot).Error; err != nil {
				return err
			}
		case models.CommodityKindContainer:
			var lot models.ContainerLot
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lot, row.LotId).Error; err != nil {
				return utils.ErrorRecordNotFound
			}
			lot.Quantity = lot.Quantity.Add(row.Quantity)
			lot.CalcTotalSum()
			if err := tx.Save(&lot).Error; err != nil {
				return err
			}
		case models.CommodityKindPart:
			var lot models.PartLot
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lot, row.LotId).Error; err != nil {
				return utils.ErrorRecordNotFound
			}
			lot.Quantity = lot.Quantity.Add(row.Quantity)
			lot.CalcTotalSum()
			if err := tx.Save(&lot).Error; err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown commodity kind in trail: %s", row.Kind)
		}
		if err := models.MarkConsumptionReversed(tx, row.ID); err != nil {
			return err
		}
	}
	return nil
}

// replayUnitTransfers moves every unit the invoice relocated back to its
// source lot.
func replayUnitTransfers(tx *gorm.DB, invoiceId int) error {

	rows, err := models.UnitTransfersByInvoice(tx, invoiceId)
	if err != nil {
		return err
	}
	for _, row := range rows {
		err := tx.Model(&models.ProductUnit{}).
			Where("id = ?", row.ProductUnitId).
			Update("product_lot_id", row.FromLotId).Error
		if err != nil {
			return err
		}
		if err := models.MarkUnitTransferReversed(tx, row.ID); err != nil {
			return err
		}
	}
	return nil
}

func cancelReceipt(tx *gorm.DB, invoice *models.Invoice) error {
	return requireUntouchedAndZero(tx, invoice.ID)
}

// cancelProduction dissolves the produced lots back into their components:
// the minted units disappear, freeing their codes, and the consumed
// containers and parts return via the trail.
func cancelProduction(tx *gorm.DB, invoice *models.Invoice) error {

	productLots, _, _, err := models.LotsByInvoice(tx, invoice.ID)
	if err != nil {
		return err
	}

	if err := requireUntouchedAndZero(tx, invoice.ID); err != nil {
		return err
	}
	for _, lot := range productLots {
		if err := tx.Where("product_lot_id = ?", lot.ID).Delete(&models.ProductUnit{}).Error; err != nil {
			return err
		}
	}
	return replayConsumptionTrail(tx, invoice.ID)
}

// cancelExpense puts the written-off stock back: consumed lots refill via
// the trail, moved units walk back to their source lots, and the
// expense-side holding lots drain to zero.
func cancelExpense(tx *gorm.DB, invoice *models.Invoice) error {

	if err := replayUnitTransfers(tx, invoice.ID); err != nil {
		return err
	}
	if err := replayConsumptionTrail(tx, invoice.ID); err != nil {
		return err
	}
	return zeroInvoiceLots(tx, invoice.ID)
}

// cancelTransfer undoes the move: receiver-side lots must be untouched and
// drain to zero, sender-side lots refill via the trail, units walk back,
// and the two warehouses swap so the document reads as the reverse
// movement.
func cancelTransfer(tx *gorm.DB, invoice *models.Invoice) error {

	if err := requireUntouchedAndZero(tx, invoice.ID); err != nil {
		return err
	}
	if err := replayUnitTransfers(tx, invoice.ID); err != nil {
		return err
	}
	if err := replayConsumptionTrail(tx, invoice.ID); err != nil {
		return err
	}

	sender := *invoice.SenderWarehouseId
	receiver := invoice.WarehouseId
	invoice.WarehouseId = sender
	invoice.SenderWarehouseId = &receiver
	return nil
}

// recomputeAffectedTotals refreshes the denormalized total and quantity of
// every invoice whose lots this invoice touched: its own, plus the owners
// of every lot the consumption and unit trails point into. Without this a
// consuming invoice would leave the supplying receipts' cached totals
// stale.
func recomputeAffectedTotals(tx *gorm.DB, invoiceId int) error {

	affected := map[int]bool{invoiceId: true}

	var consumptions []*models.LotConsumption
	if err := tx.Where("invoice_id = ?", invoiceId).Find(&consumptions).Error; err != nil {
		return err
	}
	lotsByKind := make(map[models.CommodityKind][]int)
	for _, row := range consumptions {
		lotsByKind[row.Kind] = append(lotsByKind[row.Kind], row.LotId)
	}

	var transfers []*models.UnitTransfer
	if err := tx.Where("invoice_id = ?", invoiceId).Find(&transfers).Error; err != nil {
		return err
	}
	for _, row := range transfers {
		lotsByKind[models.CommodityKindProduct] = append(lotsByKind[models.CommodityKindProduct], row.FromLotId, row.ToLotId)
	}

	tables := map[models.CommodityKind]string{
		models.CommodityKindProduct:   "product_lots",
		models.CommodityKindContainer: "container_lots",
		models.CommodityKindPart:      "part_lots",
	}
	for kind, lotIds := range lotsByKind {
		if len(lotIds) == 0 {
			continue
		}
		var owners []int
		err := tx.Table(tables[kind]).
			Where("id IN ?", lotIds).
			Distinct().
			Pluck("invoice_id", &owners).Error
		if err != nil {
			return err
		}
		for _, id := range owners {
			affected[id] = true
		}
	}

	// stable order keeps lock acquisition deterministic
	ids := make([]int, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if _, err := models.RecomputeInvoiceTotal(tx, id); err != nil {
			return err
		}
	}
	return nil
}

// zeroInvoiceLots drains the lots an invoice created without the untouched
// check. Used for expense cancellation where the holding lots legitimately
// emptied as units walked back.
func zeroInvoiceLots(tx *gorm.DB, invoiceId int) error {
	productLots, containerLots, partLots, err := models.LotsByInvoice(tx, invoiceId)
	if err != nil {
		return err
	}
	for _, lot := range productLots {
		lot.Quantity = decimal.Zero
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return err
		}
	}
	for _, lot := range containerLots {
		lot.Quantity = decimal.Zero
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return err
		}
	}
	for _, lot := range partLots {
		lot.Quantity = decimal.Zero
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return err
		}
	}
	return nil
}
