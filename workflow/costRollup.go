package workflow

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// ConsumeProductComponents pulls the components of quantity units of a
// product out of the warehouse and returns the rolled-up cost. Each
// composition line is scaled by quantity and consumed by FIFO; shortfalls
// become debts. This is the consuming half of production publishing.
func ConsumeProductComponents(tx *gorm.DB, logger *logrus.Logger, invoiceId int, warehouseId int, product *models.Product, quantity decimal.Decimal) (decimal.Decimal, error) {

	total := decimal.Zero

	for _, line := range product.Containers {
		required := line.Quantity.Mul(quantity)
		cost, err := CalculateContainerFifoCost(tx, logger, invoiceId, warehouseId, line.ContainerId, required)
		if err != nil {
			config.LogError(logger, "costRollup.go", "ConsumeProductComponents", "CalculateContainerFifoCost", line.ContainerId, err)
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	for _, line := range product.Parts {
		required := line.Quantity.Mul(quantity)
		cost, err := CalculatePartFifoCost(tx, logger, invoiceId, warehouseId, line.PartId, required)
		if err != nil {
			config.LogError(logger, "costRollup.go", "ConsumeProductComponents", "CalculatePartFifoCost", line.PartId, err)
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	return utils.RoundMoney(total), nil
}

// EstimateContainerCost prices quantity units of a container against
// current stock without mutating anything. When the container lots run out,
// the remainder is priced by building containers from their part recipe,
// walking part stock the same way.
func EstimateContainerCost(tx *gorm.DB, warehouseId int, container *models.Container, quantity decimal.Decimal) (decimal.Decimal, error) {

	lots, err := models.AvailableContainerLots(tx, warehouseId, container.ID, false)
	if err != nil {
		return decimal.Zero, err
	}
	slices, shortfall := consumeLayers(containerLayers(lots), quantity)
	total := SlicesCost(slices)

	if shortfall.IsPositive() && len(container.Parts) > 0 {
		for _, line := range container.Parts {
			cost, err := EstimatePartCost(tx, warehouseId, line.PartId, line.Quantity.Mul(shortfall))
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(cost)
		}
	}
	return utils.RoundMoney(total), nil
}

// EstimatePartCost prices quantity units of a part against current stock
// without mutating anything. Parts are terminal, so a shortfall simply
// prices as zero.
func EstimatePartCost(tx *gorm.DB, warehouseId int, partId int, quantity decimal.Decimal) (decimal.Decimal, error) {

	lots, err := models.AvailablePartLots(tx, warehouseId, partId, false)
	if err != nil {
		return decimal.Zero, err
	}
	slices, _ := consumeLayers(partLayers(lots), quantity)
	return SlicesCost(slices), nil
}

// EstimateProductCost prices quantity units of a product by rolling up its
// composition against current stock. Pure read; the number a caller shows
// before committing a production.
func EstimateProductCost(tx *gorm.DB, warehouseId int, product *models.Product, quantity decimal.Decimal) (decimal.Decimal, error) {

	total := decimal.Zero

	for _, line := range product.Containers {
		if line.Container == nil {
			return decimal.Zero, utils.ErrorRecordNotFound
		}
		cost, err := EstimateContainerCost(tx, warehouseId, line.Container, line.Quantity.Mul(quantity))
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	for _, line := range product.Parts {
		cost, err := EstimatePartCost(tx, warehouseId, line.PartId, line.Quantity.Mul(quantity))
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	return utils.RoundMoney(total), nil
}
