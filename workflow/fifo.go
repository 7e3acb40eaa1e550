package workflow

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// FifoLayer is one consumable lot as the walk sees it: remaining quantity
// at the lot's price. Layers arrive oldest first.
type FifoLayer struct {
	LotId    int
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// ConsumedSlice is the part of one layer a consumption took. A slice keeps
// the source layer's price, which is what makes the costing FIFO.
type ConsumedSlice struct {
	LotId    int
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// consumeLayers walks layers in order and takes required quantity, splitting
// the last touched layer. Returns the slices taken and whatever part of
// required the layers could not cover.
func consumeLayers(layers []FifoLayer, required decimal.Decimal) ([]ConsumedSlice, decimal.Decimal) {

	remaining := required
	var slices []ConsumedSlice

	for _, layer := range layers {
		if !remaining.IsPositive() {
			break
		}
		if !layer.Quantity.IsPositive() {
			continue
		}
		take := decimal.Min(layer.Quantity, remaining)
		slices = append(slices, ConsumedSlice{
			LotId:    layer.LotId,
			Quantity: take,
			Price:    layer.Price,
		})
		remaining = remaining.Sub(take)
	}
	return slices, remaining
}

// SlicesCost sums quantity * price over the slices.
func SlicesCost(slices []ConsumedSlice) decimal.Decimal {
	cost := decimal.Zero
	for _, s := range slices {
		cost = cost.Add(s.Quantity.Mul(s.Price))
	}
	return utils.RoundMoney(cost)
}

func containerLayers(lots []*models.ContainerLot) []FifoLayer {
	layers := make([]FifoLayer, 0, len(lots))
	for _, lot := range lots {
		layers = append(layers, FifoLayer{LotId: lot.ID, Quantity: lot.Quantity, Price: lot.Price})
	}
	return layers
}

func partLayers(lots []*models.PartLot) []FifoLayer {
	layers := make([]FifoLayer, 0, len(lots))
	for _, lot := range lots {
		layers = append(layers, FifoLayer{LotId: lot.ID, Quantity: lot.Quantity, Price: lot.Price})
	}
	return layers
}

// DecreaseContainer consumes quantity of a container from the warehouse in
// FIFO order under invoiceId, writing the lot updates and the consumption
// trail. With allowDebt the shortfall becomes a Debt record; without it the
// shortfall is an error and the caller's transaction must roll back.
func DecreaseContainer(tx *gorm.DB, logger *logrus.Logger, invoiceId int, warehouseId int, containerId int, quantity decimal.Decimal, allowDebt bool) ([]ConsumedSlice, error) {

	lots, err := models.AvailableContainerLots(tx, warehouseId, containerId, true)
	if err != nil {
		config.LogError(logger, "fifo.go", "DecreaseContainer", "AvailableContainerLots", containerId, err)
		return nil, err
	}

	slices, shortfall := consumeLayers(containerLayers(lots), quantity)
	if shortfall.IsPositive() && !allowDebt {
		return nil, utils.ErrorNotAvailableQuantity
	}

	byLot := make(map[int]*models.ContainerLot, len(lots))
	for _, lot := range lots {
		byLot[lot.ID] = lot
	}
	for _, s := range slices {
		lot := byLot[s.LotId]
		lot.Quantity = lot.Quantity.Sub(s.Quantity)
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			config.LogError(logger, "fifo.go", "DecreaseContainer", "SaveLot", lot.ID, err)
			return nil, err
		}
		if err := models.RecordLotConsumption(tx, invoiceId, models.CommodityKindContainer, s.LotId, s.Quantity); err != nil {
			config.LogError(logger, "fifo.go", "DecreaseContainer", "RecordLotConsumption", s.LotId, err)
			return nil, err
		}
	}

	if shortfall.IsPositive() {
		if err := models.CreateContainerDebt(tx, invoiceId, warehouseId, containerId, shortfall); err != nil {
			config.LogError(logger, "fifo.go", "DecreaseContainer", "CreateContainerDebt", containerId, err)
			return nil, err
		}
	}
	return slices, nil
}

// DecreasePart consumes quantity of a part from the warehouse in FIFO
// order. Same contract as DecreaseContainer.
func DecreasePart(tx *gorm.DB, logger *logrus.Logger, invoiceId int, warehouseId int, partId int, quantity decimal.Decimal, allowDebt bool) ([]ConsumedSlice, error) {

	lots, err := models.AvailablePartLots(tx, warehouseId, partId, true)
	if err != nil {
		config.LogError(logger, "fifo.go", "DecreasePart", "AvailablePartLots", partId, err)
		return nil, err
	}

	slices, shortfall := consumeLayers(partLayers(lots), quantity)
	if shortfall.IsPositive() && !allowDebt {
		return nil, utils.ErrorNotAvailableQuantity
	}

	byLot := make(map[int]*models.PartLot, len(lots))
	for _, lot := range lots {
		byLot[lot.ID] = lot
	}
	for _, s := range slices {
		lot := byLot[s.LotId]
		lot.Quantity = lot.Quantity.Sub(s.Quantity)
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			config.LogError(logger, "fifo.go", "DecreasePart", "SaveLot", lot.ID, err)
			return nil, err
		}
		if err := models.RecordLotConsumption(tx, invoiceId, models.CommodityKindPart, s.LotId, s.Quantity); err != nil {
			config.LogError(logger, "fifo.go", "DecreasePart", "RecordLotConsumption", s.LotId, err)
			return nil, err
		}
	}

	if shortfall.IsPositive() {
		if err := models.CreatePartDebt(tx, invoiceId, warehouseId, partId, shortfall); err != nil {
			config.LogError(logger, "fifo.go", "DecreasePart", "CreatePartDebt", partId, err)
			return nil, err
		}
	}
	return slices, nil
}

// CalculateContainerFifoCost consumes quantity of a container for costing:
// the shortfall always becomes a debt and the cost covers only what stock
// existed. Production costing runs on this.
func CalculateContainerFifoCost(tx *gorm.DB, logger *logrus.Logger, invoiceId int, warehouseId int, containerId int, quantity decimal.Decimal) (decimal.Decimal, error) {
	slices, err := DecreaseContainer(tx, logger, invoiceId, warehouseId, containerId, quantity, true)
	if err != nil {
		return decimal.Zero, err
	}
	return SlicesCost(slices), nil
}

// CalculatePartFifoCost is CalculateContainerFifoCost for parts.
func CalculatePartFifoCost(tx *gorm.DB, logger *logrus.Logger, invoiceId int, warehouseId int, partId int, quantity decimal.Decimal) (decimal.Decimal, error) {
	slices, err := DecreasePart(tx, logger, invoiceId, warehouseId, partId, quantity, true)
	if err != nil {
		return decimal.Zero, err
	}
	return SlicesCost(slices), nil
}

// IncreaseContainer creates a container lot under invoiceId. sourceLotId is
// set when the stock was carved from another lot by a transfer.
func IncreaseContainer(tx *gorm.DB, invoiceId int, warehouseId int, containerId int, quantity decimal.Decimal, price decimal.Decimal, sourceLotId *int) (*models.ContainerLot, error) {
	lot := models.ContainerLot{
		LotCore: models.LotCore{
			WarehouseId:   warehouseId,
			InvoiceId:     invoiceId,
			SourceLotId:   sourceLotId,
			Quantity:      quantity,
			ConstQuantity: quantity,
			Price:         price,
		},
		ContainerId: containerId,
	}
	lot.CalcTotalSum()
	if err := tx.Create(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// IncreasePart creates a part lot under invoiceId.
func IncreasePart(tx *gorm.DB, invoiceId int, warehouseId int, partId int, quantity decimal.Decimal, price decimal.Decimal, sourceLotId *int) (*models.PartLot, error) {
	lot := models.PartLot{
		LotCore: models.LotCore{
			WarehouseId:   warehouseId,
			InvoiceId:     invoiceId,
			SourceLotId:   sourceLotId,
			Quantity:      quantity,
			ConstQuantity: quantity,
			Price:         price,
		},
		PartId: partId,
	}
	lot.CalcTotalSum()
	if err := tx.Create(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// IncreaseProduct creates a product lot under invoiceId.
func IncreaseProduct(tx *gorm.DB, invoiceId int, warehouseId int, productId int, quantity decimal.Decimal, price decimal.Decimal, sourceLotId *int) (*models.ProductLot, error) {
	lot := models.ProductLot{
		LotCore: models.LotCore{
			WarehouseId:   warehouseId,
			InvoiceId:     invoiceId,
			SourceLotId:   sourceLotId,
			Quantity:      quantity,
			ConstQuantity: quantity,
			Price:         price,
		},
		ProductId: productId,
	}
	lot.CalcTotalSum()
	if err := tx.Create(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}
