package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LotCore carries the fields shared by product, container and part lots.
//
// Quantity is the remaining stock; ConstQuantity is the quantity the lot was
// created with and never changes after publish. TotalSum is always
// Quantity * Price, maintained by CalcTotalSum at every write.
//
// SourceLotId links a transfer-created lot back to the lot its stock was
// carved from, so the slice keeps the source price and cancellation can put
// the stock back where it came from.
type LotCore struct {
	ID            int             `gorm:"primary_key" json:"id"`
	WarehouseId   int             `gorm:"index;not null" json:"warehouse_id"`
	InvoiceId     int             `gorm:"index;not null" json:"invoice_id"`
	SourceLotId   *int            `gorm:"index" json:"source_lot_id"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	ConstQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"const_quantity"`
	Price         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	TotalSum      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_sum"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CalcTotalSum refreshes TotalSum from the current quantity and price.
func (c *LotCore) CalcTotalSum() {
	c.TotalSum = c.Quantity.Mul(c.Price).Round(4)
}

type ProductLot struct {
	LotCore
	ProductId int `gorm:"index;not null" json:"product_id"`

	Product *Product `gorm:"foreignKey:ProductId" json:"product,omitempty"`
}

type ContainerLot struct {
	LotCore
	ContainerId int `gorm:"index;not null" json:"container_id"`

	Container *Container `gorm:"foreignKey:ContainerId" json:"container,omitempty"`
}

type PartLot struct {
	LotCore
	PartId int `gorm:"index;not null" json:"part_id"`

	Part *Part `gorm:"foreignKey:PartId" json:"part,omitempty"`
}

func (ProductLot) TableName() string   { return "product_lots" }
func (ContainerLot) TableName() string { return "container_lots" }
func (PartLot) TableName() string      { return "part_lots" }

// availableLotScope restricts a lot query to consumable stock: the owning
// invoice must be published and must not be an expense, and the lot must
// still hold quantity. Rows come back in consumption order; forUpdate locks
// them for the duration of tx.
func availableLotScope(tx *gorm.DB, table string, warehouseId int, forUpdate bool) *gorm.DB {
	if forUpdate {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx.
		Joins("JOIN invoices ON invoices.id = "+table+".invoice_id").
		Where("invoices.status = ?", InvoiceStatusPublished).
		Where("invoices.type != ?", InvoiceTypeExpense).
		Where(table+".warehouse_id = ?", warehouseId).
		Where(table+".quantity > 0").
		Order(table + ".created_at ASC, " + table + ".id ASC")
}

// AvailableContainerLots returns the consumable container lots in FIFO
// order. forUpdate locks them for the duration of tx.
func AvailableContainerLots(tx *gorm.DB, warehouseId int, containerId int, forUpdate bool) ([]*ContainerLot, error) {
	var lots []*ContainerLot
	err := availableLotScope(tx, "container_lots", warehouseId, forUpdate).
		Where("container_lots.container_id = ?", containerId).
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// AvailablePartLots returns the consumable part lots in FIFO order.
// forUpdate locks them for the duration of tx.
func AvailablePartLots(tx *gorm.DB, warehouseId int, partId int, forUpdate bool) ([]*PartLot, error) {
	var lots []*PartLot
	err := availableLotScope(tx, "part_lots", warehouseId, forUpdate).
		Where("part_lots.part_id = ?", partId).
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// AvailableProductLots returns the consumable product lots in FIFO order.
// forUpdate locks them for the duration of tx.
func AvailableProductLots(tx *gorm.DB, warehouseId int, productId int, forUpdate bool) ([]*ProductLot, error) {
	var lots []*ProductLot
	err := availableLotScope(tx, "product_lots", warehouseId, forUpdate).
		Where("product_lots.product_id = ?", productId).
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// NewestContainerLot returns the most recently created consumable lot of a
// container. Expense invoices that return a container put the stock here.
func NewestContainerLot(tx *gorm.DB, warehouseId int, containerId int) (*ContainerLot, error) {
	var lot ContainerLot
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Joins("JOIN invoices ON invoices.id = container_lots.invoice_id").
		Where("invoices.status = ?", InvoiceStatusPublished).
		Where("invoices.type != ?", InvoiceTypeExpense).
		Where("container_lots.warehouse_id = ?", warehouseId).
		Where("container_lots.container_id = ?", containerId).
		Order("container_lots.created_at DESC, container_lots.id DESC").
		First(&lot).Error
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// LotsByInvoice loads every lot an invoice created, used by cancellation
// and total recomputation.
func LotsByInvoice(tx *gorm.DB, invoiceId int) ([]*ProductLot, []*ContainerLot, []*PartLot, error) {
	var productLots []*ProductLot
	var containerLots []*ContainerLot
	var partLots []*PartLot

	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ?", invoiceId).Order("id ASC").
		Find(&productLots).Error; err != nil {
		return nil, nil, nil, err
	}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ?", invoiceId).Order("id ASC").
		Find(&containerLots).Error; err != nil {
		return nil, nil, nil, err
	}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ?", invoiceId).Order("id ASC").
		Find(&partLots).Error; err != nil {
		return nil, nil, nil, err
	}
	return productLots, containerLots, partLots, nil
}
