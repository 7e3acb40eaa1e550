package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/erp_backend/config"
)

// Debt records the unfulfilled remainder of a debt-tolerant consumption:
// the warehouse owed Quantity units of a container or part when the invoice
// was published. Canceling the invoice deletes its debts.
type Debt struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Type        DebtType        `gorm:"size:20;not null;index" json:"type"`
	ContainerId *int            `gorm:"index" json:"container_id"`
	PartId      *int            `gorm:"index" json:"part_id"`
	WarehouseId int             `gorm:"index;not null" json:"warehouse_id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Container *Container `gorm:"foreignKey:ContainerId" json:"container,omitempty"`
	Part      *Part      `gorm:"foreignKey:PartId" json:"part,omitempty"`
	Warehouse *Warehouse `gorm:"foreignKey:WarehouseId" json:"warehouse,omitempty"`
}

// CreateContainerDebt records a container shortfall inside tx.
func CreateContainerDebt(tx *gorm.DB, invoiceId int, warehouseId int, containerId int, quantity decimal.Decimal) error {
	debt := Debt{
		Type:        DebtTypeContainer,
		ContainerId: &containerId,
		WarehouseId: warehouseId,
		InvoiceId:   invoiceId,
		Quantity:    quantity,
	}
	return tx.Create(&debt).Error
}

// CreatePartDebt records a part shortfall inside tx.
func CreatePartDebt(tx *gorm.DB, invoiceId int, warehouseId int, partId int, quantity decimal.Decimal) error {
	debt := Debt{
		Type:        DebtTypePart,
		PartId:      &partId,
		WarehouseId: warehouseId,
		InvoiceId:   invoiceId,
		Quantity:    quantity,
	}
	return tx.Create(&debt).Error
}

// DeleteDebtsByInvoice removes the debts an invoice created, as part of
// canceling it.
func DeleteDebtsByInvoice(tx *gorm.DB, invoiceId int) error {
	return tx.Where("invoice_id = ?", invoiceId).Delete(&Debt{}).Error
}

// ListDebts returns all open debts with commodity and warehouse loaded,
// newest first. The debt report exports this.
func ListDebts(ctx context.Context) ([]*Debt, error) {
	db := config.GetDB()
	var debts []*Debt
	err := db.WithContext(ctx).
		Preload("Container").
		Preload("Part").
		Preload("Warehouse").
		Order("created_at DESC, id DESC").
		Find(&debts).Error
	if err != nil {
		return nil, err
	}
	return debts, nil
}
