package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

type Warehouse struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Address   string    `gorm:"type:text" json:"address"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewWarehouse struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewWarehouse) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Warehouse](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateWarehouse(ctx context.Context, input *NewWarehouse) (*Warehouse, error) {

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	warehouse := Warehouse{
		Name:     input.Name,
		Address:  input.Address,
		IsActive: utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&warehouse).Error
	if err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func UpdateWarehouse(ctx context.Context, id int, input *NewWarehouse) (*Warehouse, error) {

	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	warehouse, err := utils.FetchModel[Warehouse](ctx, id)
	if err != nil {
		return nil, err
	}

	warehouse.Name = input.Name
	warehouse.Address = input.Address

	// db action
	db := config.GetDB()
	err = db.WithContext(ctx).Save(warehouse).Error
	if err != nil {
		return nil, err
	}
	if err := config.DeleteRedisKey("Warehouse:" + fmt.Sprint(id)); err != nil {
		return nil, err
	}
	return warehouse, nil
}

func GetWarehouse(ctx context.Context, id int) (*Warehouse, error) {
	var warehouse Warehouse
	exists, err := config.GetRedisObject("Warehouse:"+fmt.Sprint(id), &warehouse)
	if err != nil {
		return nil, err
	}
	if exists {
		return &warehouse, nil
	}
	result, err := utils.FetchModel[Warehouse](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject("Warehouse:"+fmt.Sprint(id), result, 0); err != nil {
		return nil, err
	}
	return result, nil
}

func ListWarehouses(ctx context.Context) ([]*Warehouse, error) {
	return utils.FetchAllModels[Warehouse](ctx)
}

// WarehouseHistoryEntry is one invoice that touched a warehouse, either as
// sender or receiver.
type WarehouseHistoryEntry struct {
	InvoiceId   int           `json:"invoice_id"`
	InvoiceType InvoiceType   `json:"invoice_type"`
	Status      InvoiceStatus `json:"status"`
	Direction   string        `json:"direction"` // "in" or "out"
	CreatedAt   time.Time     `json:"created_at"`
}

// GetWarehouseHistory lists the published and canceled invoices that moved
// stock through the warehouse, newest first.
func GetWarehouseHistory(ctx context.Context, warehouseId int) ([]*WarehouseHistoryEntry, error) {

	if err := utils.ValidateResourceId[Warehouse](ctx, warehouseId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var invoices []*Invoice
	err := db.WithContext(ctx).
		Where("status != ?", InvoiceStatusDraft).
		Where("warehouse_id = ? OR sender_warehouse_id = ?", warehouseId, warehouseId).
		Order("created_at DESC, id DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*WarehouseHistoryEntry, 0, len(invoices))
	for _, inv := range invoices {
		direction := "in"
		if inv.Type == InvoiceTypeExpense {
			direction = "out"
		}
		if inv.Type == InvoiceTypeTransfer && inv.SenderWarehouseId != nil && *inv.SenderWarehouseId == warehouseId {
			direction = "out"
		}
		entries = append(entries, &WarehouseHistoryEntry{
			InvoiceId:   inv.ID,
			InvoiceType: inv.Type,
			Status:      inv.Status,
			Direction:   direction,
			CreatedAt:   inv.CreatedAt,
		})
	}
	return entries, nil
}
