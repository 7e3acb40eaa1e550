package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// ProductUnit is one serialized unit of product. Every unit carries the
// code stamped on it at production time and always belongs to exactly one
// product lot; expenses and transfers move it between lots.
type ProductUnit struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Code         string    `gorm:"size:100;uniqueIndex;not null" json:"code"`
	ProductLotId int       `gorm:"index;not null" json:"product_lot_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	ProductLot *ProductLot `gorm:"foreignKey:ProductLotId" json:"product_lot,omitempty"`
}

// UnitsByIds loads and locks the given units with their lots.
func UnitsByIds(tx *gorm.DB, unitIds []int) ([]*ProductUnit, error) {
	var units []*ProductUnit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("ProductLot").
		Where("id IN ?", unitIds).
		Order("id ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	if len(units) != len(unitIds) {
		return nil, utils.ErrorRecordNotFound
	}
	return units, nil
}

// UnitsByLot loads the units currently sitting in a product lot.
func UnitsByLot(tx *gorm.DB, productLotId int) ([]*ProductUnit, error) {
	var units []*ProductUnit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_lot_id = ?", productLotId).
		Order("id ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}
