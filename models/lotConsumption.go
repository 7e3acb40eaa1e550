package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommodityKind names which lot table a consumption row points into.
type CommodityKind string

const (
	CommodityKindProduct   CommodityKind = "product"
	CommodityKindContainer CommodityKind = "container"
	CommodityKindPart      CommodityKind = "part"
)

// LotConsumption is the append-only trail of stock taken from a lot by a
// published invoice. Cancellation replays the trail backwards instead of
// guessing from current state; a replayed row is flagged Reversed and never
// replayed again.
type LotConsumption struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InvoiceId int             `gorm:"index;not null" json:"invoice_id"`
	Kind      CommodityKind   `gorm:"size:20;not null" json:"kind"`
	LotId     int             `gorm:"index;not null" json:"lot_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Reversed  *bool           `gorm:"not null;default:false" json:"reversed"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// UnitTransfer is the append-only trail of a serialized unit changing lots
// under an invoice.
type UnitTransfer struct {
	ID            int       `gorm:"primary_key" json:"id"`
	InvoiceId     int       `gorm:"index;not null" json:"invoice_id"`
	ProductUnitId int       `gorm:"index;not null" json:"product_unit_id"`
	FromLotId     int       `gorm:"not null" json:"from_lot_id"`
	ToLotId       int       `gorm:"not null" json:"to_lot_id"`
	Reversed      *bool     `gorm:"not null;default:false" json:"reversed"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RecordLotConsumption appends one trail row inside tx.
func RecordLotConsumption(tx *gorm.DB, invoiceId int, kind CommodityKind, lotId int, quantity decimal.Decimal) error {
	reversed := false
	row := LotConsumption{
		InvoiceId: invoiceId,
		Kind:      kind,
		LotId:     lotId,
		Quantity:  quantity,
		Reversed:  &reversed,
	}
	return tx.Create(&row).Error
}

// RecordUnitTransfer appends one unit movement inside tx.
func RecordUnitTransfer(tx *gorm.DB, invoiceId int, productUnitId int, fromLotId int, toLotId int) error {
	reversed := false
	row := UnitTransfer{
		InvoiceId:     invoiceId,
		ProductUnitId: productUnitId,
		FromLotId:     fromLotId,
		ToLotId:       toLotId,
		Reversed:      &reversed,
	}
	return tx.Create(&row).Error
}

// ConsumptionsByInvoice loads the unreversed trail of an invoice, newest
// first so replaying it undoes the consumption in reverse order.
func ConsumptionsByInvoice(tx *gorm.DB, invoiceId int) ([]*LotConsumption, error) {
	var rows []*LotConsumption
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ? AND reversed = false", invoiceId).
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UnitTransfersByInvoice loads the unreversed unit movements of an invoice,
// newest first.
func UnitTransfersByInvoice(tx *gorm.DB, invoiceId int) ([]*UnitTransfer, error) {
	var rows []*UnitTransfer
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ? AND reversed = false", invoiceId).
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkConsumptionReversed flags a replayed trail row.
func MarkConsumptionReversed(tx *gorm.DB, id int) error {
	return tx.Model(&LotConsumption{}).Where("id = ?", id).
		Update("reversed", true).Error
}

// MarkUnitTransferReversed flags a replayed unit movement.
func MarkUnitTransferReversed(tx *gorm.DB, id int) error {
	return tx.Model(&UnitTransfer{}).Where("id = ?", id).
		Update("reversed", true).Error
}
