package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// Invoice is the single document type of the stock engine. Its Type decides
// what publishing does; its Status walks draft -> published -> canceled and
// never backwards.
//
// WarehouseId is the receiving warehouse. SenderWarehouseId is set only on
// transfers. On cancel the two are swapped, so a canceled transfer reads as
// the reverse movement.
type Invoice struct {
	ID                int             `gorm:"primary_key" json:"id"`
	Number            string          `gorm:"size:50;index" json:"number"`
	Type              InvoiceType     `gorm:"size:20;not null;index" json:"type"`
	Status            InvoiceStatus   `gorm:"size:20;not null;index;default:'draft'" json:"status"`
	WarehouseId       int             `gorm:"index;not null" json:"warehouse_id"`
	SenderWarehouseId *int            `gorm:"index" json:"sender_warehouse_id"`
	TotalSum          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_sum"`
	Quantity          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"quantity"`
	Comment           string          `gorm:"type:text" json:"comment"`
	CreatedBy         int             `gorm:"index" json:"created_by"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	ContainerLines []InvoiceContainerLine `gorm:"foreignKey:InvoiceId" json:"container_lines,omitempty"`
	PartLines      []InvoicePartLine      `gorm:"foreignKey:InvoiceId" json:"part_lines,omitempty"`
	ProductLines   []InvoiceProductLine   `gorm:"foreignKey:InvoiceId" json:"product_lines,omitempty"`
	UnitLines      []InvoiceUnitLine      `gorm:"foreignKey:InvoiceId" json:"unit_lines,omitempty"`
}

// InvoiceContainerLine carries a container quantity. Receipts read Price;
// expenses and transfers ignore it and consume at lot prices.
type InvoiceContainerLine struct {
	ID          int             `gorm:"primary_key" json:"id"`
	InvoiceId   int             `gorm:"index;not null" json:"invoice_id"`
	ContainerId int             `gorm:"index;not null" json:"container_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"price"`

	Container *Container `gorm:"foreignKey:ContainerId" json:"container,omitempty"`
}

type InvoicePartLine struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InvoiceId int             `gorm:"index;not null" json:"invoice_id"`
	PartId    int             `gorm:"index;not null" json:"part_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"price"`

	Part *Part `gorm:"foreignKey:PartId" json:"part,omitempty"`
}

// InvoiceProductLine is a production order line: make Quantity units of the
// product, stamping codes drawn from the markup filter.
type InvoiceProductLine struct {
	ID             int             `gorm:"primary_key" json:"id"`
	InvoiceId      int             `gorm:"index;not null" json:"invoice_id"`
	ProductId      int             `gorm:"index;not null" json:"product_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	MarkupFilterId *int            `gorm:"index" json:"markup_filter_id"`

	Product *Product `gorm:"foreignKey:ProductId" json:"product,omitempty"`
}

// InvoiceUnitLine names one serialized unit an expense or transfer moves.
// An expense line without WithContainer keeps the unit's container behind,
// returning it to stock.
type InvoiceUnitLine struct {
	ID            int   `gorm:"primary_key" json:"id"`
	InvoiceId     int   `gorm:"index;not null" json:"invoice_id"`
	ProductUnitId int   `gorm:"index;not null" json:"product_unit_id"`
	WithContainer *bool `gorm:"not null;default:false" json:"with_container"`

	ProductUnit *ProductUnit `gorm:"foreignKey:ProductUnitId" json:"product_unit,omitempty"`
}

// InvoiceLog is one audit entry in an invoice's lifecycle.
type InvoiceLog struct {
	ID        int       `gorm:"primary_key" json:"id"`
	InvoiceId int       `gorm:"index;not null" json:"invoice_id"`
	Action    string    `gorm:"size:50;not null" json:"action"`
	UserId    int       `json:"user_id"`
	UserName  string    `gorm:"size:100" json:"user_name"`
	Note      string    `gorm:"type:text" json:"note"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewInvoiceContainerLine struct {
	ContainerId int             `json:"container_id" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	Price       decimal.Decimal `json:"price"`
}

type NewInvoicePartLine struct {
	PartId   int             `json:"part_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
	Price    decimal.Decimal `json:"price"`
}

type NewInvoiceProductLine struct {
	ProductId      int             `json:"product_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required"`
	MarkupFilterId *int            `json:"markup_filter_id"`
}

type NewInvoiceUnitLine struct {
	ProductUnitId int  `json:"product_unit_id" validate:"required"`
	WithContainer bool `json:"with_container"`
}

type NewInvoice struct {
	Number            string                    `json:"number"`
	Type              string                    `json:"type" validate:"required"`
	WarehouseId       int                       `json:"warehouse_id" validate:"required"`
	SenderWarehouseId *int                      `json:"sender_warehouse_id"`
	Comment           string                    `json:"comment"`
	ContainerLines    []NewInvoiceContainerLine `json:"container_lines" validate:"dive"`
	PartLines         []NewInvoicePartLine      `json:"part_lines" validate:"dive"`
	ProductLines      []NewInvoiceProductLine   `json:"product_lines" validate:"dive"`
	UnitLines         []NewInvoiceUnitLine      `json:"unit_lines" validate:"dive"`
}

func (input *NewInvoice) validate(ctx context.Context) (InvoiceType, error) {

	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	invoiceType, err := ParseInvoiceType(input.Type)
	if err != nil {
		return "", err
	}

	if err := utils.ValidateResourceId[Warehouse](ctx, input.WarehouseId); err != nil {
		return "", errors.New("warehouse not found")
	}
	if invoiceType == InvoiceTypeTransfer {
		if input.SenderWarehouseId == nil {
			return "", errors.New("transfer requires a sender warehouse")
		}
		if err := utils.ValidateResourceId[Warehouse](ctx, *input.SenderWarehouseId); err != nil {
			return "", errors.New("sender warehouse not found")
		}
		if *input.SenderWarehouseId == input.WarehouseId {
			return "", errors.New("sender and receiver warehouses must differ")
		}
	} else if input.SenderWarehouseId != nil {
		return "", errors.New("sender warehouse is only valid on transfers")
	}

	for _, line := range input.ContainerLines {
		if err := utils.ValidateResourceId[Container](ctx, line.ContainerId); err != nil {
			return "", errors.New("container not found")
		}
		if !line.Quantity.IsPositive() {
			return "", errors.New("container quantity must be positive")
		}
	}
	for _, line := range input.PartLines {
		if err := utils.ValidateResourceId[Part](ctx, line.PartId); err != nil {
			return "", errors.New("part not found")
		}
		if !line.Quantity.IsPositive() {
			return "", errors.New("part quantity must be positive")
		}
	}
	for _, line := range input.ProductLines {
		if invoiceType != InvoiceTypeProduction {
			return "", errors.New("product lines are only valid on productions")
		}
		if err := utils.ValidateResourceId[Product](ctx, line.ProductId); err != nil {
			return "", errors.New("product not found")
		}
		if !line.Quantity.IsPositive() {
			return "", errors.New("product quantity must be positive")
		}
		if line.MarkupFilterId != nil {
			if err := utils.ValidateResourceId[MarkupFilter](ctx, *line.MarkupFilterId); err != nil {
				return "", errors.New("markup filter not found")
			}
		}
	}
	for _, line := range input.UnitLines {
		if invoiceType != InvoiceTypeExpense && invoiceType != InvoiceTypeTransfer {
			return "", errors.New("unit lines are only valid on expenses and transfers")
		}
		if err := utils.ValidateResourceId[ProductUnit](ctx, line.ProductUnitId); err != nil {
			return "", errors.New("product unit not found")
		}
	}
	return invoiceType, nil
}

// CreateInvoice stores a draft invoice with its lines. Publishing is a
// separate step.
func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {

	invoiceType, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)

	invoice := Invoice{
		Number:            input.Number,
		Type:              invoiceType,
		Status:            InvoiceStatusDraft,
		WarehouseId:       input.WarehouseId,
		SenderWarehouseId: input.SenderWarehouseId,
		Comment:           input.Comment,
		CreatedBy:         userId,
	}
	for _, line := range input.ContainerLines {
		invoice.ContainerLines = append(invoice.ContainerLines, InvoiceContainerLine{
			ContainerId: line.ContainerId,
			Quantity:    line.Quantity,
			Price:       line.Price,
		})
	}
	for _, line := range input.PartLines {
		invoice.PartLines = append(invoice.PartLines, InvoicePartLine{
			PartId:   line.PartId,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}
	for _, line := range input.ProductLines {
		invoice.ProductLines = append(invoice.ProductLines, InvoiceProductLine{
			ProductId:      line.ProductId,
			Quantity:       line.Quantity,
			MarkupFilterId: line.MarkupFilterId,
		})
	}
	for _, line := range input.UnitLines {
		withContainer := line.WithContainer
		invoice.UnitLines = append(invoice.UnitLines, InvoiceUnitLine{
			ProductUnitId: line.ProductUnitId,
			WithContainer: &withContainer,
		})
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		return CreateInvoiceLog(tx, ctx, invoice.ID, "create", "")
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetInvoice fetches an invoice without lines.
func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	return utils.FetchModel[Invoice](ctx, id)
}

// GetInvoiceWithLines fetches an invoice and loads every line kind.
func GetInvoiceWithLines(ctx context.Context, id int) (*Invoice, error) {
	return utils.FetchModel[Invoice](ctx, id,
		"ContainerLines", "PartLines", "ProductLines", "UnitLines")
}

// FetchInvoiceForUpdate loads and locks an invoice with its lines inside tx.
func FetchInvoiceForUpdate(tx *gorm.DB, id int) (*Invoice, error) {
	var invoice Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&invoice, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	err = tx.
		Preload("ContainerLines").
		Preload("PartLines").
		Preload("ProductLines").
		Preload("UnitLines").
		First(&invoice, id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func ListInvoices(ctx context.Context, status InvoiceStatus, invoiceType InvoiceType) ([]*Invoice, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if status != "" {
		dbCtx = dbCtx.Where("status = ?", status)
	}
	if invoiceType != "" {
		dbCtx = dbCtx.Where("type = ?", invoiceType)
	}
	var invoices []*Invoice
	err := dbCtx.Order("created_at DESC, id DESC").Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// CreateInvoiceLog appends an audit entry inside tx, picking the actor up
// from ctx.
func CreateInvoiceLog(tx *gorm.DB, ctx context.Context, invoiceId int, action string, note string) error {
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)
	log := InvoiceLog{
		InvoiceId: invoiceId,
		Action:    action,
		UserId:    userId,
		UserName:  userName,
		Note:      note,
	}
	return tx.Create(&log).Error
}

func ListInvoiceLogs(ctx context.Context, invoiceId int) ([]*InvoiceLog, error) {
	db := config.GetDB()
	var logs []*InvoiceLog
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceId).
		Order("created_at ASC, id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// RecomputeInvoiceTotal refreshes the invoice's denormalized total and
// quantity from the lots the invoice created. Each lot's total is itself
// refreshed first, so a drifted total heals here. The caches are only ever
// written by this call; anything that mutates lots must recompute the
// owning invoice before commit.
func RecomputeInvoiceTotal(tx *gorm.DB, invoiceId int) (decimal.Decimal, error) {

	productLots, containerLots, partLots, err := LotsByInvoice(tx, invoiceId)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	quantity := decimal.Zero
	for _, lot := range productLots {
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return decimal.Zero, err
		}
		total = total.Add(lot.TotalSum)
		quantity = quantity.Add(lot.Quantity)
	}
	for _, lot := range containerLots {
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return decimal.Zero, err
		}
		total = total.Add(lot.TotalSum)
		quantity = quantity.Add(lot.Quantity)
	}
	for _, lot := range partLots {
		lot.CalcTotalSum()
		if err := tx.Save(lot).Error; err != nil {
			return decimal.Zero, err
		}
		total = total.Add(lot.TotalSum)
		quantity = quantity.Add(lot.Quantity)
	}

	err = tx.Model(&Invoice{}).Where("id = ?", invoiceId).
		Updates(map[string]interface{}{"total_sum": total, "quantity": quantity}).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
