package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// Product is a finished good. Its bill of materials is a set of containers
// and parts; production invoices consume those by FIFO and mint product lots.
type Product struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Measurement MeasurementType `gorm:"size:10;not null;default:'q'" json:"measurement"`
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Containers []ProductContainer `gorm:"foreignKey:ProductId" json:"containers,omitempty"`
	Parts      []ProductPart      `gorm:"foreignKey:ProductId" json:"parts,omitempty"`
}

// ProductContainer is one bill-of-materials line: Quantity containers per
// unit of product.
type ProductContainer struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ProductId   int             `gorm:"index;not null" json:"product_id"`
	ContainerId int             `gorm:"index;not null" json:"container_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Container *Container `gorm:"foreignKey:ContainerId" json:"container,omitempty"`
}

// ProductPart is one bill-of-materials line: Quantity parts per unit of
// product.
type ProductPart struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	PartId    int             `gorm:"index;not null" json:"part_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Part *Part `gorm:"foreignKey:PartId" json:"part,omitempty"`
}

type NewProductContainer struct {
	ContainerId int             `json:"container_id" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
}

type NewProductPart struct {
	PartId   int             `json:"part_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
}

type NewProduct struct {
	Name        string                `json:"name" validate:"required"`
	Measurement string                `json:"measurement"`
	Containers  []NewProductContainer `json:"containers" validate:"dive"`
	Parts       []NewProductPart      `json:"parts" validate:"dive"`
}

func (input *NewProduct) validate(ctx context.Context, id int) (MeasurementType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	if err := utils.ValidateUnique[Product](ctx, "name", input.Name, id); err != nil {
		return "", err
	}
	measurement := MeasurementTypeQuantity
	if input.Measurement != "" {
		var err error
		measurement, err = ParseMeasurementType(input.Measurement)
		if err != nil {
			return "", err
		}
	}
	for _, line := range input.Containers {
		if err := utils.ValidateResourceId[Container](ctx, line.ContainerId); err != nil {
			return "", err
		}
	}
	for _, line := range input.Parts {
		if err := utils.ValidateResourceId[Part](ctx, line.PartId); err != nil {
			return "", err
		}
	}
	return measurement, nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {

	measurement, err := input.validate(ctx, 0)
	if err != nil {
		return nil, err
	}

	product := Product{
		Name:        input.Name,
		Measurement: measurement,
		IsActive:    utils.NewTrue(),
	}
	for _, line := range input.Containers {
		product.Containers = append(product.Containers, ProductContainer{
			ContainerId: line.ContainerId,
			Quantity:    line.Quantity,
		})
	}
	for _, line := range input.Parts {
		product.Parts = append(product.Parts, ProductPart{
			PartId:   line.PartId,
			Quantity: line.Quantity,
		})
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {

	measurement, err := input.validate(ctx, id)
	if err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}

	product.Name = input.Name
	product.Measurement = measurement

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(product).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&ProductContainer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&ProductPart{}).Error; err != nil {
			return err
		}
		for _, line := range input.Containers {
			pc := ProductContainer{
				ProductId:   id,
				ContainerId: line.ContainerId,
				Quantity:    line.Quantity,
			}
			if err := tx.Create(&pc).Error; err != nil {
				return err
			}
		}
		for _, line := range input.Parts {
			pp := ProductPart{
				ProductId: id,
				PartId:    line.PartId,
				Quantity:  line.Quantity,
			}
			if err := tx.Create(&pp).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := config.DeleteRedisKey("Product:" + fmt.Sprint(id)); err != nil {
		return nil, err
	}
	return product, nil
}

// GetProduct fetches a product without its bill of materials.
func GetProduct(ctx context.Context, id int) (*Product, error) {
	var product Product
	exists, err := config.GetRedisObject("Product:"+fmt.Sprint(id), &product)
	if err != nil {
		return nil, err
	}
	if exists {
		return &product, nil
	}
	result, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject("Product:"+fmt.Sprint(id), result, 0); err != nil {
		return nil, err
	}
	return result, nil
}

// GetProductWithComposition fetches a product and loads both sides of its
// bill of materials, container recipes included. Costing walks this tree.
func GetProductWithComposition(ctx context.Context, id int) (*Product, error) {
	return utils.FetchModel[Product](ctx, id,
		"Containers", "Containers.Container", "Containers.Container.Parts",
		"Parts", "Parts.Part")
}

func ListProducts(ctx context.Context) ([]*Product, error) {
	return utils.FetchAllModels[Product](ctx)
}
