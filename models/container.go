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

// Container is a packaging commodity. A container may itself be assembled
// from parts; ContainerPart rows describe that recipe.
type Container struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Measurement MeasurementType `gorm:"size:10;not null;default:'q'" json:"measurement"`
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Parts []ContainerPart `gorm:"foreignKey:ContainerId" json:"parts,omitempty"`
}

// ContainerPart is one line of a container recipe: Quantity units of the
// part go into one container.
type ContainerPart struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ContainerId int             `gorm:"index;not null" json:"container_id"`
	PartId      int             `gorm:"index;not null" json:"part_id"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Part *Part `gorm:"foreignKey:PartId" json:"part,omitempty"`
}

type NewContainerPart struct {
	PartId   int             `json:"part_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
}

type NewContainer struct {
	Name        string             `json:"name" validate:"required"`
	Measurement string             `json:"measurement"`
	Parts       []NewContainerPart `json:"parts" validate:"dive"`
}

func (input *NewContainer) validate(ctx context.Context, id int) (MeasurementType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	if err := utils.ValidateUnique[Container](ctx, "name", input.Name, id); err != nil {
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
	for _, line := range input.Parts {
		if err := utils.ValidateResourceId[Part](ctx, line.PartId); err != nil {
			return "", err
		}
	}
	return measurement, nil
}

func CreateContainer(ctx context.Context, input *NewContainer) (*Container, error) {

	measurement, err := input.validate(ctx, 0)
	if err != nil {
		return nil, err
	}

	container := Container{
		Name:        input.Name,
		Measurement: measurement,
		IsActive:    utils.NewTrue(),
	}
	for _, line := range input.Parts {
		container.Parts = append(container.Parts, ContainerPart{
			PartId:   line.PartId,
			Quantity: line.Quantity,
		})
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&container).Error
	if err != nil {
		return nil, err
	}
	return &container, nil
}

func UpdateContainer(ctx context.Context, id int, input *NewContainer) (*Container, error) {

	measurement, err := input.validate(ctx, id)
	if err != nil {
		return nil, err
	}

	container, err := utils.FetchModel[Container](ctx, id)
	if err != nil {
		return nil, err
	}

	container.Name = input.Name
	container.Measurement = measurement

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(container).Error; err != nil {
			return err
		}
		// replace the recipe wholesale
		if err := tx.Where("container_id = ?", id).Delete(&ContainerPart{}).Error; err != nil {
			return err
		}
		for _, line := range input.Parts {
			cp := ContainerPart{
				ContainerId: id,
				PartId:      line.PartId,
				Quantity:    line.Quantity,
			}
			if err := tx.Create(&cp).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := config.DeleteRedisKey("Container:" + fmt.Sprint(id)); err != nil {
		return nil, err
	}
	return container, nil
}

// GetContainer fetches a container without its recipe.
func GetContainer(ctx context.Context, id int) (*Container, error) {
	var container Container
	exists, err := config.GetRedisObject("Container:"+fmt.Sprint(id), &container)
	if err != nil {
		return nil, err
	}
	if exists {
		return &container, nil
	}
	result, err := utils.FetchModel[Container](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject("Container:"+fmt.Sprint(id), result, 0); err != nil {
		return nil, err
	}
	return result, nil
}

// GetContainerWithParts fetches a container and loads its recipe lines.
func GetContainerWithParts(ctx context.Context, id int) (*Container, error) {
	return utils.FetchModel[Container](ctx, id, "Parts", "Parts.Part")
}

func ListContainers(ctx context.Context) ([]*Container, error) {
	return utils.FetchAllModels[Container](ctx)
}
