package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// Part is a raw component commodity. Stock of a part lives in part lots.
type Part struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Measurement MeasurementType `gorm:"size:10;not null;default:'q'" json:"measurement"`
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPart struct {
	Name        string `json:"name" validate:"required"`
	Measurement string `json:"measurement"`
}

func (input *NewPart) validate(ctx context.Context, id int) (MeasurementType, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	if err := utils.ValidateUnique[Part](ctx, "name", input.Name, id); err != nil {
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
	return measurement, nil
}

func CreatePart(ctx context.Context, input *NewPart) (*Part, error) {

	measurement, err := input.validate(ctx, 0)
	if err != nil {
		return nil, err
	}

	part := Part{
		Name:        input.Name,
		Measurement: measurement,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&part).Error
	if err != nil {
		return nil, err
	}
	return &part, nil
}

func UpdatePart(ctx context.Context, id int, input *NewPart) (*Part, error) {

	measurement, err := input.validate(ctx, id)
	if err != nil {
		return nil, err
	}

	part, err := utils.FetchModel[Part](ctx, id)
	if err != nil {
		return nil, err
	}

	part.Name = input.Name
	part.Measurement = measurement

	db := config.GetDB()
	err = db.WithContext(ctx).Save(part).Error
	if err != nil {
		return nil, err
	}
	if err := config.DeleteRedisKey("Part:" + fmt.Sprint(id)); err != nil {
		return nil, err
	}
	return part, nil
}

func GetPart(ctx context.Context, id int) (*Part, error) {
	var part Part
	exists, err := config.GetRedisObject("Part:"+fmt.Sprint(id), &part)
	if err != nil {
		return nil, err
	}
	if exists {
		return &part, nil
	}
	result, err := utils.FetchModel[Part](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject("Part:"+fmt.Sprint(id), result, 0); err != nil {
		return nil, err
	}
	return result, nil
}

func ListParts(ctx context.Context) ([]*Part, error) {
	return utils.FetchAllModels[Part](ctx)
}
