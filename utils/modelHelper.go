package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/erp_backend/config"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch all models from db
func FetchAllModels[T any](ctx context.Context, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ValidateResourceId checks a referenced id resolves to a row of T.
// (may return RecordNotFound)
func ValidateResourceId[T any](ctx context.Context, id int) error {
	if id == 0 {
		return ErrorRecordNotFound
	}
	db := config.GetDB()
	var count int64
	var model T
	if err := db.WithContext(ctx).Model(&model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

// ValidateUnique checks no other row of T holds the same value in field.
func ValidateUnique[T any](ctx context.Context, field string, value string, excludeId int) error {
	db := config.GetDB()
	var count int64
	var model T
	dbCtx := db.WithContext(ctx).Model(&model).Where(field+" = ?", value)
	if excludeId > 0 {
		dbCtx = dbCtx.Where("id != ?", excludeId)
	}
	if err := dbCtx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrorDuplicateValue
	}
	return nil
}
