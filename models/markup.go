package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// Markup is an externally supplied serial code. Codes arrive in bulk from
// xlsx files, grouped into a filter bound to one product; production
// invoices stamp them onto product units. IsUsed is maintained by the
// reconciliation job, not at production time.
type Markup struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"size:100;uniqueIndex;not null" json:"code"`
	IsUsed    *bool     `gorm:"not null;default:false" json:"is_used"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MarkupFilter is a named batch of serial codes for one product.
type MarkupFilter struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	ProductId int       `gorm:"index;not null" json:"product_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	Markups []Markup `gorm:"many2many:markup_filter_markups" json:"markups,omitempty"`
}

func GetMarkupFilter(ctx context.Context, id int) (*MarkupFilter, error) {
	return utils.FetchModel[MarkupFilter](ctx, id)
}

func ListMarkupFilters(ctx context.Context) ([]*MarkupFilter, error) {
	return utils.FetchAllModels[MarkupFilter](ctx)
}

// GetFreeMarkupsByFilter returns the filter's codes that no product unit
// carries, oldest first, locked for the duration of tx. Production draws
// codes from here.
func GetFreeMarkupsByFilter(tx *gorm.DB, filterId int, limit int) ([]*Markup, error) {
	var markups []*Markup
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Joins("JOIN markup_filter_markups mfm ON mfm.markup_id = markups.id").
		Joins("LEFT JOIN product_units pu ON pu.code = markups.code").
		Where("mfm.markup_filter_id = ?", filterId).
		Where("pu.id IS NULL").
		Order("markups.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&markups).Error; err != nil {
		return nil, err
	}
	return markups, nil
}

// CountFreeMarkupsByFilter reports how many codes of the filter no product
// unit carries yet.
func CountFreeMarkupsByFilter(ctx context.Context, filterId int) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Markup{}).
		Joins("JOIN markup_filter_markups mfm ON mfm.markup_id = markups.id").
		Joins("LEFT JOIN product_units pu ON pu.code = markups.code").
		Where("mfm.markup_filter_id = ?", filterId).
		Where("pu.id IS NULL").
		Count(&count).Error
	return count, err
}

// ImportMarkupsFromXLSX reads serial codes from column A of the first sheet
// and files them under a new filter for the product. Codes already present
// in the table are attached to the filter without duplication. Returns the
// filter and the number of new codes created.
func ImportMarkupsFromXLSX(ctx context.Context, filterName string, productId int, path string) (*MarkupFilter, int, error) {

	if err := utils.ValidateResourceId[Product](ctx, productId); err != nil {
		return nil, 0, errors.New("product not found")
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open markup file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, 0, errors.New("markup file has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, 0, fmt.Errorf("read markup sheet: %w", err)
	}

	seen := make(map[string]bool)
	var codes []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		code := strings.TrimSpace(row[0])
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, 0, errors.New("markup file has no codes")
	}

	filter := MarkupFilter{Name: filterName, ProductId: productId}
	created := 0

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&filter).Error; err != nil {
			return err
		}
		for _, code := range codes {
			markup := Markup{Code: code, IsUsed: utils.NewFalse()}
			res := tx.Where("code = ?", code).FirstOrCreate(&markup)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				created++
			}
			if err := tx.Model(&filter).Association("Markups").Append(&markup); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &filter, created, nil
}
