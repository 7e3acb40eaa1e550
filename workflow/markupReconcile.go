package workflow

import (
	"context"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// ReconcileMarkupFilter recomputes is_used for every code in the filter: a
// code is used when a product unit carries it and that unit's lot came out
// of a published production. Canceling a production deletes its units, so a
// rerun clears the flag again.
func ReconcileMarkupFilter(ctx context.Context, filterId int) (used int, free int, err error) {

	db := config.GetDB()
	logger := config.GetLogger()

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := utils.ValidateResourceId[models.MarkupFilter](ctx, filterId); err != nil {
			return err
		}

		var markups []*models.Markup
		err := tx.
			Joins("JOIN markup_filter_markups mfm ON mfm.markup_id = markups.id").
			Where("mfm.markup_filter_id = ?", filterId).
			Find(&markups).Error
		if err != nil {
			return err
		}

		for _, markup := range markups {
			var count int64
			err := tx.Model(&models.ProductUnit{}).
				Joins("JOIN product_lots ON product_lots.id = product_units.product_lot_id").
				Joins("JOIN invoices ON invoices.id = product_lots.invoice_id").
				Where("product_units.code = ?", markup.Code).
				Where("invoices.status = ?", models.InvoiceStatusPublished).
				Where("invoices.type = ?", models.InvoiceTypeProduction).
				Count(&count).Error
			if err != nil {
				return err
			}

			isUsed := count > 0
			if isUsed != utils.DereferencePtr(markup.IsUsed) {
				err := tx.Model(markup).Update("is_used", isUsed).Error
				if err != nil {
					return err
				}
			}
			if isUsed {
				used++
			} else {
				free++
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "markupReconcile.go", "ReconcileMarkupFilter", "Transaction", filterId, err)
		return 0, 0, err
	}
	return used, free, nil
}
