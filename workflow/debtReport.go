package workflow

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
)

// ExportDebtReport writes all open debts to an xlsx file: one row per debt
// with commodity, warehouse, owing invoice and quantity. Returns the number
// of rows written.
func ExportDebtReport(ctx context.Context, path string) (int, error) {

	logger := config.GetLogger()

	debts, err := models.ListDebts(ctx)
	if err != nil {
		config.LogError(logger, "debtReport.go", "ExportDebtReport", "ListDebts", nil, err)
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	headers := []string{"Type", "Commodity", "Warehouse", "Invoice", "Quantity", "Created"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return 0, err
		}
	}

	for i, debt := range debts {
		row := i + 2

		commodity := ""
		switch {
		case debt.Container != nil:
			commodity = debt.Container.Name
		case debt.Part != nil:
			commodity = debt.Part.Name
		}
		warehouse := ""
		if debt.Warehouse != nil {
			warehouse = debt.Warehouse.Name
		}

		values := []interface{}{
			string(debt.Type),
			commodity,
			warehouse,
			debt.InvoiceId,
			debt.Quantity.String(),
			debt.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return 0, err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save debt report: %w", err)
	}
	return len(debts), nil
}
