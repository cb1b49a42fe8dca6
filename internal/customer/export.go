package customer

import (
	"context"
	"fmt"
	"io"

	"bizledger-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Customers"

var exportHeaders = []string{
	"Name", "Phone", "Email", "Company", "Job Title", "Nickname", "Address",
	"Total Spent", "Outstanding Balance", "Deposit Balance", "Last Purchase",
}

// AllForExport returns every customer of the business ordered by name.
func (s *Service) AllForExport(ctx context.Context, businessID uint) ([]models.Customer, error) {
	var customers []models.Customer
	err := s.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("LOWER(name) ASC, id ASC").
		Find(&customers).Error
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}
	return customers, nil
}

// WriteXLSX writes customers with their balances as a single-sheet
// workbook. The first seven columns use the import header names, so an
// export can be imported into another business.
func WriteXLSX(w io.Writer, customers []models.Customer, currency string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	for i, h := range exportHeaders {
		if i >= 7 && i <= 9 && currency != "" {
			h = fmt.Sprintf("%s (%s)", h, currency)
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, h)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		f.SetCellStyle(exportSheet, "A1", "K1", bold)
	}

	for idx, c := range customers {
		row := idx + 2
		last := ""
		if c.LastPurchase != nil {
			last = c.LastPurchase.Format("2006-01-02")
		}
		values := []any{
			c.Name, c.Phone, c.Email, c.Company, c.JobTitle, c.Nickname, c.Address,
			c.TotalSpent.InexactFloat64(),
			c.OutstandingBalance.InexactFloat64(),
			c.DepositBalance.InexactFloat64(),
			last,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}

	f.SetColWidth(exportSheet, "A", "A", 24)
	f.SetColWidth(exportSheet, "B", "B", 18)
	f.SetColWidth(exportSheet, "C", "G", 20)
	f.SetColWidth(exportSheet, "H", "J", 16)
	f.SetColWidth(exportSheet, "K", "K", 14)

	return f.Write(w)
}
