package artifact

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/sreeram77/battery-pm/internal/table"
)

// ExportXLSX writes a table to a spreadsheet with a single sheet.
// Numeric cells are written as numbers and missing values are left blank.
func (s *Store) ExportXLSX(t *table.Table, path, sheet string) error {
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	// Header row
	header := make([]any, 0, len(t.Names()))
	for _, name := range t.Names() {
		header = append(header, name)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	cols := t.Columns()
	for i := 0; i < t.Len(); i++ {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = xlsxValue(c, i)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	s.logger.Info().
		Str("path", path).
		Str("sheet", sheet).
		Int("rows", t.Len()).
		Msg("Workbook exported")
	return nil
}

func xlsxValue(c *table.Column, i int) any {
	switch c.Kind {
	case table.Numeric:
		if math.IsNaN(c.Nums[i]) {
			return nil
		}
		return c.Nums[i]
	default:
		return c.Cell(i)
	}
}
