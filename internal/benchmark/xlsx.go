package benchmark

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetParser turns a spreadsheet dataset into rows.
type SpreadsheetParser interface {
	Parse(content []byte) ([]Row, error)
}

// ExcelParser reads the active sheet of an XLSX workbook; its first row is the header.
type ExcelParser struct{}

// Parse implements SpreadsheetParser.
func (ExcelParser) Parse(content []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	table, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	return rowsFromTable(table), nil
}
