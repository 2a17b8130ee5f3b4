package export

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	defaultSheet    = "Sheet1"
	defaultWidthCap = 50
	widthPadding    = 2
)

// XLSXExporter renders datasets into a single-sheet workbook with a bold,
// filterable header row and content-sized columns.
type XLSXExporter struct {
	widthCap float64
}

// NewXLSXExporter builds an exporter that caps column widths at widthCap
// characters. Non-positive caps fall back to 50.
func NewXLSXExporter(widthCap float64) *XLSXExporter {
	if widthCap <= 0 {
		widthCap = defaultWidthCap
	}
	return &XLSXExporter{widthCap: widthCap}
}

// ContentType reports the MIME type of rendered output.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension reports the file extension of rendered output.
func (e *XLSXExporter) Extension() string { return "xlsx" }

// Render writes the dataset to the sheet named by data.Sheet.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("xlsx"); err != nil {
		return nil, err
	}
	sheet := data.Sheet
	if sheet == "" {
		sheet = defaultSheet
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	if err := writeRow(f, sheet, 1, data.Headers); err != nil {
		return nil, err
	}
	for i, row := range data.Rows {
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := e.format(f, sheet, data); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []string) error {
	if len(values) == 0 {
		return nil
	}
	cellRef, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
		return fmt.Errorf("write xlsx row %d: %w", rowNum, err)
	}
	return nil
}

func (e *XLSXExporter) format(f *excelize.File, sheet string, data Dataset) error {
	cols := len(data.Headers)
	lastCol, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.AutoFilter(sheet, fmt.Sprintf("A1:%s1", lastCol), nil); err != nil {
		return fmt.Errorf("set autofilter: %w", err)
	}

	for i, width := range e.columnWidths(data) {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return nil
}

// columnWidths sizes each column to its longest value plus padding, capped.
func (e *XLSXExporter) columnWidths(data Dataset) []float64 {
	widths := make([]float64, len(data.Headers))
	for i, header := range data.Headers {
		widths[i] = float64(utf8.RuneCountInString(header))
	}
	for _, row := range data.Rows {
		for i := range widths {
			if n := float64(utf8.RuneCountInString(cell(row, i))); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for i := range widths {
		widths[i] += widthPadding
		if widths[i] > e.widthCap {
			widths[i] = e.widthCap
		}
	}
	return widths
}
