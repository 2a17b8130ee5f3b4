package export

import "fmt"

// Dataset is an ordered table: every row holds one cell per header.
type Dataset struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

func (d Dataset) validate(format string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	for i, row := range d.Rows {
		if len(row) > len(d.Headers) {
			return fmt.Errorf("%s row %d has %d cells for %d headers", format, i, len(row), len(d.Headers))
		}
	}
	return nil
}

// cell returns the value at col, treating short rows as blank-padded.
func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
