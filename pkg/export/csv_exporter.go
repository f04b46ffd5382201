package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CSVExporter writes a Dataset as delimited text, one line per schedule entry.
type CSVExporter struct {
	comma rune
}

// NewCSVExporter builds an exporter using delimiter, or a comma when delimiter is empty or
// not a single character.
func NewCSVExporter(delimiter string) *CSVExporter {
	comma := ','
	if r, size := utf8.DecodeRuneInString(delimiter); size > 0 && size == len(delimiter) && r != '"' && r != '\n' && r != '\r' {
		comma = r
	}
	return &CSVExporter{comma: comma}
}

func (e *CSVExporter) ContentType() string {
	return "text/csv"
}

// Render encodes the header row followed by every record. Cells that a spreadsheet would
// evaluate as a formula are prefixed with a quote.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.Comma = e.comma
	if err := writer.Write(data.Titles()); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i, row := range data.Rows {
		record := data.Record(row)
		for j, cell := range record {
			record[j] = neutralizeFormula(cell)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func neutralizeFormula(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
