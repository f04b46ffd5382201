package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	gridSheet    = "Timetable"
	entriesSheet = "Entries"
)

// XLSXExporter writes a workbook with a timetable grid sheet and a flat entries sheet.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// ContentType is the MIME type of the rendered output.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Render builds the workbook.
func (e *XLSXExporter) Render(grid Grid, data Dataset) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(gridSheet)
	if err != nil {
		return nil, fmt.Errorf("create grid sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, fmt.Errorf("create entries sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return nil, fmt.Errorf("create cell style: %w", err)
	}

	if err := writeGrid(f, grid, headerStyle, wrapStyle); err != nil {
		return nil, err
	}
	if err := writeEntries(f, data, headerStyle); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeGrid(f *excelize.File, grid Grid, headerStyle, wrapStyle int) error {
	lastCol := colName(len(grid.Days))
	row := 1
	if grid.Title != "" {
		if err := f.SetCellValue(gridSheet, cell("A", row), grid.Title); err != nil {
			return fmt.Errorf("write grid title: %w", err)
		}
		if err := f.MergeCell(gridSheet, cell("A", row), cell(lastCol, row)); err != nil {
			return fmt.Errorf("merge grid title: %w", err)
		}
		if err := f.SetCellStyle(gridSheet, cell("A", row), cell(lastCol, row), headerStyle); err != nil {
			return fmt.Errorf("style grid title: %w", err)
		}
		row++
	}

	_ = f.SetColWidth(gridSheet, "A", "A", 16)
	_ = f.SetColWidth(gridSheet, "B", lastCol, 28)
	if err := f.SetCellValue(gridSheet, cell("A", row), "Period"); err != nil {
		return fmt.Errorf("write grid header: %w", err)
	}
	for d, day := range grid.Days {
		if err := f.SetCellValue(gridSheet, cell(colName(d+1), row), day); err != nil {
			return fmt.Errorf("write grid header: %w", err)
		}
	}
	if err := f.SetCellStyle(gridSheet, cell("A", row), cell(lastCol, row), headerStyle); err != nil {
		return fmt.Errorf("style grid header: %w", err)
	}
	row++

	for p, period := range grid.Periods {
		if err := f.SetCellValue(gridSheet, cell("A", row), period); err != nil {
			return fmt.Errorf("write period: %w", err)
		}
		for d := range grid.Days {
			text := strings.Join(grid.Cells[p][d], "\n")
			if text == "" {
				text = "-"
			}
			if err := f.SetCellValue(gridSheet, cell(colName(d+1), row), text); err != nil {
				return fmt.Errorf("write grid cell: %w", err)
			}
		}
		if err := f.SetCellStyle(gridSheet, cell("A", row), cell(lastCol, row), wrapStyle); err != nil {
			return fmt.Errorf("style grid row: %w", err)
		}
		row++
	}
	return nil
}

func writeEntries(f *excelize.File, data Dataset, headerStyle int) error {
	if len(data.Columns) == 0 {
		return nil
	}
	lastCol := colName(len(data.Columns) - 1)
	for i, title := range data.Titles() {
		if err := f.SetCellValue(entriesSheet, cell(colName(i), 1), title); err != nil {
			return fmt.Errorf("write entries header: %w", err)
		}
	}
	if err := f.SetCellStyle(entriesSheet, "A1", cell(lastCol, 1), headerStyle); err != nil {
		return fmt.Errorf("style entries header: %w", err)
	}
	for r, row := range data.Rows {
		for i, value := range data.Record(row) {
			if err := f.SetCellValue(entriesSheet, cell(colName(i), r+2), value); err != nil {
				return fmt.Errorf("write entries row: %w", err)
			}
		}
	}
	return f.AutoFilter(entriesSheet, fmt.Sprintf("A1:%s", cell(lastCol, len(data.Rows)+1)), nil)
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
