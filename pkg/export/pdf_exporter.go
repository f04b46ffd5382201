package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders timetables as a landscape day × period grid.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType is the MIME type of the rendered output.
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

// Render draws the grid with an optional subtitle line under the title.
func (e *PDFExporter) Render(grid Grid, subtitle string) ([]byte, error) {
	if len(grid.Days) == 0 || len(grid.Periods) == 0 {
		return nil, fmt.Errorf("pdf requires at least one day and one period")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.AddPage()

	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, strings.ToUpper(grid.Title), "", 1, "C", false, 0, "")
	}
	if subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	const periodWidth = 32.0
	dayWidth := (277.0 - periodWidth) / float64(len(grid.Days))
	lineHeight := 4.5

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(periodWidth, 8, "Period", "1", 0, "C", true, 0, "")
	for _, day := range grid.Days {
		pdf.CellFormat(dayWidth, 8, day, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)

	pdf.SetFont("Arial", "", 8)
	for p, period := range grid.Periods {
		lines := 1
		for _, cell := range grid.Cells[p] {
			if len(cell) > lines {
				lines = len(cell)
			}
		}
		height := float64(lines)*lineHeight + 2
		x, y := pdf.GetXY()
		pdf.Rect(x, y, periodWidth, height, "D")
		pdf.MultiCell(periodWidth, lineHeight, period, "", "C", false)
		for d := range grid.Days {
			cellX := x + periodWidth + float64(d)*dayWidth
			pdf.Rect(cellX, y, dayWidth, height, "D")
			pdf.SetXY(cellX, y+1)
			pdf.MultiCell(dayWidth, lineHeight, strings.Join(grid.Cells[p][d], "\n"), "", "L", false)
		}
		pdf.SetXY(x, y+height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
