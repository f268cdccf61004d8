package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pdfPageWidth = 277.0

// PDFExporter renders timetables as an A4 landscape table. Consecutive rows
// sharing the first column are grouped under one shaded band.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the PDF document.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) < 2 {
		return nil, fmt.Errorf("pdf requires a group column and at least one data column")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	columns := data.Headers[1:]
	colWidth := pdfPageWidth / float64(len(columns))

	pdf.SetFont("Arial", "B", 10)
	for _, header := range columns {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	group := ""
	for i, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return nil, fmt.Errorf("pdf row %d has %d cells, want %d", i, len(row), len(data.Headers))
		}
		if i == 0 || row[0] != group {
			group = row[0]
			pdf.SetFont("Arial", "B", 9)
			pdf.SetFillColor(230, 230, 230)
			pdf.CellFormat(pdfPageWidth, 7, tr(group), "1", 1, "L", true, 0, "")
		}
		pdf.SetFont("Arial", "", 9)
		for _, value := range row[1:] {
			pdf.CellFormat(colWidth, 7, tr(value), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(data.Rows) == 0 {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(pdfPageWidth, 7, "No bookings", "1", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
