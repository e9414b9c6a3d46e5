package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders rosters into a basic tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF roster document with a subject title line.
func (e *PDFExporter) Render(roster Roster) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	title := fmt.Sprintf("%s (%s)", roster.SubjectName, roster.SubjectCode)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	if roster.SemesterName != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, roster.SemesterName, "", 1, "C", false, 0, "")
	}
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(rosterHeaders))
	for _, header := range rosterHeaders {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range roster.Rows {
		for _, value := range []string{row.RollNumber, row.FullName, row.Email, row.EnrolledAt} {
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
