package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Document is a titled sequence of sections rendered top to bottom.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

// Section groups the entries of one content view.
type Section struct {
	Heading string
	Notice  string
	Entries []Entry
}

// Entry is one numbered item; each line is rendered as its own paragraph.
type Entry struct {
	Heading string
	Lines   []string
}

// PDFExporter renders documents into a simple flowing PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document. Text is translated to the core font code page,
// so accented Latin text survives while other scripts degrade.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("pdf requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 9, tr(doc.Title), "", "L", false)
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 12)
		pdf.MultiCell(0, 7, tr(doc.Subtitle), "", "L", false)
	}
	pdf.Ln(6)

	for _, section := range doc.Sections {
		pdf.SetFont("Arial", "B", 14)
		pdf.MultiCell(0, 8, tr(section.Heading), "", "L", false)
		pdf.Ln(2)
		if section.Notice != "" {
			pdf.SetFont("Arial", "I", 10)
			pdf.MultiCell(0, 6, tr(section.Notice), "", "L", false)
			pdf.Ln(2)
		}
		for _, entry := range section.Entries {
			if entry.Heading != "" {
				pdf.SetFont("Arial", "B", 11)
				pdf.MultiCell(0, 6, tr(entry.Heading), "", "L", false)
			}
			pdf.SetFont("Arial", "", 10)
			for _, line := range entry.Lines {
				pdf.MultiCell(0, 5, tr(line), "", "L", false)
			}
			pdf.Ln(3)
		}
		pdf.Ln(4)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
