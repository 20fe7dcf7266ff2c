package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFGenerator generates PDF reports
type PDFGenerator struct {
	pdf     *gofpdf.Fpdf
	options PDFOptions
}

// PDFOptions configures PDF generation
type PDFOptions struct {
	PageSize       string     `json:"page_size"`
	Orientation    string     `json:"orientation"` // portrait, landscape
	DateFormat     string     `json:"date_format"`
	HeaderColor    PDFColor   `json:"header_color"`
	AlternateColor PDFColor   `json:"alternate_color"`
	FontFamily     string     `json:"font_family"`
	FontSize       float64    `json:"font_size"`
	TitleFontSize  float64    `json:"title_font_size"`
	Margins        PDFMargins `json:"margins"`
}

type PDFColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type PDFMargins struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:       "A4",
		Orientation:    "landscape",
		DateFormat:     "2006-01-02 15:04",
		HeaderColor:    PDFColor{R: 68, G: 114, B: 196},
		AlternateColor: PDFColor{R: 242, G: 242, B: 242},
		FontFamily:     "Arial",
		FontSize:       9,
		TitleFontSize:  14,
		Margins:        PDFMargins{Left: 12, Right: 12, Top: 15, Bottom: 15},
	}
}

func NewPDFGenerator(options PDFOptions) *PDFGenerator {
	orientation := "P"
	if options.Orientation == "landscape" {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", options.PageSize, "")
	pdf.SetMargins(options.Margins.Left, options.Margins.Top, options.Margins.Right)
	pdf.SetAutoPageBreak(true, options.Margins.Bottom)

	g := &PDFGenerator{pdf: pdf, options: options}
	g.setFooter()
	return g
}

// AddTable starts a new page with the table title and its rows
func (g *PDFGenerator) AddTable(t *Table) {
	g.pdf.AddPage()

	g.pdf.SetFont(g.options.FontFamily, "B", g.options.TitleFontSize)
	g.pdf.SetTextColor(0, 0, 0)
	g.pdf.CellFormat(0, 10, t.Title, "", 1, "L", false, 0, "")
	if t.Subtitle != "" {
		g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize+1)
		g.pdf.SetTextColor(100, 100, 100)
		g.pdf.CellFormat(0, 6, t.Subtitle, "", 1, "L", false, 0, "")
	}
	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize-1)
	g.pdf.SetTextColor(128, 128, 128)
	g.pdf.CellFormat(0, 6, "Generated: "+time.Now().UTC().Format(g.options.DateFormat), "", 1, "R", false, 0, "")
	g.pdf.Ln(4)

	widths := g.columnWidths(t)
	labels := t.labels()
	g.addHeader(labels, widths)

	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	g.pdf.SetTextColor(0, 0, 0)
	_, pageHeight := g.pdf.GetPageSize()
	for i, row := range t.Rows {
		if i%2 == 1 {
			g.pdf.SetFillColor(g.options.AlternateColor.R, g.options.AlternateColor.G, g.options.AlternateColor.B)
		} else {
			g.pdf.SetFillColor(255, 255, 255)
		}
		if g.pdf.GetY()+7 > pageHeight-g.options.Margins.Bottom {
			g.pdf.AddPage()
			g.addHeader(labels, widths)
			g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
			g.pdf.SetTextColor(0, 0, 0)
		}
		for j, col := range t.Columns {
			val := formatValue(row[col.Key], g.options.DateFormat)
			maxChars := int(widths[j] / 1.8)
			if maxChars > 3 && len(val) > maxChars {
				val = val[:maxChars-3] + "..."
			}
			g.pdf.CellFormat(widths[j], 7, val, "1", 0, "L", true, 0, "")
		}
		g.pdf.Ln(-1)
	}
	if len(t.Rows) == 0 {
		g.pdf.SetTextColor(128, 128, 128)
		g.pdf.CellFormat(0, 7, "No entries", "", 1, "L", false, 0, "")
	}
}

func (g *PDFGenerator) addHeader(labels []string, widths []float64) {
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
	g.pdf.SetFillColor(g.options.HeaderColor.R, g.options.HeaderColor.G, g.options.HeaderColor.B)
	g.pdf.SetTextColor(255, 255, 255)
	for i, label := range labels {
		g.pdf.CellFormat(widths[i], 8, label, "1", 0, "C", true, 0, "")
	}
	g.pdf.Ln(-1)
}

// columnWidths sizes columns to their widest cell and scales them to the page
func (g *PDFGenerator) columnWidths(t *Table) []float64 {
	pageWidth, _ := g.pdf.GetPageSize()
	available := pageWidth - g.options.Margins.Left - g.options.Margins.Right

	widths := make([]float64, len(t.Columns))
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
	for i, label := range t.labels() {
		widths[i] = g.pdf.GetStringWidth(label) + 4
	}
	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			if w := g.pdf.GetStringWidth(formatValue(row[col.Key], g.options.DateFormat)) + 4; w > widths[i] {
				widths[i] = w
			}
		}
	}

	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > available {
		scale := available / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

func (g *PDFGenerator) setFooter() {
	g.pdf.SetFooterFunc(func() {
		g.pdf.SetY(-12)
		g.pdf.SetFont(g.options.FontFamily, "", 8)
		g.pdf.SetTextColor(128, 128, 128)
		g.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", g.pdf.PageNo()), "", 0, "C", false, 0, "")
	})
}

// Write writes the PDF to w
func (g *PDFGenerator) Write(w io.Writer) error {
	return g.pdf.Output(w)
}
