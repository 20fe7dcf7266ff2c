// Package export renders tabular data as PDF, Excel or CSV.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"
)

type Format string

const (
	FormatPDF   Format = "pdf"
	FormatExcel Format = "xlsx"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts the format names used in query strings
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatExcel, "excel":
		return FormatExcel, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the rendered output
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

type Column struct {
	Key   string
	Label string
}

// Table is one titled grid of rows keyed by Column.Key
type Table struct {
	Title    string
	Subtitle string
	Columns  []Column
	Rows     []map[string]interface{}
}

func (t *Table) labels() []string {
	labels := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		labels[i] = col.Label
		if labels[i] == "" {
			labels[i] = col.Key
		}
	}
	return labels
}

// Render writes the tables to w in the given format. Excel puts each table
// on its own sheet; PDF and CSV write them one after another.
func Render(w io.Writer, format Format, tables ...Table) error {
	switch format {
	case FormatPDF:
		g := NewPDFGenerator(DefaultPDFOptions())
		for i := range tables {
			g.AddTable(&tables[i])
		}
		return g.Write(w)
	case FormatExcel:
		e := NewExcelExporter(DefaultExcelOptions())
		defer e.Close()
		for i := range tables {
			if err := e.AddSheet(&tables[i]); err != nil {
				return err
			}
		}
		return e.Write(w)
	case FormatCSV:
		e := NewCSVExporter(w)
		for i := range tables {
			if err := e.WriteTable(&tables[i]); err != nil {
				return err
			}
		}
		return e.Flush()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func formatValue(val interface{}, dateFormat string) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(dateFormat)
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return v.Format(dateFormat)
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprintf("%v", v)
	}
}
