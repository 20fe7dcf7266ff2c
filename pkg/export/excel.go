package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes one sheet per table into a workbook
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
	sheets  int
}

type ExcelOptions struct {
	FreezeHeader bool   `json:"freeze_header"`
	AutoFilter   bool   `json:"auto_filter"`
	HeaderFill   string `json:"header_fill"`
	HeaderFont   string `json:"header_font"`
	DateFormat   string `json:"date_format"`
}

func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		FreezeHeader: true,
		AutoFilter:   true,
		HeaderFill:   "4472C4",
		HeaderFont:   "FFFFFF",
		DateFormat:   "yyyy-mm-dd hh:mm:ss",
	}
}

func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	return &ExcelExporter{
		file:    excelize.NewFile(),
		options: options,
	}
}

// AddSheet writes t to a new sheet. The first call reuses the default sheet.
func (e *ExcelExporter) AddSheet(t *Table) error {
	name := sheetName(t.Title, e.sheets)
	if e.sheets == 0 {
		if err := e.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("failed to rename sheet: %w", err)
		}
	} else if _, err := e.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	e.sheets++

	headerStyle, err := e.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: e.options.HeaderFont},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	dateFormat := e.options.DateFormat
	dateStyle, err := e.file.NewStyle(&excelize.Style{CustomNumFmt: &dateFormat})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	widths := make([]float64, len(t.Columns))
	for i, label := range t.labels() {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(name, cell, label); err != nil {
			return err
		}
		widths[i] = float64(len(label)) * 1.2
	}
	if len(t.Columns) > 0 {
		first, _ := excelize.CoordinatesToCellName(1, 1)
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := e.file.SetCellStyle(name, first, last, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range t.Rows {
		for c, col := range t.Columns {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			val := row[col.Key]
			switch v := val.(type) {
			case time.Time:
				if !v.IsZero() {
					e.file.SetCellValue(name, cell, v)
					e.file.SetCellStyle(name, cell, cell, dateStyle)
				}
			case *time.Time:
				if v != nil {
					e.file.SetCellValue(name, cell, *v)
					e.file.SetCellStyle(name, cell, cell, dateStyle)
				}
			case *string:
				if v != nil {
					e.file.SetCellValue(name, cell, *v)
				}
			default:
				if err := e.file.SetCellValue(name, cell, v); err != nil {
					return fmt.Errorf("failed to set cell value: %w", err)
				}
			}
			if w := float64(len(formatValue(val, "2006-01-02 15:04:05"))) * 1.2; w > widths[c] {
				widths[c] = w
			}
		}
	}

	for i, w := range widths {
		if w < 10 {
			w = 10
		}
		if w > 60 {
			w = 60
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		e.file.SetColWidth(name, col, col, w)
	}

	if e.options.FreezeHeader {
		e.file.SetPanes(name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	if e.options.AutoFilter && len(t.Columns) > 0 && len(t.Rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), len(t.Rows)+1)
		e.file.AutoFilter(name, "A1:"+last, nil)
	}
	return nil
}

// Write writes the Excel file to w
func (e *ExcelExporter) Write(w io.Writer) error {
	return e.file.Write(w)
}

func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

// sheetName keeps names within Excel's 31 character limit and unique per workbook
func sheetName(title string, index int) string {
	name := title
	if name == "" {
		name = fmt.Sprintf("Sheet%d", index+1)
	}
	for _, ch := range []string{":", "\\", "/", "?", "*", "[", "]"} {
		name = strings.ReplaceAll(name, ch, " ")
	}
	suffix := ""
	if index > 0 {
		suffix = fmt.Sprintf(" %d", index+1)
	}
	// the 31 limit counts characters, not bytes
	runes := []rune(name)
	if len(runes)+len(suffix) > 31 {
		runes = runes[:31-len(suffix)]
	}
	return string(runes) + suffix
}
