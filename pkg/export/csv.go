package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// CSVExporter writes tables as CSV, separated by a blank record
type CSVExporter struct {
	writer  *csv.Writer
	written int
}

func NewCSVExporter(w io.Writer) *CSVExporter {
	return &CSVExporter{writer: csv.NewWriter(w)}
}

func (e *CSVExporter) WriteTable(t *Table) error {
	if e.written > 0 {
		if err := e.writer.Write([]string{}); err != nil {
			return err
		}
	}
	e.written++

	if t.Title != "" {
		if err := e.writer.Write([]string{"# " + t.Title}); err != nil {
			return fmt.Errorf("failed to write title: %w", err)
		}
	}
	if err := e.writer.Write(t.labels()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range t.Rows {
		record := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			record[i] = formatValue(row[col.Key], time.RFC3339)
		}
		if err := e.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// Flush writes any buffered data to the underlying writer
func (e *CSVExporter) Flush() error {
	e.writer.Flush()
	return e.writer.Error()
}
