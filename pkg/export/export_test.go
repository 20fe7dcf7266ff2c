package export

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTables() []Table {
	decided := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	return []Table{
		{
			Title:   "Current Review",
			Columns: []Column{{Key: "order", Label: "Order"}, {Key: "reviewer", Label: "Reviewer"}, {Key: "timestamp", Label: "Decided"}},
			Rows: []map[string]interface{}{
				{"order": 0, "reviewer": "owner", "timestamp": &decided},
				{"order": 1, "reviewer": "r1", "timestamp": (*time.Time)(nil)},
			},
		},
		{
			Title:   "Versions",
			Columns: []Column{{Key: "version"}, {Key: "file_name", Label: "File"}},
			Rows:    []map[string]interface{}{{"version": 1, "file_name": "budget.pdf"}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = ParseFormat("excel")
	require.NoError(t, err)
	assert.Equal(t, FormatExcel, f)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", f.ContentType())

	_, err = ParseFormat("docx")
	assert.Error(t, err)
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatCSV, sampleTables()...))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"# Current Review",
		"Order,Reviewer,Decided",
		"0,owner,2026-03-02T10:30:00Z",
		"1,r1,",
		"",
		"# Versions",
		"version,File",
		"1,budget.pdf",
	}, lines)
}

func TestRenderExcel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatExcel, sampleTables()...))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Current Review", "Versions 2"}, f.GetSheetList())
	rows, err := f.GetRows("Versions 2")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"version", "File"}, rows[0])
	assert.Equal(t, "budget.pdf", rows[1][1])
}

func TestRenderPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatPDF, sampleTables()...))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Sheet1", sheetName("", 0))
	assert.Equal(t, "Cycle 1 2", sheetName("Cycle 1", 1))
	assert.Equal(t, "a b", sheetName("a/b", 0))
	assert.Len(t, sheetName(strings.Repeat("x", 40), 3), 31)

	long := sheetName(strings.Repeat("é", 40), 1)
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, 31, utf8.RuneCountInString(long))
	assert.True(t, strings.HasSuffix(long, " 2"))
}
