package documents

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"review-portal/review-portal-backend/pkg/export"
)

var trackingColumns = []export.Column{
	{Key: "order", Label: "Order"},
	{Key: "reviewer", Label: "Reviewer"},
	{Key: "role", Label: "Role"},
	{Key: "status", Label: "Status"},
	{Key: "display", Label: "Display"},
	{Key: "opened_at", Label: "Opened"},
	{Key: "timestamp", Label: "Decided"},
}

var versionColumns = []export.Column{
	{Key: "version", Label: "Version"},
	{Key: "file_name", Label: "File"},
	{Key: "uploaded_by", Label: "Uploaded By"},
	{Key: "uploaded_at", Label: "Uploaded"},
	{Key: "summary", Label: "Summary"},
}

// AuditExporter renders a document's review trail for download
type AuditExporter struct {
	service Service
}

func NewAuditExporter(service Service) *AuditExporter {
	return &AuditExporter{service: service}
}

func (e *AuditExporter) Export(ctx context.Context, id uuid.UUID, format export.Format, w io.Writer) error {
	tables, err := e.Tables(ctx, id)
	if err != nil {
		return err
	}
	return export.Render(w, format, tables...)
}

// Tables returns the current cycle, every archived cycle and the version list
func (e *AuditExporter) Tables(ctx context.Context, id uuid.UUID) ([]export.Table, error) {
	report, err := e.service.GetTracking(ctx, id)
	if err != nil {
		return nil, err
	}
	versions, err := e.service.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}

	current := export.Table{
		Title:    "Current Review",
		Subtitle: fmt.Sprintf("%s, status %s, version %d", report.Name, report.Status, report.ReviewVersion),
		Columns:  trackingColumns,
		Rows:     trackingRows(report.Current),
	}
	if report.Remark != nil {
		current.Subtitle += ", remark: " + *report.Remark
	}
	tables := []export.Table{current}

	for _, cycle := range report.History {
		t := export.Table{
			Title:    fmt.Sprintf("Cycle %d", cycle.Cycle),
			Subtitle: fmt.Sprintf("version %d, %s", cycle.Version, cycle.Outcome),
			Columns:  trackingColumns,
			Rows:     trackingRows(cycle.Tracking),
		}
		if cycle.Remark != nil {
			t.Subtitle += ", remark: " + *cycle.Remark
		}
		tables = append(tables, t)
	}

	rows := make([]map[string]interface{}, len(versions))
	for i, v := range versions {
		summary := ""
		if v.Summary != nil {
			summary = v.Summary.Text
		}
		rows[i] = map[string]interface{}{
			"version":     v.VersionNumber,
			"file_name":   v.FileName,
			"uploaded_by": v.UploadedBy,
			"uploaded_at": v.UploadedAt,
			"summary":     summary,
		}
	}
	tables = append(tables, export.Table{Title: "Versions", Columns: versionColumns, Rows: rows})
	return tables, nil
}

func trackingRows(tracking Tracking) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(tracking))
	for i, step := range tracking {
		rows[i] = map[string]interface{}{
			"order":     step.Order,
			"reviewer":  step.ReviewerID,
			"role":      step.Role,
			"status":    string(step.Status),
			"display":   step.Display,
			"opened_at": step.OpenedAt,
			"timestamp": step.Timestamp,
		}
	}
	return rows
}
