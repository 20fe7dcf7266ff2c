package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DocumentFilter narrows ListDocuments; zero values are ignored
type DocumentFilter struct {
	OwnerID  string
	Statuses []DocumentStatus
}

type Repository interface {
	// CreateDocument stores a new document together with its first version
	CreateDocument(ctx context.Context, doc *Document, version *DocumentVersion) error
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error)
	// SaveTransition writes doc only if the stored revision still equals
	// expectedRevision, and appends version in the same write when non-nil.
	SaveTransition(ctx context.Context, doc *Document, expectedRevision int64, version *DocumentVersion) error

	ListVersions(ctx context.Context, documentID uuid.UUID) ([]DocumentVersion, error)
	GetVersion(ctx context.Context, documentID uuid.UUID, versionNumber int) (*DocumentVersion, error)
}

// Schema creates the tables used by the postgres repository
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	owner_id        TEXT NOT NULL,
	status          TEXT NOT NULL,
	current_version INTEGER NOT NULL,
	review_version  INTEGER NOT NULL DEFAULT 0,
	remark          TEXT,
	chain           JSONB NOT NULL DEFAULT '[]',
	tracking        JSONB NOT NULL DEFAULT '[]',
	history         JSONB NOT NULL DEFAULT '[]',
	due_at          TIMESTAMPTZ,
	revision        BIGINT NOT NULL,
	uploaded_at     TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_owner_idx ON documents (owner_id);
CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status);

CREATE TABLE IF NOT EXISTS document_versions (
	id              UUID PRIMARY KEY,
	document_id     UUID NOT NULL REFERENCES documents (id),
	version_number  INTEGER NOT NULL,
	file_name       TEXT NOT NULL,
	file_size_bytes BIGINT NOT NULL,
	file_reference  TEXT NOT NULL,
	summary         JSONB,
	uploaded_by     TEXT NOT NULL,
	uploaded_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (document_id, version_number)
);`

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// Migrate applies Schema
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply documents schema: %w", err)
	}
	return nil
}

const insertVersionQuery = `
	INSERT INTO document_versions (
		id, document_id, version_number, file_name, file_size_bytes, file_reference, summary, uploaded_by, uploaded_at
	) VALUES (
		:id, :document_id, :version_number, :file_name, :file_size_bytes, :file_reference, :summary, :uploaded_by, :uploaded_at
	)`

func (r *postgresRepository) CreateDocument(ctx context.Context, doc *Document, version *DocumentVersion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO documents (
			id, name, description, owner_id, status, current_version, review_version, remark,
			chain, tracking, history, due_at, revision, uploaded_at, updated_at
		) VALUES (
			:id, :name, :description, :owner_id, :status, :current_version, :review_version, :remark,
			:chain, :tracking, :history, :due_at, :revision, :uploaded_at, :updated_at
		)`
	if _, err := tx.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertVersionQuery, version); err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return tx.Commit()
}

func (r *postgresRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM documents WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *postgresRepository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var docs []Document
	query := "SELECT * FROM documents WHERE 1=1"
	var args []interface{}
	argCount := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argCount)
		args = append(args, filter.OwnerID)
		argCount++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argCount)
		args = append(args, pq.Array(statuses))
		argCount++
	}
	query += " ORDER BY updated_at DESC"

	err := r.db.SelectContext(ctx, &docs, query, args...)
	return docs, err
}

func (r *postgresRepository) SaveTransition(ctx context.Context, doc *Document, expectedRevision int64, version *DocumentVersion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version != nil {
		if _, err := tx.NamedExecContext(ctx, insertVersionQuery, version); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return newWorkflowError(KindStaleState, doc.ID, "version %d already exists", version.VersionNumber)
			}
			return fmt.Errorf("failed to insert version: %w", err)
		}
	}

	query := `
		UPDATE documents SET
			status = :status,
			current_version = :current_version,
			review_version = :review_version,
			remark = :remark,
			chain = :chain,
			tracking = :tracking,
			history = :history,
			due_at = :due_at,
			revision = :revision,
			updated_at = :updated_at
		WHERE id = :id AND revision = :expected_revision`
	params := map[string]interface{}{
		"id":                doc.ID,
		"status":            doc.Status,
		"current_version":   doc.CurrentVersion,
		"review_version":    doc.ReviewVersion,
		"remark":            doc.Remark,
		"chain":             doc.Chain,
		"tracking":          doc.Tracking,
		"history":           doc.History,
		"due_at":            doc.DueAt,
		"revision":          doc.Revision,
		"updated_at":        doc.UpdatedAt,
		"expected_revision": expectedRevision,
	}
	res, err := tx.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return newWorkflowError(KindStaleState, doc.ID, "revision %d is no longer current", expectedRevision)
	}
	return tx.Commit()
}

func (r *postgresRepository) ListVersions(ctx context.Context, documentID uuid.UUID) ([]DocumentVersion, error) {
	var versions []DocumentVersion
	err := r.db.SelectContext(ctx, &versions, "SELECT * FROM document_versions WHERE document_id = $1 ORDER BY version_number ASC", documentID)
	return versions, err
}

func (r *postgresRepository) GetVersion(ctx context.Context, documentID uuid.UUID, versionNumber int) (*DocumentVersion, error) {
	var version DocumentVersion
	err := r.db.GetContext(ctx, &version, "SELECT * FROM document_versions WHERE document_id = $1 AND version_number = $2", documentID, versionNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}
