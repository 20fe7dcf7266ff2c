package documents

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileUpload is the file payload of an upload or reupload
type FileUpload struct {
	FileName      string
	FileSizeBytes int64
	// FileReference points at an object the client already uploaded through a
	// presigned URL. When set, Content is ignored.
	FileReference string
	Content       io.Reader
	Summary       *Summary
}

// VersionStore hands out immutable version records. Records are built here
// and persisted by the repository together with the transition that needs them.
type VersionStore struct {
	repo    Repository
	storage *StorageProvider
}

func NewVersionStore(repo Repository, storage *StorageProvider) *VersionStore {
	return &VersionStore{repo: repo, storage: storage}
}

// CreateVersion stores the file and returns the record for the version that
// follows doc.CurrentVersion.
func (v *VersionStore) CreateVersion(ctx context.Context, doc *Document, uploadedBy string, file FileUpload, now time.Time) (*DocumentVersion, error) {
	if strings.TrimSpace(file.FileName) == "" {
		return nil, newWorkflowError(KindInvalidInput, doc.ID, "file name is required")
	}
	number := doc.CurrentVersion + 1
	id := uuid.New()

	reference := file.FileReference
	if reference != "" {
		if err := v.storage.CheckUploadReference(reference); err != nil {
			return nil, newWorkflowError(KindInvalidInput, doc.ID, "%v", err)
		}
	} else {
		if file.Content == nil {
			return nil, newWorkflowError(KindInvalidInput, doc.ID, "file content or reference is required")
		}
		ref, err := v.storage.UploadVersion(ctx, doc.ID, number, id, file.FileName, file.Content)
		if err != nil {
			return nil, err
		}
		reference = ref
	}

	var summary *Summary
	if file.Summary != nil {
		s := *file.Summary
		s.Tags = append([]string(nil), s.Tags...)
		s.normalize()
		summary = &s
	}

	return &DocumentVersion{
		ID:            id,
		DocumentID:    doc.ID,
		VersionNumber: number,
		FileName:      file.FileName,
		FileSizeBytes: file.FileSizeBytes,
		FileReference: reference,
		Summary:       summary,
		UploadedBy:    uploadedBy,
		UploadedAt:    now,
	}, nil
}

func (v *VersionStore) GetVersion(ctx context.Context, documentID uuid.UUID, versionNumber int) (*DocumentVersion, error) {
	version, err := v.repo.GetVersion(ctx, documentID, versionNumber)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, newWorkflowError(KindNotFound, documentID, "version %d not found", versionNumber)
	}
	return version, nil
}

func (v *VersionStore) ListVersions(ctx context.Context, documentID uuid.UUID) ([]DocumentVersion, error) {
	return v.repo.ListVersions(ctx, documentID)
}

// Discard drops the stored file of a version record that was never committed
func (v *VersionStore) Discard(ctx context.Context, version *DocumentVersion) error {
	return v.storage.Discard(ctx, version.FileReference)
}

// DownloadURL presigns a GET for the stored file of a version
func (v *VersionStore) DownloadURL(ctx context.Context, version *DocumentVersion) (string, error) {
	return v.storage.PresignDownload(ctx, version.FileReference)
}

// Open streams the stored file of a version
func (v *VersionStore) Open(ctx context.Context, version *DocumentVersion) (io.ReadCloser, error) {
	return v.storage.Download(ctx, version.FileReference)
}
