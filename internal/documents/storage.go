package documents

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"review-portal/review-portal-backend/pkg/storage"
)

const (
	versionsPrefix = "documents/"
	uploadsPrefix  = "uploads/"
)

type StorageProvider struct {
	s3         storage.S3Client
	bucket     string
	presignTTL time.Duration
}

func NewStorageProvider(s3 storage.S3Client, bucket string, presignTTL time.Duration) *StorageProvider {
	if presignTTL <= 0 {
		presignTTL = 5 * time.Minute
	}
	return &StorageProvider{
		s3:         s3,
		bucket:     bucket,
		presignTTL: presignTTL,
	}
}

// UploadVersion stores the file of one version record and returns its
// reference. The key carries the record ID so a losing concurrent upload
// never lands on the object a committed version points at.
func (p *StorageProvider) UploadVersion(ctx context.Context, docID uuid.UUID, version int, versionID uuid.UUID, fileName string, body io.Reader) (string, error) {
	key := p.GenerateS3Key(docID.String(), version, versionID.String(), fileName)
	if err := p.s3.Upload(ctx, p.bucket, key, body); err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}

// Discard removes an object written by UploadVersion. Client uploads made
// through a presigned URL are left alone.
func (p *StorageProvider) Discard(ctx context.Context, reference string) error {
	bucket, key, err := parseReference(reference)
	if err != nil {
		return err
	}
	if bucket != p.bucket || !strings.HasPrefix(key, versionsPrefix) {
		return nil
	}
	return p.s3.Delete(ctx, bucket, key)
}

// CheckUploadReference accepts only objects handed out by PresignUpload
func (p *StorageProvider) CheckUploadReference(reference string) error {
	bucket, key, err := parseReference(reference)
	if err != nil {
		return err
	}
	if bucket != p.bucket {
		return fmt.Errorf("file reference must be in bucket %s", p.bucket)
	}
	if !strings.HasPrefix(key, uploadsPrefix) || path.Clean(key) != key {
		return fmt.Errorf("file reference must point at a presigned upload")
	}
	return nil
}

func (p *StorageProvider) Download(ctx context.Context, reference string) (io.ReadCloser, error) {
	bucket, key, err := parseReference(reference)
	if err != nil {
		return nil, err
	}
	return p.s3.Download(ctx, bucket, key)
}

// PresignUpload hands the client a URL to PUT a file directly into the bucket
func (p *StorageProvider) PresignUpload(ctx context.Context, fileName string) (string, string, error) {
	key := fmt.Sprintf("%s%s/%s", uploadsPrefix, uuid.New().String(), path.Base(fileName))
	url, err := p.s3.GetPresignedUploadURL(ctx, p.bucket, key, p.presignTTL)
	if err != nil {
		return "", "", err
	}
	return url, fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}

// PresignDownload returns a short-lived GET URL for a stored version
func (p *StorageProvider) PresignDownload(ctx context.Context, reference string) (string, error) {
	bucket, key, err := parseReference(reference)
	if err != nil {
		return "", err
	}
	return p.s3.GetPresignedURL(ctx, bucket, key, p.presignTTL)
}

func (p *StorageProvider) GenerateS3Key(docID string, version int, versionID string, fileName string) string {
	return fmt.Sprintf("%s%s/v%d/%s/%s", versionsPrefix, docID, version, versionID, path.Base(fileName))
}

func parseReference(reference string) (string, string, error) {
	rest, ok := strings.CutPrefix(reference, "s3://")
	if !ok {
		return "", "", fmt.Errorf("unsupported file reference %q", reference)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed file reference %q", reference)
	}
	return bucket, key, nil
}
