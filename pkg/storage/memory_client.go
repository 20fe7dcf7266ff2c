package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// memoryS3Client keeps objects in process memory for local runs without S3
type memoryS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemoryS3Client returns an S3Client whose presigned URLs point at baseURL
func NewMemoryS3Client(baseURL string) S3Client {
	return &memoryS3Client{
		objects: make(map[string][]byte),
		baseURL: baseURL,
	}
}

func (c *memoryS3Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read upload body: %w", err)
	}
	c.mu.Lock()
	c.objects[bucket+"/"+key] = data
	c.mu.Unlock()
	return nil
}

func (c *memoryS3Client) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	c.mu.RLock()
	data, ok := c.objects[bucket+"/"+key]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *memoryS3Client) Delete(ctx context.Context, bucket, key string) error {
	c.mu.Lock()
	delete(c.objects, bucket+"/"+key)
	c.mu.Unlock()
	return nil
}

func (c *memoryS3Client) GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	return c.presign(bucket, key, expiration), nil
}

func (c *memoryS3Client) GetPresignedUploadURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	return c.presign(bucket, key, expiration), nil
}

func (c *memoryS3Client) presign(bucket, key string, expiration time.Duration) string {
	q := url.Values{}
	q.Set("expires", time.Now().Add(expiration).UTC().Format(time.RFC3339))
	return fmt.Sprintf("%s/%s/%s?%s", c.baseURL, bucket, key, q.Encode())
}
