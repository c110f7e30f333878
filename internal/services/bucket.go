package services

import (
  "context"
  "fmt"
  "io"
  "net/http"
  "os"
  "time"
  "cloud.google.com/go/storage"
  "google.golang.org/api/option"
  "github.com/yungbote/scenedex-backend/internal/logger"
)

type BucketCategory string

const (
  BucketCategoryUpload    BucketCategory = "upload"
  BucketCategoryThumbnail BucketCategory = "thumbnail"
  BucketCategorySidecar   BucketCategory = "sidecar"
)

type BucketService interface {
  UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader, contentType string) error
  DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
  DeleteFile(ctx context.Context, category BucketCategory, key string) error
  GetObjectAttrs(ctx context.Context, category BucketCategory, key string) (*ObjectAttrs, error)
  SignedUploadURL(category BucketCategory, key string, contentType string, ttl time.Duration) (string, error)
  SignedDownloadURL(category BucketCategory, key string, ttl time.Duration) (string, error)
}

type ObjectAttrs struct {
  Size        int64
  ContentType string
  Updated     time.Time
}

type bucketService struct {
  log             *logger.Logger
  storageClient   *storage.Client
  uploadBucket    string
  thumbnailBucket string
  sidecarBucket   string
}

func NewBucketService(log *logger.Logger, uploadBucket, thumbnailBucket, sidecarBucket string) (BucketService, error) {
  serviceLog := log.With("service", "BucketService")
  if uploadBucket == "" || thumbnailBucket == "" || sidecarBucket == "" {
    return nil, fmt.Errorf("all bucket names are required")
  }
  saPath := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")
  if saPath == "" {
    serviceLog.Warn("The storage client may rely on other ADC or fail because GOOGLE_APPLICATION_CREDENTIALS_JSON env var missing...")
  }
  ctx := context.Background()
  var stClient *storage.Client
  var err error
  if saPath != "" {
    stClient, err = storage.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(storage.ScopeReadWrite))
  } else {
    stClient, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
  }
  if err != nil {
    return nil, fmt.Errorf("Failed to create storage client: %w", err)
  }
  return &bucketService{
    log:             serviceLog,
    storageClient:   stClient,
    uploadBucket:    uploadBucket,
    thumbnailBucket: thumbnailBucket,
    sidecarBucket:   sidecarBucket,
  }, nil
}

func (bs *bucketService) bucketName(category BucketCategory) (string, error) {
  switch category {
  case BucketCategoryUpload:
    return bs.uploadBucket, nil
  case BucketCategoryThumbnail:
    return bs.thumbnailBucket, nil
  case BucketCategorySidecar:
    return bs.sidecarBucket, nil
  default:
    return "", fmt.Errorf("unknown bucket category %q", category)
  }
}

func (bs *bucketService) UploadFile(ctx context.Context, category BucketCategory, key string, file io.Reader, contentType string) error {
  bucket, err := bs.bucketName(category)
  if err != nil {
    return err
  }
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()
  w := bs.storageClient.Bucket(bucket).Object(key).NewWriter(ctx)
  if contentType != "" {
    w.ContentType = contentType
  }
  if _, err := io.Copy(w, file); err != nil {
    _ = w.Close()
    return fmt.Errorf("Failed to write data to GCS: %w", err)
  }
  if err := w.Close(); err != nil {
    return fmt.Errorf("Failed to close GCS writer: %w", err)
  }
  return nil
}

func (bs *bucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
  bucket, err := bs.bucketName(category)
  if err != nil {
    return nil, err
  }
  r, err := bs.storageClient.Bucket(bucket).Object(key).NewReader(ctx)
  if err != nil {
    return nil, fmt.Errorf("Failed to open GCS reader for %q: %w", key, err)
  }
  return r, nil
}

func (bs *bucketService) DeleteFile(ctx context.Context, category BucketCategory, key string) error {
  bucket, err := bs.bucketName(category)
  if err != nil {
    return err
  }
  ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
  defer cancel()
  o := bs.storageClient.Bucket(bucket).Object(key)
  if err := o.Delete(ctx); err != nil {
    return fmt.Errorf("Failed to delete GCS object %q: %w", key, err)
  }
  return nil
}

func (bs *bucketService) GetObjectAttrs(ctx context.Context, category BucketCategory, key string) (*ObjectAttrs, error) {
  bucket, err := bs.bucketName(category)
  if err != nil {
    return nil, err
  }
  ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
  defer cancel()
  attrs, err := bs.storageClient.Bucket(bucket).Object(key).Attrs(ctx)
  if err != nil {
    return nil, fmt.Errorf("Failed to read GCS attrs for %q: %w", key, err)
  }
  return &ObjectAttrs{
    Size:        attrs.Size,
    ContentType: attrs.ContentType,
    Updated:     attrs.Updated,
  }, nil
}

func (bs *bucketService) SignedUploadURL(category BucketCategory, key string, contentType string, ttl time.Duration) (string, error) {
  bucket, err := bs.bucketName(category)
  if err != nil {
    return "", err
  }
  if ttl <= 0 {
    ttl = 15 * time.Minute
  }
  opts := &storage.SignedURLOptions{
    Scheme:      storage.SigningSchemeV4,
    Method:      http.MethodPut,
    Expires:     time.Now().Add(ttl),
    ContentType: contentType,
  }
  url, err := bs.storageClient.Bucket(bucket).SignedURL(key, opts)
  if err != nil {
    return "", fmt.Errorf("Failed to sign upload URL for %q: %w", key, err)
  }
  return url, nil
}

func (bs *bucketService) SignedDownloadURL(category BucketCategory, key string, ttl time.Duration) (string, error) {
  bucket, err := bs.bucketName(category)
  if err != nil {
    return "", err
  }
  if ttl <= 0 {
    ttl = 15 * time.Minute
  }
  opts := &storage.SignedURLOptions{
    Scheme:  storage.SigningSchemeV4,
    Method:  http.MethodGet,
    Expires: time.Now().Add(ttl),
  }
  url, err := bs.storageClient.Bucket(bucket).SignedURL(key, opts)
  if err != nil {
    return "", fmt.Errorf("Failed to sign download URL for %q: %w", key, err)
  }
  return url, nil
}
