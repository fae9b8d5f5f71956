package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"dms-backend/internal/shared/storage/object"
	"dms-backend/internal/shared/util"
)

const providerName = "supabase"

// bucketAPI is the subset of the storage client the store needs.
type bucketAPI interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	DownloadFile(bucketID, filePath string, urlOptions ...storage_go.UrlOptions) ([]byte, error)
	RemoveFile(bucketID string, paths []string) ([]storage_go.FileUploadResponse, error)
	GetPublicUrl(bucketID, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse
}

// Store implements ObjectStore on a Supabase Storage bucket. Locators are
// public object URLs of the form <url>/storage/v1/object/public/<bucket>/<key>.
type Store struct {
	api    bucketAPI
	bucket string
}

// New builds a store from project URL, service key and bucket name.
func New(projectURL, key, bucket string) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("supabase bucket is required")
	}
	client, err := supabase.NewClient(projectURL, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Store{api: client.Storage, bucket: bucket}, nil
}

func (s *Store) Provider() string { return providerName }

// Put uploads the reader under the owner's namespace.
func (s *Store) Put(ctx context.Context, ownerID, fileName, contentType string, r io.Reader) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}
	key, err := util.ObjectKey(ownerID, fileName)
	if err != nil {
		return object.Object{}, fmt.Errorf("object key: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, fmt.Errorf("read body: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	upsert := false
	if _, err := s.api.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return object.Object{}, fmt.Errorf("supabase upload bucket=%s key=%s: %w", s.bucket, key, err)
	}

	return object.Object{
		Locator:  s.api.GetPublicUrl(s.bucket, key).SignedURL,
		Key:      key,
		Provider: providerName,
		Size:     int64(len(data)),
	}, nil
}

// Open downloads the object into memory.
func (s *Store) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := s.KeyFromLocator(locator)
	if err != nil {
		return nil, err
	}
	data, err := s.api.DownloadFile(s.bucket, key)
	if err != nil {
		if isNotFound(err) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("supabase download bucket=%s key=%s: %w", s.bucket, key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the object. Supabase reports an empty result for a missing path.
func (s *Store) Delete(ctx context.Context, locator string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := s.KeyFromLocator(locator)
	if err != nil {
		return err
	}
	removed, err := s.api.RemoveFile(s.bucket, []string{key})
	if err != nil {
		if isNotFound(err) {
			return object.ErrNotFound
		}
		return fmt.Errorf("supabase remove bucket=%s key=%s: %w", s.bucket, key, err)
	}
	if len(removed) == 0 {
		return object.ErrNotFound
	}
	return nil
}

// KeyFromLocator derives the object key from a public object URL.
func (s *Store) KeyFromLocator(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator != "" && !strings.Contains(locator, "://") {
		return strings.TrimLeft(locator, "/"), nil
	}
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("invalid supabase locator %q", locator)
	}
	marker := "/object/public/" + s.bucket + "/"
	_, key, ok := strings.Cut(u.Path, marker)
	if !ok || key == "" {
		return "", fmt.Errorf("locator %q does not belong to bucket %s", locator, s.bucket)
	}
	return key, nil
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}

var _ object.ObjectStore = (*Store)(nil)
