package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"dms-backend/internal/shared/storage/object"
	"dms-backend/internal/shared/util"
)

const providerName = "s3"

// Options configures the S3-compatible store. Endpoint selects R2 or MinIO
// with path-style addressing; PublicBaseURL overrides the locator prefix.
type Options struct {
	Region        string
	Bucket        string
	Prefix        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// Store implements ObjectStore using Amazon S3 or an S3-compatible service.
type Store struct {
	client      *s3.Client
	bucket      string
	prefix      string
	locatorBase string
}

// New creates a new S3-backed object store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:      client,
		bucket:      opts.Bucket,
		prefix:      normalizePrefix(opts.Prefix),
		locatorBase: locatorBase(opts.PublicBaseURL, endpoint, opts.Bucket, region),
	}, nil
}

func (s *Store) Provider() string { return providerName }

// Put uploads the reader contents under the owner's namespace.
func (s *Store) Put(ctx context.Context, ownerID, fileName, contentType string, r io.Reader) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}
	key, err := util.ObjectKey(ownerID, fileName)
	if err != nil {
		return object.Object{}, fmt.Errorf("object key: %w", err)
	}
	objectKey := applyPrefix(s.prefix, key)

	body, size, err := seekable(r)
	if err != nil {
		return object.Object{}, fmt.Errorf("read body: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return object.Object{}, fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}

	return object.Object{
		Locator:  s.locatorBase + "/" + objectKey,
		Key:      objectKey,
		Provider: providerName,
		Size:     size,
	}, nil
}

// Open downloads a stored object for reading.
func (s *Store) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	objectKey, err := s.KeyFromLocator(locator)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return out.Body, nil
}

// Delete removes the object addressed by locator.
func (s *Store) Delete(ctx context.Context, locator string) error {
	objectKey, err := s.KeyFromLocator(locator)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			return object.ErrNotFound
		}
		return fmt.Errorf("s3 delete object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return nil
}

// KeyFromLocator derives the object key from a locator produced by Put.
func (s *Store) KeyFromLocator(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if rest, ok := strings.CutPrefix(locator, s.locatorBase+"/"); ok && rest != "" {
		return rest, nil
	}
	if locator != "" && !strings.Contains(locator, "://") {
		return strings.TrimLeft(locator, "/"), nil
	}
	return "", fmt.Errorf("locator %q does not belong to bucket %s", locator, s.bucket)
}

func locatorBase(publicBaseURL, endpoint, bucket, region string) string {
	if base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"); base != "" {
		return base
	}
	if endpoint != "" {
		return endpoint + "/" + url.PathEscape(bucket)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
}

func seekable(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(*bytes.Reader); ok {
		return rs, rs.Size(), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

var _ object.ObjectStore = (*Store)(nil)
