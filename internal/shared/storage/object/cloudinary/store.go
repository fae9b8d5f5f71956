package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"dms-backend/internal/shared/storage/object"
	"dms-backend/internal/shared/util"
)

const (
	providerName  = "cloudinary"
	resourceType  = "raw"
	DefaultFolder = "dms_documents"
)

var versionSegment = regexp.MustCompile(`^v\d+$`)

// Options configures the Cloudinary store. URL takes precedence over the
// discrete credentials.
type Options struct {
	URL       string
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// uploadAPI is the subset of the Cloudinary upload API the store needs.
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Store implements ObjectStore on Cloudinary raw resources. Locators are the
// secure delivery URLs returned by the upload API.
type Store struct {
	api    uploadAPI
	folder string
	http   *http.Client
}

// New builds a Cloudinary-backed store.
func New(opts Options) (*Store, error) {
	var (
		client *cld.Cloudinary
		err    error
	)
	if strings.TrimSpace(opts.URL) != "" {
		client, err = cld.NewFromURL(opts.URL)
	} else {
		client, err = cld.NewFromParams(opts.CloudName, opts.APIKey, opts.APISecret)
	}
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	return newStore(&client.Upload, opts.Folder, nil), nil
}

func newStore(api uploadAPI, folder string, httpClient *http.Client) *Store {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		folder = DefaultFolder
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Store{api: api, folder: folder, http: httpClient}
}

func (s *Store) Provider() string { return providerName }

// Put uploads the reader as a raw resource inside the configured folder.
func (s *Store) Put(ctx context.Context, ownerID, fileName, contentType string, r io.Reader) (object.Object, error) {
	key, err := util.ObjectKey(ownerID, fileName)
	if err != nil {
		return object.Object{}, fmt.Errorf("object key: %w", err)
	}
	publicID := s.folder + "/" + strings.ReplaceAll(key, "/", "_")

	res, err := s.api.Upload(ctx, r, uploader.UploadParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	if err != nil {
		return object.Object{}, fmt.Errorf("cloudinary upload %s: %w", publicID, err)
	}
	if res == nil || res.Error.Message != "" {
		msg := "empty response"
		if res != nil {
			msg = res.Error.Message
		}
		return object.Object{}, fmt.Errorf("cloudinary upload %s: %s", publicID, msg)
	}

	return object.Object{
		Locator:  res.SecureURL,
		Key:      res.PublicID,
		Provider: providerName,
		Size:     int64(res.Bytes),
	}, nil
}

// Open fetches the delivery URL.
func (s *Store) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary fetch: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, object.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("cloudinary fetch: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Delete destroys the raw resource the locator points at.
func (s *Store) Delete(ctx context.Context, locator string) error {
	publicID, err := PublicIDFromURL(locator)
	if err != nil {
		return err
	}
	res, err := s.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy %s: %w", publicID, err)
	}
	switch {
	case res == nil:
		return fmt.Errorf("cloudinary destroy %s: empty response", publicID)
	case res.Error.Message != "":
		return fmt.Errorf("cloudinary destroy %s: %s", publicID, res.Error.Message)
	case res.Result == "not found":
		return object.ErrNotFound
	case res.Result != "ok":
		return fmt.Errorf("cloudinary destroy %s: result %q", publicID, res.Result)
	}
	return nil
}

// PublicIDFromURL recovers the public id from a delivery URL such as
// https://res.cloudinary.com/<cloud>/raw/upload/v123/<folder>/<name>.
// Raw resources keep their extension in the public id.
func PublicIDFromURL(locator string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid cloudinary locator %q", locator)
	}
	_, rest, ok := strings.Cut(u.Path, "/upload/")
	if !ok || rest == "" {
		return "", fmt.Errorf("invalid cloudinary locator %q", locator)
	}
	segments := strings.Split(rest, "/")
	if len(segments) > 1 && versionSegment.MatchString(segments[0]) {
		segments = segments[1:]
	}
	publicID, err := url.PathUnescape(path.Join(segments...))
	if err != nil || publicID == "" {
		return "", errors.Join(fmt.Errorf("invalid cloudinary locator %q", locator), err)
	}
	return publicID, nil
}

var _ object.ObjectStore = (*Store)(nil)
