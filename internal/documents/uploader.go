package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dms-backend/internal/queue"
	"dms-backend/internal/shared/metrics"
	"dms-backend/internal/shared/storage/object"
	"dms-backend/internal/shared/telemetry"
)

// ExtractionPolicy decides what happens to a file whose text cannot be extracted.
type ExtractionPolicy string

const (
	// PolicyKeep saves the document with empty text.
	PolicyKeep ExtractionPolicy = "keep"
	// PolicySkip drops the file from the batch.
	PolicySkip ExtractionPolicy = "skip"
)

const defaultUploadConcurrency = 4

// Failure stages reported per file.
const (
	StageRead    = "read"
	StageExtract = "extract"
	StageStore   = "store"
	StagePersist = "persist"
)

// ParsePolicy maps a config value to a policy, defaulting to PolicyKeep.
func ParsePolicy(raw string) ExtractionPolicy {
	if strings.EqualFold(strings.TrimSpace(raw), string(PolicySkip)) {
		return PolicySkip
	}
	return PolicyKeep
}

// ExtractFunc pulls text out of an in-memory payload.
type ExtractFunc func(ctx context.Context, data []byte, fileName, mimeType string) (string, error)

// UploadedFile is one file of a batch as handed over by the transport.
type UploadedFile struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
	// Cleanup removes any temporary artifact. Optional.
	Cleanup func() error
}

// UploadRequest is an ordered batch of files for one owner.
type UploadRequest struct {
	UserID    string
	RequestID string
	Files     []UploadedFile
}

// UploadResult lists saved documents and failures, both in input order.
type UploadResult struct {
	Documents []Document
	Failures  []FileFailure
}

// Uploader runs the per-file pipeline: read, extract, store, persist, cleanup.
// A failing file never affects its siblings.
type Uploader struct {
	Store       object.ObjectStore
	Repo        DocumentsRepo
	Extract     ExtractFunc
	Events      queue.Publisher
	Policy      ExtractionPolicy
	Concurrency int
	// ExtractFromStore stores the file first and extracts from the object
	// read back through its locator instead of the upload bytes.
	ExtractFromStore bool

	now func() time.Time
}

type fileOutcome struct {
	doc     Document
	failure *FileFailure
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Process handles every file of the batch. It never fails as a whole.
func (u *Uploader) Process(ctx context.Context, req UploadRequest) UploadResult {
	outcomes := make([]fileOutcome, len(req.Files))

	var g errgroup.Group
	g.SetLimit(u.concurrency())
	for i := range req.Files {
		i := i
		g.Go(func() error {
			outcomes[i] = u.processFile(ctx, req, req.Files[i])
			return nil
		})
	}
	_ = g.Wait()

	var res UploadResult
	for _, out := range outcomes {
		if out.failure != nil {
			res.Failures = append(res.Failures, *out.failure)
			continue
		}
		res.Documents = append(res.Documents, out.doc)
	}
	return res
}

func (u *Uploader) processFile(ctx context.Context, req UploadRequest, f UploadedFile) fileOutcome {
	start := time.Now()
	defer u.cleanup(req, f)

	doc, err := u.saveFile(ctx, req, f)
	if err != nil {
		stage := StagePersist
		var se *stageError
		if errors.As(err, &se) {
			stage = se.stage
		}
		metrics.ObserveUploadFile("failed", time.Since(start))
		telemetry.Warn("documents.upload.file_failed", map[string]any{
			"request_id": req.RequestID,
			"user_id":    req.UserID,
			"file_name":  f.Name,
			"stage":      stage,
			"err":        err,
		})
		return fileOutcome{failure: &FileFailure{
			OriginalName: f.Name,
			Stage:        stage,
			Reason:       failureReason(stage),
		}}
	}

	metrics.ObserveUploadFile("saved", time.Since(start))
	u.publishCreated(ctx, req, doc)
	return fileOutcome{doc: doc}
}

func (u *Uploader) saveFile(ctx context.Context, req UploadRequest, f UploadedFile) (Document, error) {
	data, err := readAll(f)
	if err != nil {
		return Document{}, &stageError{stage: StageRead, err: err}
	}

	fileType := strings.ToLower(filepath.Ext(f.Name))

	size := int64(len(data))

	var (
		obj     object.Object
		readErr error
	)
	if u.ExtractFromStore {
		if obj, err = u.Store.Put(ctx, req.UserID, f.Name, f.MimeType, bytes.NewReader(data)); err != nil {
			return Document{}, &stageError{stage: StageStore, err: err}
		}
		data, readErr = u.readBack(ctx, obj.Locator)
	}

	text, err := u.textFor(ctx, req, f, fileType, data, readErr)
	if err != nil {
		if u.ExtractFromStore {
			u.discardObject(ctx, req, obj)
		}
		return Document{}, &stageError{stage: StageExtract, err: err}
	}

	if !u.ExtractFromStore {
		if obj, err = u.Store.Put(ctx, req.UserID, f.Name, f.MimeType, bytes.NewReader(data)); err != nil {
			return Document{}, &stageError{stage: StageStore, err: err}
		}
	}

	doc := Document{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		OriginalName:    f.Name,
		FileType:        fileType,
		MimeType:        f.MimeType,
		Size:            size,
		URL:             obj.Locator,
		StorageID:       obj.Key,
		StorageProvider: obj.Provider,
		Text:            text,
		UploadDate:      u.clock().UTC(),
	}

	if err := u.Repo.Create(ctx, doc); err != nil {
		u.discardObject(ctx, req, obj)
		return Document{}, &stageError{stage: StagePersist, err: err}
	}
	return doc, nil
}

// textFor extracts text from data. readErr is a failure to obtain data in the
// first place. Failures are returned only under PolicySkip.
func (u *Uploader) textFor(ctx context.Context, req UploadRequest, f UploadedFile, fileType string, data []byte, readErr error) (string, error) {
	if u.Extract == nil {
		return "", nil
	}
	err := readErr
	text := ""
	if err == nil {
		text, err = u.Extract(ctx, data, f.Name, f.MimeType)
	}
	if err == nil {
		return text, nil
	}
	metrics.IncExtractionFailure(fileType)
	if u.Policy == PolicySkip {
		return "", err
	}
	telemetry.Warn("documents.upload.extraction_failed", map[string]any{
		"request_id": req.RequestID,
		"user_id":    req.UserID,
		"file_name":  f.Name,
		"err":        err,
	})
	return "", nil
}

// readBack fetches a just-written object. Backends must be readable
// immediately after Put for this to succeed.
func (u *Uploader) readBack(ctx context.Context, locator string) ([]byte, error) {
	rc, err := u.Store.Open(ctx, locator)
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", locator, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", locator, err)
	}
	return data, nil
}

// discardObject removes an object whose record could not be written.
func (u *Uploader) discardObject(ctx context.Context, req UploadRequest, obj object.Object) {
	err := u.Store.Delete(context.WithoutCancel(ctx), obj.Locator)
	if err == nil || errors.Is(err, object.ErrNotFound) {
		return
	}
	metrics.IncStorageDeleteFailure()
	telemetry.Error("documents.upload.orphaned_object", map[string]any{
		"request_id": req.RequestID,
		"user_id":    req.UserID,
		"locator":    obj.Locator,
		"err":        err,
	})
}

func (u *Uploader) cleanup(req UploadRequest, f UploadedFile) {
	if f.Cleanup == nil {
		return
	}
	if err := f.Cleanup(); err != nil {
		telemetry.Warn("documents.upload.cleanup_failed", map[string]any{
			"request_id": req.RequestID,
			"file_name":  f.Name,
			"err":        err,
		})
	}
}

func (u *Uploader) publishCreated(ctx context.Context, req UploadRequest, doc Document) {
	if u.Events == nil {
		return
	}
	evt := queue.NewEvent(queue.EventDocumentCreated, doc.ID, doc.UserID)
	evt.FileType = doc.FileType
	evt.Size = doc.Size
	evt.HasText = doc.HasText()
	evt.RequestID = req.RequestID
	if err := u.Events.Publish(ctx, evt); err != nil {
		telemetry.Warn("documents.event.publish_failed", map[string]any{
			"request_id":  req.RequestID,
			"document_id": doc.ID,
			"type":        evt.Type,
			"err":         err,
		})
	}
}

func (u *Uploader) concurrency() int {
	if u.Concurrency <= 0 {
		return defaultUploadConcurrency
	}
	return u.Concurrency
}

func (u *Uploader) clock() time.Time {
	if u.now != nil {
		return u.now()
	}
	return time.Now()
}

func readAll(f UploadedFile) ([]byte, error) {
	if f.Open == nil {
		return nil, errors.New("file has no content")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func failureReason(stage string) string {
	switch stage {
	case StageRead:
		return "file could not be read"
	case StageExtract:
		return "text could not be extracted"
	case StageStore:
		return "file could not be stored"
	default:
		return "document could not be saved"
	}
}
