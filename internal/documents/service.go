package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"dms-backend/internal/queue"
	"dms-backend/internal/shared/cache"
	"dms-backend/internal/shared/metrics"
	"dms-backend/internal/shared/storage/object"
	"dms-backend/internal/shared/telemetry"
	"dms-backend/internal/speech"
)

const defaultCacheTTL = 5 * time.Minute

// Service contains business logic for documents.
type Service struct {
	Repo     DocumentsRepo
	Store    object.ObjectStore
	Uploader *Uploader
	Speech   speech.Synthesizer
	Lang     string
	Cache    cache.Store
	CacheTTL time.Duration
	Events   queue.Publisher
}

// Upload runs the batch through the upload pipeline.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if req.UserID == "" || len(req.Files) == 0 {
		return UploadResult{}, ErrInvalidInput
	}
	return s.Uploader.Process(ctx, req), nil
}

// List returns the caller's documents newest first.
func (s *Service) List(ctx context.Context, userID string, opts ListOptions) ([]Document, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.Repo.ListByUser(ctx, userID, opts)
}

// Get returns one document owned by userID, reading through the cache.
func (s *Service) Get(ctx context.Context, userID, documentID string) (Document, error) {
	if userID == "" {
		return Document{}, ErrInvalidInput
	}
	if !validID(documentID) {
		return Document{}, ErrNotFound
	}

	key := cacheKey(userID, documentID)
	if doc, ok := s.cached(ctx, key); ok {
		return doc, nil
	}

	doc, err := s.Repo.GetByID(ctx, userID, documentID)
	if err != nil {
		return Document{}, err
	}
	s.remember(ctx, userID, documentID, doc)
	return doc, nil
}

// Delete removes the record first, then the stored object. A storage failure
// is logged and leaves the object orphaned; the delete still succeeds.
func (s *Service) Delete(ctx context.Context, userID, documentID, requestID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	if !validID(documentID) {
		return ErrNotFound
	}

	doc, err := s.Repo.DeleteByIDAndUser(ctx, documentID, userID)
	if err != nil {
		return err
	}
	s.forget(ctx, userID, documentID)

	if err := s.Store.Delete(context.WithoutCancel(ctx), doc.URL); err != nil && !errors.Is(err, object.ErrNotFound) {
		metrics.IncStorageDeleteFailure()
		telemetry.Error("documents.delete.storage_failed", map[string]any{
			"request_id":  requestID,
			"document_id": doc.ID,
			"user_id":     userID,
			"locator":     doc.URL,
			"err":         err,
		})
	}

	s.publish(ctx, doc, requestID)
	return nil
}

// Audio streams a speech rendition of the document text. Documents without
// text yield ErrNoText before any synthesis starts.
func (s *Service) Audio(ctx context.Context, userID, documentID string) (io.ReadCloser, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.HasText() {
		return nil, ErrNoText
	}
	stream, err := s.Speech.Synthesize(ctx, doc.Text, s.lang())
	if err != nil {
		if errors.Is(err, speech.ErrNoText) {
			return nil, ErrNoText
		}
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return stream, nil
}

func (s *Service) cached(ctx context.Context, key string) (Document, bool) {
	if s.Cache == nil {
		return Document{}, false
	}
	raw, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		telemetry.Warn("documents.cache.get_failed", map[string]any{"key": key, "err": err})
		return Document{}, false
	}
	if !ok {
		return Document{}, false
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, false
	}
	return doc, true
}

// remember caches doc unless a delete has tombstoned it. The tombstone is
// checked again after the write so a delete racing this read cannot leave a
// stale entry behind.
func (s *Service) remember(ctx context.Context, userID, documentID string, doc Document) {
	if s.Cache == nil || s.tombstoned(ctx, userID, documentID) {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	key := cacheKey(userID, documentID)
	if err := s.Cache.Set(ctx, key, raw, s.cacheTTL()); err != nil {
		telemetry.Warn("documents.cache.set_failed", map[string]any{"key": key, "err": err})
		return
	}
	if s.tombstoned(ctx, userID, documentID) {
		_ = s.Cache.Delete(context.WithoutCancel(ctx), key)
	}
}

// forget writes a tombstone before dropping the cached entry.
func (s *Service) forget(ctx context.Context, userID, documentID string) {
	if s.Cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	tomb := tombstoneKey(userID, documentID)
	if err := s.Cache.Set(ctx, tomb, []byte{1}, s.cacheTTL()); err != nil {
		telemetry.Warn("documents.cache.set_failed", map[string]any{"key": tomb, "err": err})
	}
	key := cacheKey(userID, documentID)
	if err := s.Cache.Delete(ctx, key); err != nil {
		telemetry.Warn("documents.cache.delete_failed", map[string]any{"key": key, "err": err})
	}
}

func (s *Service) tombstoned(ctx context.Context, userID, documentID string) bool {
	_, ok, err := s.Cache.Get(ctx, tombstoneKey(userID, documentID))
	return ok || err != nil
}

func (s *Service) cacheTTL() time.Duration {
	if s.CacheTTL <= 0 {
		return defaultCacheTTL
	}
	return s.CacheTTL
}

func (s *Service) publish(ctx context.Context, doc Document, requestID string) {
	if s.Events == nil {
		return
	}
	evt := queue.NewEvent(queue.EventDocumentDeleted, doc.ID, doc.UserID)
	evt.FileType = doc.FileType
	evt.RequestID = requestID
	if err := s.Events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		telemetry.Warn("documents.event.publish_failed", map[string]any{
			"request_id":  requestID,
			"document_id": doc.ID,
			"type":        evt.Type,
			"err":         err,
		})
	}
}

func (s *Service) lang() string {
	if s.Lang == "" {
		return speech.DefaultLang
	}
	return s.Lang
}

func cacheKey(userID, documentID string) string {
	return "doc:" + userID + ":" + documentID
}

func tombstoneKey(userID, documentID string) string {
	return "doc-deleted:" + userID + ":" + documentID
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
