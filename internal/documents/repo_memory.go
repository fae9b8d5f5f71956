package documents

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo is an in-memory implementation of DocumentsRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Document // documentID -> document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]Document),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[doc.ID] = doc
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, userID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.data[documentID]
	if !ok || doc.UserID != userID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepo) DeleteByIDAndUser(ctx context.Context, documentID, userID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.data[documentID]
	if !ok || doc.UserID != userID {
		return Document{}, ErrNotFound
	}
	delete(r.data, documentID)
	return doc, nil
}

// ListByUser returns documents for a user, newest first. A query matches when
// every term appears, case-insensitively, in the name or the text.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(opts.Query))

	r.mu.RLock()
	docs := make([]Document, 0)
	for _, doc := range r.data {
		if doc.UserID == userID && matchesTerms(doc, terms) {
			docs = append(docs, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadDate.Equal(docs[j].UploadDate) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UploadDate.After(docs[j].UploadDate)
	})

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return []Document{}, nil
	}
	end := len(docs)
	if opts.Limit > 0 && offset+opts.Limit < end {
		end = offset + opts.Limit
	}
	return docs[offset:end], nil
}

func matchesTerms(doc Document, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(doc.OriginalName + " " + doc.Text)
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

var _ DocumentsRepo = (*MemoryRepo)(nil)
