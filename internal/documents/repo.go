package documents

import "context"

// DocumentsRepo defines persistence operations for documents. Every read and
// delete is scoped to the owning user.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]Document, error)
	GetByID(ctx context.Context, userID, documentID string) (Document, error)
	DeleteByIDAndUser(ctx context.Context, documentID, userID string) (Document, error)
}
