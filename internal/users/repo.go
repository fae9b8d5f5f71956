package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repo stores credentials. Create must reject an existing email with
// ErrDuplicateEmail even under concurrent registration.
type Repo interface {
	Create(ctx context.Context, user User) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, userID string) (User, error)
}
