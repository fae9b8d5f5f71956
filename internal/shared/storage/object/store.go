package object

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when the addressed object does not exist.
var ErrNotFound = errors.New("object not found")

// Object describes a stored blob. Locator is self-describing: the backend
// that produced it can derive Key from Locator alone.
type Object struct {
	Locator  string
	Key      string
	Provider string
	Size     int64
}

// ObjectStore defines the contract for saving, reading and removing binary objects.
type ObjectStore interface {
	Put(ctx context.Context, ownerID, fileName, contentType string, r io.Reader) (Object, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
	Provider() string
}
