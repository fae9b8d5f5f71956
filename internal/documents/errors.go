package documents

import "errors"

var (
	ErrNotFound     = errors.New("document not found")
	ErrNoText       = errors.New("document has no text")
	ErrInvalidInput = errors.New("invalid input")
)
