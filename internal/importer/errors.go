package importer

import (
	"github.com/cockroachdb/errors"
)

// Operation-scoped errors abort the call and leave every context, task and
// item untouched.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTarget      = errors.New("invalid import target")
	ErrInvalidSource      = errors.New("invalid import source")
	ErrContextNotRunnable = errors.New("import context is not runnable")
	ErrAlreadyRunning     = errors.New("import context is busy")
	ErrInvalidPatch       = errors.New("invalid item patch")
	ErrQueueFull          = errors.New("run queue is full")
)

// Item-scoped errors are recorded on the item that raised them and surface
// through its state; siblings are never affected.
var (
	ErrReader          = errors.New("reader error")
	ErrTransform       = errors.New("transform error")
	ErrCatalogConflict = errors.New("catalog conflict")
)

// ErrorKind classifies an error recorded on an item.
type ErrorKind string

const (
	KindReader    ErrorKind = "reader"
	KindTransform ErrorKind = "transform"
	KindCatalog   ErrorKind = "catalog"
)

// RecordedError is an item-scoped failure as shown to clients.
type RecordedError struct {
	Kind      ErrorKind `json:"kind"`
	Transform string    `json:"transform,omitempty"`
	Message   string    `json:"message"`
	Hint      string    `json:"hint,omitempty"`
}

func newItemError(kind ErrorKind, err error) RecordedError {
	return RecordedError{
		Kind:    kind,
		Message: err.Error(),
		Hint:    errors.FlattenHints(err),
	}
}

func notFound(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

func invalidPatch(hint string, format string, args ...interface{}) error {
	return errors.WithHint(errors.Wrapf(ErrInvalidPatch, format, args...), hint)
}
