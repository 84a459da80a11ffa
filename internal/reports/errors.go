package reports

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidPayload is returned by Append when the body is not a JSON object.
var ErrInvalidPayload = errors.New("invalid report payload")

// StorageError reports a document that could not be read, decoded or written.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("report store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Cause lets errors.Cause see through to the underlying failure.
func (e *StorageError) Cause() error { return e.Err }

// IsStorageError reports whether err came from reading or writing the document.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
