package store

import (
	"context"
	"errors"
)

// ErrTooLarge is returned by Read when the payload exceeds maxBytes.
var ErrTooLarge = errors.New("payload exceeds size limit")

// ContentStore materializes and delivers message bodies without the
// transport core knowing the storage medium. The handle is an opaque
// reference minted by the caller.
type ContentStore interface {
	// Read returns the payload bytes for the handle, failing with
	// ErrTooLarge when the payload exceeds maxBytes.
	Read(ctx context.Context, handle string, maxBytes int64) ([]byte, error)

	// Write stores the payload bytes under the handle.
	Write(ctx context.Context, handle string, data []byte) error
}
