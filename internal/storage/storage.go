package storage

import (
	"errors"
	"io"
)

var (
	// ErrNotFound means no object exists for the given identifier.
	ErrNotFound = errors.New("object not found")
	// ErrTooLarge means the source stream exceeded the configured size limit.
	ErrTooLarge = errors.New("object exceeds size limit")
)

// Store defines the interface for storing and retrieving objects by identifier.
type Store interface {
	// Put streams an object from src and returns the number of bytes written.
	// On any failure the partial object is removed before the error returns.
	Put(id string, src io.Reader) (int64, error)
	// Get opens an object for streaming read.
	Get(id string) (io.ReadCloser, error)
	// Delete removes an object, reporting whether it existed.
	Delete(id string) (bool, error)
	// AvailableSpace reports remaining capacity on the backing medium.
	AvailableSpace() (uint64, error)
}
