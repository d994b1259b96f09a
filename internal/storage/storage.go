package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ObjectInfo describes a single object as the bucket reports it.
type ObjectInfo struct {
	Name      string
	Size      int64
	UpdatedAt time.Time
}

// WriteSink is an open write stream to the bucket. Bytes written are staged
// and become visible to listings only after Commit returns. Abort discards
// all staged bytes; it is safe to call after Commit.
type WriteSink interface {
	io.Writer

	// Commit finalizes the object and returns its committed metadata.
	Commit(ctx context.Context) (ObjectInfo, error)

	// Abort discards the staged write state.
	Abort() error
}

// Store is the bucket contract consumed by the gateway. Implementations
// wrap every failure in *Error so callers can distinguish backing-store
// trouble from protocol errors.
type Store interface {
	// List returns the names of all objects in the bucket, in the
	// bucket's natural enumeration order.
	List(ctx context.Context) ([]string, error)

	// Stat returns metadata for a single object.
	Stat(ctx context.Context, name string) (ObjectInfo, error)

	// OpenWrite opens a staged write stream for the named object.
	OpenWrite(ctx context.Context, name string) (WriteSink, error)

	// OpenRead opens the named object for reading.
	OpenRead(ctx context.Context, name string) (io.ReadCloser, error)
}

// Error is returned for any backing-store failure, carrying the failed
// operation and the underlying cause.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	return &Error{Op: op, Err: err}
}
