package analysis

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no analysis exists for the requested id.
var ErrNotFound = errors.New("analysis not found")

// Repository port (interface for the backing store)
type Repository interface {
	Create(ctx context.Context, in CreateInput) (Analysis, error)
	Get(ctx context.Context, id int64) (Analysis, error)
	List(ctx context.Context, snapshotID *int64) ([]Analysis, error)
	Reset(ctx context.Context) error
	ExportState(ctx context.Context) (State, error)
	ImportState(ctx context.Context, st State) error
}

// Archiver port (interface for pushing state dumps to object storage)
type Archiver interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
