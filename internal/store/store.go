package store

import (
	"context"

	"github.com/roach88/humam/internal/param"
)

// Store is the artifact cache shared by every stage.
type Store interface {
	// Exists reports whether a complete artifact is stored under key.
	Exists(ctx context.Context, key Key) (bool, error)

	// Write atomically stores files under key and returns the artifact
	// location. If key already exists the stored artifact is kept and its
	// location returned. The parent artifact must exist.
	Write(ctx context.Context, key Key, files Files) (string, error)

	// Read returns the files stored under key, or a fault.NotFound error.
	Read(ctx context.Context, key Key) (Files, error)

	// Lock blocks until the caller holds the compute lock for key or the
	// artifact appears. The returned function releases the lock.
	Lock(ctx context.Context, key Key) (unlock func() error, err error)

	// Find locates an artifact of the given stage by its own hash.
	Find(ctx context.Context, stage Stage, hash param.Identifier) (Key, error)

	// Path returns the location an artifact under key has or would have.
	Path(key Key) string
}
