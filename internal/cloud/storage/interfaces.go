// Package storage defines the contract every upload backend implements,
// together with helpers shared by the backends.
package storage

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// Store writes objects to one destination (a bucket, a container or a
// directory). Implementations must be safe for concurrent Put calls.
type Store interface {
	// Name identifies the backend in logs, e.g. "s3://bucket".
	Name() string

	// Put stores size bytes read from body under key. The body is consumed
	// exactly once per call; callers that retry must reopen it.
	Put(ctx context.Context, key string, body io.Reader, size int64) error
}

// ObjectKey joins prefix and a local relative path into a slash-separated
// object key. Leading slashes are dropped so keys never start at the root.
func ObjectKey(prefix, rel string) string {
	key := path.Join(strings.Trim(filepath.ToSlash(prefix), "/"), filepath.ToSlash(rel))
	return strings.TrimLeft(key, "/")
}
