// Package local stores uploads in a directory on the local filesystem.
// It backs the default configuration and the upload service tests.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rescale/cloudfm/internal/cloud/storage"
	"github.com/rescale/cloudfm/internal/diskspace"
	"github.com/rescale/cloudfm/internal/localfs"
)

// spaceMargin is applied to each object's size before checking free space.
const spaceMargin = 1.05

// Provider implements storage.Store rooted at a directory.
type Provider struct {
	root string
}

var _ storage.Store = (*Provider)(nil)

// NewProvider creates the root directory if needed.
func NewProvider(root string) (*Provider, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	abs, err := localfs.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", abs, err)
	}
	return &Provider{root: abs}, nil
}

// Name returns "file://<root>".
func (p *Provider) Name() string {
	return "file://" + filepath.ToSlash(p.root)
}

// Put writes body to a temp file next to the destination and renames it
// into place, so readers never see a partial object.
func (p *Provider) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	objectKey := storage.ObjectKey("", key)
	if objectKey == "" {
		return storage.ErrEmptyKey
	}
	dest := filepath.Join(p.root, filepath.FromSlash(objectKey))
	if err := localfs.WithinDir(dest, p.root); err != nil {
		return fmt.Errorf("invalid key %q: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", objectKey, err)
	}

	if err := diskspace.Check(dest, size, spaceMargin); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrInsufficientSpace, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".cloudfm-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: body})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", objectKey, err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("short write for %s: wrote %d of %d bytes", objectKey, n, size)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", objectKey, err)
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
