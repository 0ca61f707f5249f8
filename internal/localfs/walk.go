package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ErrNotDirectory is returned when the walk root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// File is a regular file found by Walk.
type File struct {
	Path    string    // Full path to the file
	Rel     string    // Path relative to the walk root, slash-separated
	Size    int64     // Size in bytes
	ModTime time.Time // Last modification time
}

// WalkFunc is called for each regular file. Returning an error stops the walk.
type WalkFunc func(f File) error

// Walk visits the regular files below root in lexical order. Symlinks and
// other non-regular entries are skipped. The root itself is never filtered
// as hidden. Walk stops with ctx.Err() once ctx is done.
func Walk(ctx context.Context, root string, opts WalkOptions, fn WalkFunc) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	skip := func(path string, err error) {
		if opts.OnSkip != nil {
			opts.OnSkip(path, err)
		}
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			skip(path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		if !opts.IncludeHidden && IsHiddenName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			skip(path, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !opts.Filter.Match(rel) {
			return nil
		}

		return fn(File{
			Path:    path,
			Rel:     rel,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	})
}

// Listing is the result of Collect.
type Listing struct {
	Files      []File
	TotalBytes int64
}

// Collect walks root and returns every file it would upload.
func Collect(ctx context.Context, root string, opts WalkOptions) (*Listing, error) {
	listing := &Listing{}
	err := Walk(ctx, root, opts, func(f File) error {
		listing.Files = append(listing.Files, f)
		listing.TotalBytes += f.Size
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}
