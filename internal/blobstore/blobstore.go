// Package blobstore keeps uploaded material files on the local filesystem
// under <root>/<grade>/<subject>/<category>/<name>. Name collisions are
// resolved by appending _<n> before the extension until the path is free.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is a filesystem-backed blob store rooted at a single directory.
type Store struct {
	root string
}

// Saved describes a stored blob. Path is relative to the store root and is
// what the catalog records as the storage reference.
type Saved struct {
	Path string
	Name string
	Size int64
}

// New constructs a store rooted at dir, creating it if missing.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("blobstore: empty root dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Abs resolves a stored relative path to an absolute filesystem path.
func (s *Store) Abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Save writes the blob under the taxonomy directory, picking a free file name.
// The final path is claimed with O_EXCL, so two concurrent saves of the same
// name cannot end up on one path.
func (s *Store) Save(ctx context.Context, grade int, subject, category, name string, r io.Reader) (Saved, error) {
	if err := ctx.Err(); err != nil {
		return Saved{}, err
	}
	name = sanitizeName(name)
	if name == "" {
		return Saved{}, errors.New("blobstore: empty file name")
	}

	relDir := filepath.Join(fmt.Sprint(grade), subject, category)
	if err := os.MkdirAll(filepath.Join(s.root, relDir), 0o755); err != nil {
		return Saved{}, fmt.Errorf("blobstore: create dir: %w", err)
	}

	base := name[:len(name)-len(filepath.Ext(name))]
	ext := filepath.Ext(name)

	for n := 0; ; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
		}
		rel := filepath.ToSlash(filepath.Join(relDir, candidate))

		f, err := os.OpenFile(s.Abs(rel), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return Saved{}, fmt.Errorf("blobstore: create %s: %w", rel, err)
		}

		size, err := io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(s.Abs(rel))
			return Saved{}, fmt.Errorf("blobstore: write %s: %w", rel, err)
		}
		return Saved{Path: rel, Name: candidate, Size: size}, nil
	}
}

// Remove deletes the blob behind a stored path. A missing blob is not an
// error; the boolean reports whether anything was actually removed.
func (s *Store) Remove(rel string) (bool, error) {
	err := os.Remove(s.Abs(rel))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("blobstore: remove %s: %w", rel, err)
}

// Open opens a stored blob for reading.
func (s *Store) Open(rel string) (*os.File, error) {
	f, err := os.Open(s.Abs(rel))
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", rel, err)
	}
	return f, nil
}

// PhotoName generates a display name for a photo upload, which arrives from
// the transport without one.
func PhotoName() string {
	return "photo_" + uuid.NewString() + ".jpg"
}

// sanitizeName strips any path components from an upload name so a crafted
// name cannot escape the taxonomy directory.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
