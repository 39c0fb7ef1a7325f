// Package storage holds the content store that backs post images: a local
// content directory by default, or a Cloudflare R2 bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

var ErrInvalidName = errors.New("invalid object name")

// Store persists uploaded images by stored filename. Open returns
// common.ErrNotFound for names that do not exist.
type Store interface {
	Save(ctx context.Context, name string, body io.Reader, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
}

// ValidName reports whether name is a plain file name with no path
// components.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}
