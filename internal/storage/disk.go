package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/petermazzocco/dsgnr/internal/common"
)

type Disk struct {
	dir string
}

// NewDisk creates dir if it does not exist and returns a store rooted there.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) Dir() string {
	return d.dir
}

// Save writes to a temp file in the content directory and renames it into
// place, so a partially written image is never visible under its final name.
func (d *Disk) Save(_ context.Context, name string, body io.Reader, _ string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}

	dst := filepath.Join(d.dir, name)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%s: %w", name, fs.ErrExist)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (d *Disk) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !ValidName(name) {
		return nil, common.ErrNotFound
	}
	f, err := os.Open(filepath.Join(d.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (d *Disk) Remove(_ context.Context, name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	err := os.Remove(filepath.Join(d.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return common.ErrNotFound
	}
	return err
}
