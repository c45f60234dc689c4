package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Disk writes each derivative to its own file below a root directory.
type Disk struct {
	root string
}

// NewDisk creates the root directory when needed.
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Disk{root}, nil
}

func (d *Disk) filename(id, path string) (string, error) {
	key, err := Key(id, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

// Put writes the data to a temporary file and moves it into place, so a
// reader never sees a partial derivative.
func (d *Disk) Put(ctx context.Context, id, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filename, err := d.filename(id, path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file content: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filename)
}

// Get reads the file back.
func (d *Disk) Get(ctx context.Context, id, path string) ([]byte, error) {
	filename, err := d.filename(id, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Exists checks for the file.
func (d *Disk) Exists(ctx context.Context, id, path string) (bool, error) {
	filename, err := d.filename(id, path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
