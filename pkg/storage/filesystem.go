package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FilesystemStore keeps content in files below Root.
type FilesystemStore struct {
	Root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.WithMessage(err, "creating storage root")
	}
	return &FilesystemStore{Root: root}, nil
}

func (f *FilesystemStore) resolve(path string) (string, error) {
	full := filepath.Join(f.Root, filepath.FromSlash(path))
	if !strings.HasPrefix(full, filepath.Clean(f.Root)+string(os.PathSeparator)) {
		return "", errors.Errorf("path %q escapes the storage root", path)
	}
	return full, nil
}

func (f *FilesystemStore) Save(_ context.Context, path string, r io.Reader, _ string) (int64, error) {
	full, err := f.resolve(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return n, err
	}
	return n, out.Close()
}

func (f *FilesystemStore) Load(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return file, err
}

func (f *FilesystemStore) Delete(_ context.Context, path string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FilesystemStore) DeleteByPrefix(_ context.Context, prefix string) error {
	full, err := f.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	return os.RemoveAll(full)
}
