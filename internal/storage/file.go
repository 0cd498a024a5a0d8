package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// File stores one file per key under Dir. Writes go to a temp file that is
// renamed into place, so a crash never leaves a half-written snapshot.
type File struct {
	Dir string
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &File{Dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.Dir, url.PathEscape(key)+".json")
}

func (f *File) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("load", key, err)
	}
	return b, true, nil
}

func (f *File) Save(_ context.Context, key string, blob []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, ".tmp-*")
	if err != nil {
		return wrap("save", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return wrap("save", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wrap("save", key, err)
	}
	if err := tmp.Close(); err != nil {
		return wrap("save", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return wrap("save", key, err)
	}
	return nil
}
