// Package storage provides the device-local key-value backends the expense
// store persists into.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Backend is a string-keyed blob store. Load reports ok=false for a key that
// was never saved.
type Backend interface {
	Load(ctx context.Context, key string) (blob []byte, ok bool, err error)
	Save(ctx context.Context, key string, blob []byte) error
}

// Closer is implemented by backends that hold resources.
type Closer interface {
	Close() error
}

var ErrEmptyKey = errors.New("empty storage key")

func checkKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w", op, key, err)
}
