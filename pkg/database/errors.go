package database

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotFound is returned when the store directory does not exist.
	ErrStoreNotFound = errors.New("store not found")
	// ErrStoreCorrupt is returned when the backend cannot open the directory.
	ErrStoreCorrupt = errors.New("store corrupt or unreadable")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
	// ErrReadOnly is returned when writing to a store opened read-only.
	ErrReadOnly = errors.New("store opened read-only")
)

// StoreError describes a failure to open a store.
type StoreError struct {
	Path string
	Kind error
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
