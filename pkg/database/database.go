// Package database wraps the ordered key-value stores written by the node.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Type names a storage backend.
type Type string

const (
	// Auto detects the backend from the directory contents.
	Auto     Type = ""
	LevelDB  Type = "leveldb"
	PebbleDB Type = "pebbledb"
	BadgerDB Type = "badgerdb"
)

// Options configure Open.
type Options struct {
	Type Type
	// Writable opens the store for writing and creates it if missing.
	Writable bool
	// Managed opens the store through the node's database manager instead
	// of the backend driver directly.
	Managed bool
}

// kv is the minimal surface each backend implements.
type kv interface {
	get(key []byte) ([]byte, bool, error)
	put(key, value []byte) error
	iterate(prefix []byte, fn func(key, value []byte) error) error
	close() error
}

// Store is an open handle on a key-value store. It is not safe for
// concurrent use.
type Store struct {
	path     string
	typ      Type
	writable bool
	db       kv
}

// Open opens the store at path.
func Open(path string, opts Options) (*Store, error) {
	if !opts.Writable {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &StoreError{Path: path, Kind: ErrStoreNotFound}
			}
			return nil, &StoreError{Path: path, Kind: ErrStoreCorrupt, Err: err}
		}
	}

	typ := opts.Type
	if typ == Auto {
		typ = DetectType(path)
	}

	var (
		db  kv
		err error
	)
	switch {
	case opts.Managed && (typ == LevelDB || typ == PebbleDB || typ == BadgerDB):
		db, err = openManaged(path, typ, !opts.Writable)
	case typ == LevelDB:
		db, err = openLevelDB(path, !opts.Writable)
	case typ == PebbleDB:
		db, err = openPebble(path, !opts.Writable)
	case typ == BadgerDB:
		db, err = openBadger(path, !opts.Writable)
	default:
		return nil, fmt.Errorf("unknown database type %q", typ)
	}
	if err != nil {
		return nil, &StoreError{Path: path, Kind: ErrStoreCorrupt, Err: err}
	}

	return &Store{path: path, typ: typ, writable: opts.Writable, db: db}, nil
}

// DetectType tries to determine the backend of an existing store.
func DetectType(path string) Type {
	// Badger keeps a value log and a key registry
	if matches, _ := filepath.Glob(filepath.Join(path, "*.vlog")); len(matches) > 0 {
		return BadgerDB
	}
	if _, err := os.Stat(filepath.Join(path, "KEYREGISTRY")); err == nil {
		return BadgerDB
	}

	// Pebble writes OPTIONS files, LevelDB never does
	if matches, _ := filepath.Glob(filepath.Join(path, "OPTIONS-*")); len(matches) > 0 {
		return PebbleDB
	}

	// Loopchain stores are LevelDB
	return LevelDB
}

// Path returns the directory the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Type returns the backend in use.
func (s *Store) Type() Type {
	return s.typ
}

// Get looks up key. A missing key is reported as ok == false, not an error.
func (s *Store) Get(key []byte) (value []byte, ok bool, err error) {
	if s.db == nil {
		return nil, false, ErrClosed
	}
	return s.db.get(key)
}

// Has reports whether key exists.
func (s *Store) Has(key []byte) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

// Put writes a key-value pair. The store must be writable.
func (s *Store) Put(key, value []byte) error {
	if s.db == nil {
		return ErrClosed
	}
	if !s.writable {
		return ErrReadOnly
	}
	return s.db.put(key, value)
}

// Iterate calls fn for every pair whose key starts with prefix, in ascending
// key order. Key and value are only valid during the call.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.iterate(prefix, fn)
}

// Close releases the store. Calling Close more than once is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.close()
}
