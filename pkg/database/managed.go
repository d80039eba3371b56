package database

import (
	"errors"
	"path/filepath"

	luxdb "github.com/luxfi/database"
	"github.com/luxfi/database/manager"
	"github.com/prometheus/client_golang/prometheus"
)

// managedDB goes through the node's database manager, which applies the
// node's cache and handle settings to the backend.
type managedDB struct {
	db luxdb.Database
}

func openManaged(path string, typ Type, readOnly bool) (kv, error) {
	dbManager := manager.NewManager(filepath.Dir(path), prometheus.NewRegistry())
	db, err := dbManager.New(&manager.Config{
		Type:      string(typ),
		Path:      filepath.Base(path),
		Namespace: "dbtools",
		CacheSize: 512, // MB
		HandleCap: 1024,
		ReadOnly:  readOnly,
	})
	if err != nil {
		return nil, err
	}
	return &managedDB{db: db}, nil
}

func (m *managedDB) get(key []byte) ([]byte, bool, error) {
	value, err := m.db.Get(key)
	if errors.Is(err, luxdb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *managedDB) put(key, value []byte) error {
	return m.db.Put(key, value)
}

func (m *managedDB) iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := m.db.NewIteratorWithPrefix(prefix)
	defer iter.Release()

	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (m *managedDB) close() error {
	return m.db.Close()
}
