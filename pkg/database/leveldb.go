package database

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type levelDB struct {
	db *leveldb.DB
}

func openLevelDB(path string, readOnly bool) (kv, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		ReadOnly:       readOnly,
		ErrorIfMissing: readOnly,
	})
	if err != nil {
		return nil, err
	}
	return &levelDB{db: db}, nil
}

func (l *levelDB) get(key []byte) ([]byte, bool, error) {
	value, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (l *levelDB) put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *levelDB) iterate(prefix []byte, fn func(key, value []byte) error) error {
	var rng *util.Range
	if len(prefix) > 0 {
		rng = util.BytesPrefix(prefix)
	}
	iter := l.db.NewIterator(rng, nil)
	defer iter.Release()

	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (l *levelDB) close() error {
	return l.db.Close()
}
