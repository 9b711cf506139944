// Package memstore is an in-memory store.DB, used by tests throughout the
// core the way kaspad's in-memory database stub backs blockdag's
// table-driven tests without touching disk.
package memstore

import (
	"sort"
	"sync"

	"github.com/nervosnetwork/ckb-sub009/store"
)

// DB is a lock-protected map-of-maps implementation of store.DB.
type DB struct {
	mu      sync.RWMutex
	columns map[store.Column]map[string][]byte
}

// New returns an empty in-memory DB with every required column present.
func New() *DB {
	db := &DB{columns: make(map[store.Column]map[string][]byte)}
	for _, c := range store.AllColumns {
		db.columns[c] = make(map[string][]byte)
	}
	return db
}

func (db *DB) col(c store.Column) map[string][]byte {
	m, ok := db.columns[c]
	if !ok {
		m = make(map[string][]byte)
		db.columns[c] = m
	}
	return m
}

// Get implements store.Reader.
func (db *DB) Get(column store.Column, key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.col(column)[string(key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Has implements store.Reader.
func (db *DB) Has(column store.Column, key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.col(column)[string(key)]
	return ok, nil
}

// Iterator implements store.Reader.
func (db *DB) Iterator(column store.Column, prefix []byte) (store.Cursor, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	m := db.col(column)
	keys := make([]string, 0, len(m))
	for k := range m {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return &cursor{keys: keys, values: values, idx: -1}, nil
}

// Put implements store.Writer.
func (db *DB) Put(column store.Column, key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	db.col(column)[string(key)] = v
	return nil
}

// Delete implements store.Writer.
func (db *DB) Delete(column store.Column, key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.col(column), string(key))
	return nil
}

// Begin implements store.DB.
func (db *DB) Begin() (store.Transaction, error) {
	return &txn{db: db, puts: make(map[store.Column]map[string][]byte), dels: make(map[store.Column]map[string]bool)}, nil
}

// NewSnapshot implements store.DB with a deep copy, since an in-memory map
// has no native MVCC.
func (db *DB) NewSnapshot() (store.Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	copyDB := New()
	for col, m := range db.columns {
		for k, v := range m {
			cp := make([]byte, len(v))
			copy(cp, v)
			copyDB.col(col)[k] = cp
		}
	}
	return &snapshot{db: copyDB}, nil
}

// BulkLoad implements store.DB.
func (db *DB) BulkLoad() (store.BulkLoader, error) {
	return &bulkLoader{db: db}, nil
}

// Close implements store.DB.
func (db *DB) Close() error { return nil }

type cursor struct {
	keys   []string
	values [][]byte
	idx    int
}

func (c *cursor) Next() bool {
	c.idx++
	return c.idx < len(c.keys)
}
func (c *cursor) Key() []byte   { return []byte(c.keys[c.idx]) }
func (c *cursor) Value() []byte { return c.values[c.idx] }
func (c *cursor) Error() error  { return nil }
func (c *cursor) Close() error  { return nil }

type txn struct {
	db   *DB
	puts map[store.Column]map[string][]byte
	dels map[store.Column]map[string]bool
}

func (t *txn) Get(column store.Column, key []byte) ([]byte, error) {
	if t.dels[column] != nil && t.dels[column][string(key)] {
		return nil, store.ErrNotFound
	}
	if v, ok := t.puts[column][string(key)]; ok {
		return v, nil
	}
	return t.db.Get(column, key)
}

func (t *txn) Has(column store.Column, key []byte) (bool, error) {
	_, err := t.Get(column, key)
	if err == store.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (t *txn) Iterator(column store.Column, prefix []byte) (store.Cursor, error) {
	// Pending writes are committed before iteration is needed anywhere in
	// this codebase; transactions here are write-collect-then-commit.
	return t.db.Iterator(column, prefix)
}

func (t *txn) Put(column store.Column, key, value []byte) error {
	if t.puts[column] == nil {
		t.puts[column] = make(map[string][]byte)
	}
	v := make([]byte, len(value))
	copy(v, value)
	t.puts[column][string(key)] = v
	if t.dels[column] != nil {
		delete(t.dels[column], string(key))
	}
	return nil
}

func (t *txn) Delete(column store.Column, key []byte) error {
	if t.dels[column] == nil {
		t.dels[column] = make(map[string]bool)
	}
	t.dels[column][string(key)] = true
	if t.puts[column] != nil {
		delete(t.puts[column], string(key))
	}
	return nil
}

func (t *txn) Commit() error {
	for col, m := range t.puts {
		for k, v := range m {
			if err := t.db.Put(col, []byte(k), v); err != nil {
				return err
			}
		}
	}
	for col, m := range t.dels {
		for k := range m {
			if err := t.db.Delete(col, []byte(k)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *txn) Rollback() error {
	t.puts = nil
	t.dels = nil
	return nil
}

type snapshot struct {
	db *DB
}

func (s *snapshot) Get(column store.Column, key []byte) ([]byte, error) { return s.db.Get(column, key) }
func (s *snapshot) Has(column store.Column, key []byte) (bool, error)   { return s.db.Has(column, key) }
func (s *snapshot) Iterator(column store.Column, prefix []byte) (store.Cursor, error) {
	return s.db.Iterator(column, prefix)
}
func (s *snapshot) Release() {}

type bulkLoader struct {
	db *DB
}

func (b *bulkLoader) Put(column store.Column, key, value []byte) error {
	return b.db.Put(column, key, value)
}
func (b *bulkLoader) Delete(column store.Column, key []byte) error {
	return b.db.Delete(column, key)
}
func (b *bulkLoader) Finish() error { return nil }
