// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package leveldbstore implements store.DB on top of goleveldb, the way
// kaspad's database/ffldb/ldb package wraps the same engine.
package leveldbstore

import (
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/filter"
	"github.com/btcsuite/goleveldb/leveldb/iterator"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/util"
	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/store"
)

// columnSep separates a column name from the caller's key so every column
// shares one physical leveldb keyspace, mirroring dbaccess's bucket-prefix
// convention (database2.MakeBucket).
const columnSep = 0x00

func columnKey(column store.Column, key []byte) []byte {
	out := make([]byte, 0, len(column)+1+len(key))
	out = append(out, []byte(column)...)
	out = append(out, columnSep)
	out = append(out, key...)
	return out
}

// DB wraps a single goleveldb handle behind the store.DB interface.
type DB struct {
	ldb *leveldb.DB
}

// Open creates or opens a goleveldb database at path.
func Open(path string) (*DB, error) {
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	ldb, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "leveldbstore: open")
	}
	return &DB{ldb: ldb}, nil
}

// Get implements store.Reader.
func (db *DB) Get(column store.Column, key []byte) ([]byte, error) {
	v, err := db.ldb.Get(columnKey(column, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "leveldbstore: get")
	}
	return v, nil
}

// Has implements store.Reader.
func (db *DB) Has(column store.Column, key []byte) (bool, error) {
	ok, err := db.ldb.Has(columnKey(column, key), nil)
	if err != nil {
		return false, errors.Wrap(err, "leveldbstore: has")
	}
	return ok, nil
}

// Iterator implements store.Reader.
func (db *DB) Iterator(column store.Column, prefix []byte) (store.Cursor, error) {
	rng := util.BytesPrefix(columnKey(column, prefix))
	it := db.ldb.NewIterator(rng, nil)
	return &cursor{it: it, column: column}, nil
}

// Put implements store.Writer.
func (db *DB) Put(column store.Column, key, value []byte) error {
	if err := db.ldb.Put(columnKey(column, key), value, nil); err != nil {
		return errors.Wrap(err, "leveldbstore: put")
	}
	return nil
}

// Delete implements store.Writer.
func (db *DB) Delete(column store.Column, key []byte) error {
	if err := db.ldb.Delete(columnKey(column, key), nil); err != nil {
		return errors.Wrap(err, "leveldbstore: delete")
	}
	return nil
}

// Begin implements store.DB.
func (db *DB) Begin() (store.Transaction, error) {
	tx, err := db.ldb.OpenTransaction()
	if err != nil {
		return nil, errors.Wrap(err, "leveldbstore: begin")
	}
	return &transaction{tx: tx}, nil
}

// NewSnapshot implements store.DB.
func (db *DB) NewSnapshot() (store.Snapshot, error) {
	snap, err := db.ldb.GetSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "leveldbstore: snapshot")
	}
	return &snapshot{snap: snap}, nil
}

// BulkLoad implements store.DB. goleveldb has no distinct bulk-import mode,
// so this batches every write and flushes once on Finish, the same
// trade-off ffldb's bulk importer makes.
func (db *DB) BulkLoad() (store.BulkLoader, error) {
	return &bulkLoader{db: db, batch: new(leveldb.Batch)}, nil
}

// Close implements store.DB.
func (db *DB) Close() error {
	if err := db.ldb.Close(); err != nil {
		return errors.Wrap(err, "leveldbstore: close")
	}
	return nil
}

type cursor struct {
	it     iterator.Iterator
	column store.Column
}

func (c *cursor) Next() bool { return c.it.Next() }

func (c *cursor) Key() []byte {
	full := c.it.Key()
	return full[len(c.column)+1:]
}

func (c *cursor) Value() []byte { return c.it.Value() }

func (c *cursor) Error() error {
	if err := c.it.Error(); err != nil {
		return errors.Wrap(err, "leveldbstore: iterator")
	}
	return nil
}

func (c *cursor) Close() error {
	c.it.Release()
	return nil
}

type transaction struct {
	tx *leveldb.Transaction
}

func (t *transaction) Get(column store.Column, key []byte) ([]byte, error) {
	v, err := t.tx.Get(columnKey(column, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "leveldbstore: tx get")
	}
	return v, nil
}

func (t *transaction) Has(column store.Column, key []byte) (bool, error) {
	ok, err := t.tx.Has(columnKey(column, key), nil)
	if err != nil {
		return false, errors.Wrap(err, "leveldbstore: tx has")
	}
	return ok, nil
}

func (t *transaction) Iterator(column store.Column, prefix []byte) (store.Cursor, error) {
	rng := util.BytesPrefix(columnKey(column, prefix))
	it := t.tx.NewIterator(rng, nil)
	return &cursor{it: it, column: column}, nil
}

func (t *transaction) Put(column store.Column, key, value []byte) error {
	if err := t.tx.Put(columnKey(column, key), value, nil); err != nil {
		return errors.Wrap(err, "leveldbstore: tx put")
	}
	return nil
}

func (t *transaction) Delete(column store.Column, key []byte) error {
	if err := t.tx.Delete(columnKey(column, key), nil); err != nil {
		return errors.Wrap(err, "leveldbstore: tx delete")
	}
	return nil
}

func (t *transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, "leveldbstore: commit")
	}
	return nil
}

func (t *transaction) Rollback() error {
	t.tx.Discard()
	return nil
}

type snapshot struct {
	snap *leveldb.Snapshot
}

func (s *snapshot) Get(column store.Column, key []byte) ([]byte, error) {
	v, err := s.snap.Get(columnKey(column, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "leveldbstore: snapshot get")
	}
	return v, nil
}

func (s *snapshot) Has(column store.Column, key []byte) (bool, error) {
	ok, err := s.snap.Has(columnKey(column, key), nil)
	if err != nil {
		return false, errors.Wrap(err, "leveldbstore: snapshot has")
	}
	return ok, nil
}

func (s *snapshot) Iterator(column store.Column, prefix []byte) (store.Cursor, error) {
	rng := util.BytesPrefix(columnKey(column, prefix))
	it := s.snap.NewIterator(rng, nil)
	return &cursor{it: it, column: column}, nil
}

func (s *snapshot) Release() { s.snap.Release() }

type bulkLoader struct {
	db    *DB
	batch *leveldb.Batch
}

func (b *bulkLoader) Put(column store.Column, key, value []byte) error {
	b.batch.Put(columnKey(column, key), value)
	return nil
}

func (b *bulkLoader) Delete(column store.Column, key []byte) error {
	b.batch.Delete(columnKey(column, key))
	return nil
}

func (b *bulkLoader) Finish() error {
	if err := b.db.ldb.Write(b.batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "leveldbstore: bulk load finish")
	}
	b.batch.Reset()
	return nil
}
