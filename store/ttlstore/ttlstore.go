// Package ttlstore implements store.TTLDB on top of goleveldb, used only
// for the transaction pool's RBF reject-cache (spec.md §4.1, §4.6).
package ttlstore

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/util"
	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/store"
)

// DB is a goleveldb-backed key-value store whose entries carry an absolute
// expiry; a background janitor periodically sweeps expired keys, and Get
// additionally filters out expired-but-not-yet-swept entries so a reader
// never observes stale data.
type DB struct {
	ldb *leveldb.DB

	nowFn func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Open creates or opens a TTL-backed store at path and starts its janitor,
// sweeping every sweepInterval. A non-positive sweepInterval runs no
// periodic sweep; Get still hides expired entries.
func Open(path string, sweepInterval time.Duration) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ttlstore: open")
	}
	db := &DB{
		ldb:    ldb,
		nowFn:  time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go db.janitor(sweepInterval)
	return db, nil
}

// entry layout: 8-byte big-endian unix-second expiry, then the value.
func encodeEntry(value []byte, expiresAt time.Time) []byte {
	out := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(out[:8], uint64(expiresAt.Unix()))
	copy(out[8:], value)
	return out
}

func decodeEntry(raw []byte) (value []byte, expiresAt time.Time, ok bool) {
	if len(raw) < 8 {
		return nil, time.Time{}, false
	}
	sec := binary.BigEndian.Uint64(raw[:8])
	return raw[8:], time.Unix(int64(sec), 0), true
}

// PutTTL implements store.TTLDB.
func (db *DB) PutTTL(key, value []byte, ttlSeconds int64) error {
	expiresAt := db.nowFn().Add(time.Duration(ttlSeconds) * time.Second)
	if err := db.ldb.Put(key, encodeEntry(value, expiresAt), nil); err != nil {
		return errors.Wrap(err, "ttlstore: put")
	}
	return nil
}

// Get implements store.TTLDB.
func (db *DB) Get(key []byte) ([]byte, error) {
	raw, err := db.ldb.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "ttlstore: get")
	}
	value, expiresAt, ok := decodeEntry(raw)
	if !ok || db.nowFn().After(expiresAt) {
		return nil, store.ErrNotFound
	}
	return value, nil
}

// Delete implements store.TTLDB.
func (db *DB) Delete(key []byte) error {
	if err := db.ldb.Delete(key, nil); err != nil {
		return errors.Wrap(err, "ttlstore: delete")
	}
	return nil
}

// Close implements store.TTLDB.
func (db *DB) Close() error {
	db.stopOnce.Do(func() { close(db.stopCh) })
	<-db.doneCh
	if err := db.ldb.Close(); err != nil {
		return errors.Wrap(err, "ttlstore: close")
	}
	return nil
}

func (db *DB) janitor(interval time.Duration) {
	defer close(db.doneCh)
	if interval <= 0 {
		<-db.stopCh
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopCh:
			return
		case <-ticker.C:
			db.sweep()
		}
	}
}

func (db *DB) sweep() {
	now := db.nowFn()
	it := db.ldb.NewIterator(util.BytesPrefix(nil), nil)
	defer it.Release()

	var expired [][]byte
	for it.Next() {
		_, expiresAt, ok := decodeEntry(it.Value())
		if !ok || now.After(expiresAt) {
			key := make([]byte, len(it.Key()))
			copy(key, it.Key())
			expired = append(expired, key)
		}
	}
	batch := new(leveldb.Batch)
	for _, k := range expired {
		batch.Delete(k)
	}
	if batch.Len() > 0 {
		_ = db.ldb.Write(batch, nil)
	}
}
