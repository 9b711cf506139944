package mmr

import (
	"encoding/binary"

	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// leafCountKey is the single key within ColumnChainRootMMR holding the
// current leaf count.
var leafCountKey = []byte("leaf_count")

// Backend is the minimal store surface KVStore needs: point get/put. Both
// store.DB and store.Transaction satisfy it, so a KVStore can be bound to
// a transaction for the duration of one attach/detach and to the plain DB
// everywhere else.
type Backend interface {
	Get(column store.Column, key []byte) ([]byte, error)
	Put(column store.Column, key, value []byte) error
}

// KVStore adapts a store.Backend (store.DB or an open store.Transaction)
// to the mmr.Store interface, keeping every leaf digest under
// store.ColumnChainRootMMR keyed by its leaf (block) index.
type KVStore struct {
	db Backend
}

// NewKVStore wraps db for use as an MMR leaf store.
func NewKVStore(db Backend) *KVStore {
	return &KVStore{db: db}
}

func leafKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

// GetLeaf implements Store.
func (s *KVStore) GetLeaf(index uint64) (Digest, bool, error) {
	v, err := s.db.Get(store.ColumnChainRootMMR, leafKey(index))
	if err == store.ErrNotFound {
		return Digest{}, false, nil
	}
	if err != nil {
		return Digest{}, false, err
	}
	d, err := types.HashFromBytes(v)
	if err != nil {
		return Digest{}, false, err
	}
	return d, true, nil
}

// PutLeaf implements Store.
func (s *KVStore) PutLeaf(index uint64, digest Digest) error {
	return s.db.Put(store.ColumnChainRootMMR, leafKey(index), digest[:])
}

// LeafCount implements Store.
func (s *KVStore) LeafCount() (uint64, error) {
	v, err := s.db.Get(store.ColumnChainRootMMR, leafCountKey)
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

// SetLeafCount implements Store.
func (s *KVStore) SetLeafCount(n uint64) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, n)
	return s.db.Put(store.ColumnChainRootMMR, leafCountKey, v)
}
