// Package store defines the column-keyed persistent map every other
// subsystem is built on: point get/put/delete, prefix and full-column
// scans, atomic write batches, and point-in-time read snapshots.
//
// Grounded on database2.Database/Cursor (the bucket-keyed accessor in the
// teacher repo) generalized from a single flat bucket space to named
// columns, since spec.md §4.1 names a fixed column list rather than
// leaving bucket naming to callers.
package store

import "github.com/pkg/errors"

// Column names a byte-space within the store. Keys are only ever compared
// within a column; two columns may reuse the same key bytes.
type Column string

// Required columns, per spec.md §4.1.
const (
	ColumnMeta             Column = "meta"
	ColumnBlockHeader      Column = "block_header"
	ColumnBlockBody        Column = "block_body"
	ColumnBlockExt         Column = "block_ext"
	ColumnBlockProposalIDs Column = "block_proposal_ids"
	ColumnBlockUncles      Column = "block_uncles"
	ColumnBlockExtension   Column = "block_extension"
	ColumnBlockFilter      Column = "block_filter"
	ColumnBlockFilterHash  Column = "block_filter_hash"
	ColumnTransactionInfo  Column = "transaction_info"
	ColumnCells            Column = "cells"
	ColumnEpoch            Column = "epoch"
	ColumnChainRootMMR     Column = "chain_root_mmr"
	ColumnNumberHash       Column = "number_hash"
)

// AllColumns lists every column a fresh store must create space for.
var AllColumns = []Column{
	ColumnMeta, ColumnBlockHeader, ColumnBlockBody, ColumnBlockExt,
	ColumnBlockProposalIDs, ColumnBlockUncles, ColumnBlockExtension,
	ColumnBlockFilter, ColumnBlockFilterHash, ColumnTransactionInfo,
	ColumnCells, ColumnEpoch, ColumnChainRootMMR, ColumnNumberHash,
}

// MigrationVersionKey is the key within ColumnMeta holding the store's
// schema version string.
var MigrationVersionKey = []byte("migration_version")

// ErrNotFound is returned by Get when the key doesn't exist in the column.
var ErrNotFound = errors.New("store: key not found")

// Reader is the read side of the store, satisfied by DB, Snapshot and
// Transaction alike.
type Reader interface {
	// Get fetches the value for key in column. Returns ErrNotFound if
	// absent.
	Get(column Column, key []byte) ([]byte, error)

	// Has reports whether key exists in column.
	Has(column Column, key []byte) (bool, error)

	// Iterator returns a Cursor over every key in column with the given
	// prefix (a nil/empty prefix scans the whole column), ordered by key.
	Iterator(column Column, prefix []byte) (Cursor, error)
}

// Writer is the write side of the store, satisfied by DB and Transaction.
type Writer interface {
	Put(column Column, key, value []byte) error
	Delete(column Column, key []byte) error
}

// Cursor iterates over ordered key/value pairs within a column.
//
// Grounded directly on database2.Cursor.
type Cursor interface {
	// Next advances to the next pair. Returns false once exhausted or on
	// error; check Error() to distinguish the two.
	Next() bool
	// Key returns the current key. Valid only after a true Next()/First().
	Key() []byte
	// Value returns the current value. Valid only after a true
	// Next()/First().
	Value() []byte
	// Error returns any error accumulated during iteration.
	Error() error
	// Close releases resources held by the cursor.
	Close() error
}

// Snapshot is a read-only, point-in-time view isolated from concurrently
// committing Transactions.
type Snapshot interface {
	Reader
	// Release frees resources pinned by the snapshot. After Release the
	// snapshot must not be used.
	Release()
}

// Transaction collects writes and applies them atomically on Commit. Reads
// through a Transaction observe its own pending writes layered over the
// state the transaction was opened against.
type Transaction interface {
	Reader
	Writer
	// Commit applies every collected write atomically. A Transaction must
	// not be reused after Commit or Rollback.
	Commit() error
	// Rollback discards every collected write.
	Rollback() error
}

// BulkLoader accepts out-of-order, unbatched writes during initial import,
// deferring durability guarantees until Finish for throughput.
type BulkLoader interface {
	Writer
	// Finish flushes and restores normal durability semantics.
	Finish() error
}

// DB is the full store surface: point access, iteration, atomic
// transactions, snapshots and bulk-load mode.
type DB interface {
	Reader
	Writer

	// Begin starts a new atomic Transaction.
	Begin() (Transaction, error)
	// NewSnapshot opens a read-only point-in-time Snapshot.
	NewSnapshot() (Snapshot, error)
	// BulkLoad opens a BulkLoader for initial import. Only one bulk
	// loader may be open at a time.
	BulkLoad() (BulkLoader, error)
	// Close flushes and closes the database.
	Close() error
}

// TTLDB is a second, optional store that auto-expires entries by wall
// time; spec.md §4.1 reserves it for the RBF reject-cache.
type TTLDB interface {
	// PutTTL stores value under key, to be purged once ttlSeconds has
	// elapsed since the call.
	PutTTL(key, value []byte, ttlSeconds int64) error
	// Get fetches value for key, or ErrNotFound if absent or expired.
	Get(key []byte) ([]byte, error)
	// Delete removes key immediately, regardless of its expiry.
	Delete(key []byte) error
	// Close stops the janitor and releases resources.
	Close() error
}
