// Package store abstracts the ordered key-value engine the rest of the
// core is built on (spec §4.1). Column families partition the keyspace by
// prefix rather than by a native CF feature, so any ordered byte-range KV
// engine can back it — the two concrete backends in this package
// (badger_store.go, sqlite_store.go) both implement Store the same way.
//
// Grounded on the teacher's pkg/resource/badger package: KeyEncoder's
// prefix-per-concern convention (types.go, key_encoding.go) and
// TransactionManager's batch/commit shape (transaction.go), generalized
// from a single hardwired backend into an interface two different engines
// satisfy.
package store

import "context"

// ColumnFamily names a logical partition of the keyspace. The record store
// adapter keys every operation by one of these, mirroring spec §4.1's
// "tuples / index_meta / vec_meta / catalog" column families.
type ColumnFamily string

const (
	CFTuples    ColumnFamily = "tuples"
	CFIndexMeta ColumnFamily = "index_meta"
	CFVecMeta   ColumnFamily = "vec_meta"
	CFCatalog   ColumnFamily = "catalog"
)

// IterOptions bounds an iterator to a key range within one column family.
// A nil bound is unbounded on that side.
type IterOptions struct {
	LowerBound []byte
	UpperBound []byte
	Reverse    bool
}

// Iterator walks a bounded key range in a single column family in sorted
// byte order (or reverse, per IterOptions.Reverse). Iterators are
// restartable: Seek repositions without requiring a fresh Iterator.
type Iterator interface {
	Valid() bool
	Next()
	Seek(key []byte)
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Batch stages a set of puts/deletes across column families for atomic
// application via Commit.
type Batch interface {
	Put(cf ColumnFamily, key, value []byte)
	Delete(cf ColumnFamily, key []byte)
	Commit(ctx context.Context) error
	Discard()
}

// Snapshot is a consistent, point-in-time read view independent of
// subsequent writes to the underlying Store.
type Snapshot interface {
	Get(cf ColumnFamily, key []byte) ([]byte, bool, error)
	NewIterator(cf ColumnFamily, opts IterOptions) (Iterator, error)
	Close() error
}

// Store is the record store adapter's full surface. pkg/mvcc and
// pkg/engine reach the key-value engine only through this interface;
// pkg/lmi and pkg/vectorstore persist through their own Save/Load to an
// io.Writer or files, and pkg/catalog keeps its schemas in memory only.
type Store interface {
	Get(cf ColumnFamily, key []byte) ([]byte, bool, error)
	NewBatch() Batch
	NewIterator(cf ColumnFamily, opts IterOptions) (Iterator, error)
	Snapshot() (Snapshot, error)
	Flush(ctx context.Context) error
	Sync() error
	Close() error
}
