package store

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// BadgerStore is the primary Store backend, grounded on the teacher's
// BadgerDataSource (pkg/resource/badger/datasource.go): same
// badger.Open/options wiring, same reliance on badger.Txn for both atomic
// batches and consistent snapshots, generalized from the teacher's
// row/index/table key scheme to this package's column-family prefixing.
type BadgerStore struct {
	db *badger.DB
}

// BadgerConfig mirrors the teacher's DataSourceConfig subset this core
// actually exercises.
type BadgerConfig struct {
	DataDir        string
	InMemory       bool
	SyncWrites     bool
	ValueThreshold int64
}

// DefaultBadgerConfig returns sane defaults for an on-disk store.
func DefaultBadgerConfig(dataDir string) BadgerConfig {
	return BadgerConfig{
		DataDir:        dataDir,
		InMemory:       false,
		SyncWrites:     false,
		ValueThreshold: 1 << 10,
	}
}

// OpenBadgerStore opens (creating if absent) a Badger-backed Store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.DataDir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithValueThreshold(cfg.ValueThreshold).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &errs.IoError{Cause: err}
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(cf ColumnFamily, key []byte) ([]byte, bool, error) {
	k := EncodeCFKey(cf, key)
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, &errs.IoError{Cause: err}
	}
	return out, out != nil, nil
}

func (s *BadgerStore) NewBatch() Batch {
	return &badgerBatch{txn: s.db.NewTransaction(true)}
}

func (s *BadgerStore) NewIterator(cf ColumnFamily, opts IterOptions) (Iterator, error) {
	txn := s.db.NewTransaction(false)
	return newBadgerIterator(txn, cf, opts, true), nil
}

func (s *BadgerStore) Snapshot() (Snapshot, error) {
	return &badgerSnapshot{txn: s.db.NewTransaction(false)}, nil
}

func (s *BadgerStore) Flush(ctx context.Context) error {
	return nil // Badger has no explicit memtable flush hook exposed publicly.
}

func (s *BadgerStore) Sync() error {
	if err := s.db.Sync(); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

type badgerBatch struct {
	txn *badger.Txn
	err error
}

func (b *badgerBatch) Put(cf ColumnFamily, key, value []byte) {
	if b.err != nil {
		return
	}
	if err := b.txn.Set(EncodeCFKey(cf, key), value); err != nil {
		// badger.Txn conflicts/ErrTxnTooBig: the first error is kept, later
		// Put/Delete calls are ignored, and Commit reports it as an
		// IoError; the batch is not retried or split.
		b.err = err
	}
}

func (b *badgerBatch) Delete(cf ColumnFamily, key []byte) {
	if b.err != nil {
		return
	}
	if err := b.txn.Delete(EncodeCFKey(cf, key)); err != nil {
		b.err = err
	}
}

func (b *badgerBatch) Commit(ctx context.Context) error {
	defer b.txn.Discard()
	if b.err != nil {
		return &errs.IoError{Cause: b.err}
	}
	if err := b.txn.Commit(); err != nil {
		if err == badger.ErrConflict {
			return &errs.ConflictError{}
		}
		return &errs.IoError{Cause: err}
	}
	return nil
}

func (b *badgerBatch) Discard() {
	b.txn.Discard()
}

type badgerSnapshot struct {
	txn *badger.Txn
}

func (s *badgerSnapshot) Get(cf ColumnFamily, key []byte) ([]byte, bool, error) {
	item, err := s.txn.Get(EncodeCFKey(cf, key))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &errs.IoError{Cause: err}
	}
	var out []byte
	err = item.Value(func(val []byte) error {
		out = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, false, &errs.IoError{Cause: err}
	}
	return out, true, nil
}

func (s *badgerSnapshot) NewIterator(cf ColumnFamily, opts IterOptions) (Iterator, error) {
	return newBadgerIterator(s.txn, cf, opts, false), nil
}

func (s *badgerSnapshot) Close() error {
	s.txn.Discard()
	return nil
}

type badgerIterator struct {
	txn       *badger.Txn
	it        *badger.Iterator
	cf        ColumnFamily
	prefix    []byte
	lower     []byte
	upper     []byte
	reverse   bool
	ownsTxn   bool
	err       error
	started   bool
}

func newBadgerIterator(txn *badger.Txn, cf ColumnFamily, opts IterOptions, ownsTxn bool) *badgerIterator {
	badgerOpts := badger.DefaultIteratorOptions
	badgerOpts.Reverse = opts.Reverse
	prefix := CFPrefix(cf)

	bi := &badgerIterator{
		txn:     txn,
		it:      txn.NewIterator(badgerOpts),
		cf:      cf,
		prefix:  prefix,
		reverse: opts.Reverse,
		ownsTxn: ownsTxn,
	}
	if opts.LowerBound != nil {
		bi.lower = EncodeCFKey(cf, opts.LowerBound)
	} else {
		bi.lower = prefix
	}
	if opts.UpperBound != nil {
		bi.upper = EncodeCFKey(cf, opts.UpperBound)
	} else {
		bi.upper = prefixUpperBound(prefix)
	}

	seekKey := bi.lower
	if opts.Reverse {
		if bi.upper != nil {
			seekKey = bi.upper
		} else {
			seekKey = append(append([]byte{}, prefix...), 0xff)
		}
	}
	bi.it.Seek(seekKey)
	bi.started = true
	return bi
}

func (it *badgerIterator) Valid() bool {
	if !it.it.ValidForPrefix(it.prefix) {
		return false
	}
	k := it.it.Item().Key()
	if !it.reverse && it.upper != nil && bytesCompare(k, it.upper) >= 0 {
		return false
	}
	if it.reverse && bytesCompare(k, it.lower) < 0 {
		return false
	}
	return true
}

func (it *badgerIterator) Next() { it.it.Next() }

func (it *badgerIterator) Seek(key []byte) {
	it.it.Seek(EncodeCFKey(it.cf, key))
}

func (it *badgerIterator) Key() []byte {
	k := it.it.Item().KeyCopy(nil)
	return k[len(it.prefix):]
}

func (it *badgerIterator) Value() []byte {
	var out []byte
	it.err = it.it.Item().Value(func(val []byte) error {
		out = append([]byte{}, val...)
		return nil
	})
	return out
}

func (it *badgerIterator) Error() error {
	if it.err != nil {
		return &errs.IoError{Cause: it.err}
	}
	return nil
}

func (it *badgerIterator) Close() error {
	it.it.Close()
	if it.ownsTxn {
		it.txn.Discard()
	}
	return nil
}

func bytesCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
