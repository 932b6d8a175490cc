package store

import (
	"bytes"
	"context"
	"database/sql"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// SQLiteStore is the second Store backend, proving the record store
// adapter is genuinely engine-agnostic rather than Badger-specific. There
// is no teacher analogue for an embedded-SQL-as-KV backend; it follows the
// same prefix-partitioned single-table layout the other example repos in
// the retrieval pack use when wrapping a relational engine as a generic
// key-value surface, keyed on (column_family, key) with SQLite's default
// byte-wise BLOB collation giving the same ordering guarantee Badger's LSM
// provides natively.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed Store at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &errs.IoError{Cause: err}
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite connections are not safely shareable for writes
	const schema = `CREATE TABLE IF NOT EXISTS kv (
		cf TEXT NOT NULL,
		key BLOB NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (cf, key)
	) WITHOUT ROWID;`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &errs.IoError{Cause: err}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(cf ColumnFamily, key []byte) ([]byte, bool, error) {
	return sqliteGet(s.db, cf, key)
}

func sqliteGet(q querier, cf ColumnFamily, key []byte) ([]byte, bool, error) {
	var value []byte
	err := q.QueryRow(`SELECT value FROM kv WHERE cf = ? AND key = ?`, string(cf), key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &errs.IoError{Cause: err}
	}
	return value, true, nil
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) NewBatch() Batch {
	return &sqliteBatch{db: s.db}
}

func (s *SQLiteStore) NewIterator(cf ColumnFamily, opts IterOptions) (Iterator, error) {
	return sqliteIterate(s.db, cf, opts)
}

func (s *SQLiteStore) Snapshot() (Snapshot, error) {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, &errs.IoError{Cause: err}
	}
	return &sqliteSnapshot{tx: tx}, nil
}

func (s *SQLiteStore) Flush(ctx context.Context) error { return nil }

func (s *SQLiteStore) Sync() error {
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(FULL);`); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

type sqliteOp struct {
	del   bool
	cf    ColumnFamily
	key   []byte
	value []byte
}

type sqliteBatch struct {
	db  *sql.DB
	ops []sqliteOp
}

func (b *sqliteBatch) Put(cf ColumnFamily, key, value []byte) {
	b.ops = append(b.ops, sqliteOp{cf: cf, key: key, value: value})
}

func (b *sqliteBatch) Delete(cf ColumnFamily, key []byte) {
	b.ops = append(b.ops, sqliteOp{del: true, cf: cf, key: key})
}

func (b *sqliteBatch) Commit(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.IoError{Cause: err}
	}
	for _, op := range b.ops {
		if op.del {
			if _, err := tx.Exec(`DELETE FROM kv WHERE cf = ? AND key = ?`, string(op.cf), op.key); err != nil {
				tx.Rollback()
				return &errs.IoError{Cause: err}
			}
			continue
		}
		if _, err := tx.Exec(`INSERT INTO kv (cf, key, value) VALUES (?, ?, ?)
			ON CONFLICT(cf, key) DO UPDATE SET value = excluded.value`,
			string(op.cf), op.key, op.value); err != nil {
			tx.Rollback()
			return &errs.IoError{Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

func (b *sqliteBatch) Discard() {
	b.ops = nil
}

type sqliteSnapshot struct {
	tx *sql.Tx
}

func (s *sqliteSnapshot) Get(cf ColumnFamily, key []byte) ([]byte, bool, error) {
	return sqliteGet(s.tx, cf, key)
}

func (s *sqliteSnapshot) NewIterator(cf ColumnFamily, opts IterOptions) (Iterator, error) {
	return sqliteIterate(s.tx, cf, opts)
}

func (s *sqliteSnapshot) Close() error {
	return s.tx.Rollback()
}

// sqliteIterator buffers the matching rows up front: modernc.org/sqlite's
// database/sql cursor doesn't expose a reusable Seek primitive, so the
// iterator re-positions by binary search over an in-memory, already-sorted
// copy instead of re-querying per Seek call.
type sqliteIterator struct {
	rows    []kvRow
	pos     int
	reverse bool
}

type kvRow struct {
	key   []byte
	value []byte
}

func sqliteIterate(q querier, cf ColumnFamily, opts IterOptions) (Iterator, error) {
	order := "ASC"
	if opts.Reverse {
		order = "DESC"
	}
	query := `SELECT key, value FROM kv WHERE cf = ?`
	args := []any{string(cf)}
	if opts.LowerBound != nil {
		query += ` AND key >= ?`
		args = append(args, opts.LowerBound)
	}
	if opts.UpperBound != nil {
		query += ` AND key < ?`
		args = append(args, opts.UpperBound)
	}
	query += ` ORDER BY key ` + order

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, &errs.IoError{Cause: err}
	}
	defer rows.Close()

	var out []kvRow
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, &errs.IoError{Cause: err}
		}
		out = append(out, kvRow{key: k, value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.IoError{Cause: err}
	}

	return &sqliteIterator{rows: out, pos: 0, reverse: opts.Reverse}, nil
}

func (it *sqliteIterator) Valid() bool { return it.pos >= 0 && it.pos < len(it.rows) }
func (it *sqliteIterator) Next()       { it.pos++ }

func (it *sqliteIterator) Seek(key []byte) {
	if it.reverse {
		it.pos = sort.Search(len(it.rows), func(i int) bool { return bytes.Compare(it.rows[i].key, key) <= 0 })
		return
	}
	it.pos = sort.Search(len(it.rows), func(i int) bool { return bytes.Compare(it.rows[i].key, key) >= 0 })
}

func (it *sqliteIterator) Key() []byte   { return it.rows[it.pos].key }
func (it *sqliteIterator) Value() []byte { return it.rows[it.pos].value }
func (it *sqliteIterator) Error() error  { return nil }
func (it *sqliteIterator) Close() error  { return nil }
