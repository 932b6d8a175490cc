package engine

import (
	"context"

	"github.com/kasuganosora/hybridpg/pkg/errs"
	"github.com/kasuganosora/hybridpg/pkg/mvcc"
	"github.com/kasuganosora/hybridpg/pkg/store"
)

// pendingIndexOp is an index-structure mutation an in-flight Tx has
// deferred until Commit succeeds, matching the system overview's data
// flow: "the executor stages a record, MVCC assigns a version, the record
// store commits atomically, then the affected indexes are updated." LMI
// and NSW know nothing about transactions; applying their mutations only
// after a successful commit keeps an aborted write from ever becoming
// visible through either index.
type pendingIndexOp struct {
	table      string
	pk         int64
	newKey     bool // true if this PK has no existing LMI entry
	locator    []byte
	vector     []float32 // nil if the table has no vector column or this op carries none
	tombstoned bool      // true for a delete: soft-delete the vector, leave the LMI entry
}

// Tx is a snapshot-isolated transaction against one Engine. It wraps
// *mvcc.Transaction with the engine-level bookkeeping (deferred index
// mutations, table resolution) the bare MVCC layer doesn't know about.
type Tx struct {
	engine  *Engine
	mvccTx  *mvcc.Transaction
	pending []pendingIndexOp
}

// Begin starts a new transaction at the given isolation level.
func (e *Engine) Begin(level mvcc.IsolationLevel) (*Tx, error) {
	txn, err := e.mgr.Begin(level)
	if err != nil {
		return nil, err
	}
	return &Tx{engine: e, mvccTx: txn}, nil
}

// XID returns the transaction's assigned id.
func (t *Tx) XID() mvcc.XID { return t.mvccTx.XID() }

// Commit validates first-committer-wins conflicts, applies the staged
// batch atomically through the record store, and only then applies every
// deferred index mutation the transaction accumulated.
func (t *Tx) Commit() error {
	if err := t.engine.mgr.Commit(t.mvccTx); err != nil {
		return err
	}
	for _, op := range t.pending {
		ts, err := t.engine.tableState(op.table)
		if err != nil {
			// The table existed when the op was staged; a concurrent DropTable
			// racing a commit is an engine-level bug, not a recoverable
			// condition a caller can act on.
			return &errs.InternalError{Reason: "table vanished applying committed index update: " + op.table}
		}
		if err := t.engine.applyIndexOp(ts, op); err != nil {
			return err
		}
	}
	return nil
}

// Abort discards the transaction's staged writes. Deferred index
// mutations are simply dropped, never applied.
func (t *Tx) Abort() error {
	return t.engine.mgr.Rollback(t.mvccTx)
}

func (e *Engine) applyIndexOp(ts *tableState, op pendingIndexOp) error {
	ts.structMu.Lock()
	defer ts.structMu.Unlock()

	if op.tombstoned {
		if ts.vectors != nil {
			if err := ts.vectors.Delete(op.pk); err != nil {
				if _, ok := err.(*errs.VectorNotFound); !ok {
					return err
				}
			}
		}
		return nil
	}
	if op.newKey {
		if err := ts.index.Insert(op.pk, op.locator); err != nil {
			return err
		}
	}
	if ts.vectors != nil && op.vector != nil {
		if err := ts.vectors.Insert(context.Background(), op.pk, op.vector); err != nil {
			return err
		}
		e.maybeEnableQuantization(ts)
	}
	return nil
}

// quantizeSampleThreshold is the minimum live vector count before a table's
// store fits a quantizer (spec §4.6): too few samples make the per-dimension
// median threshold unstable, so fitting waits until the store holds a
// reasonably representative population.
const quantizeSampleThreshold = 256

// maybeEnableQuantization lazily fits ts.vectors' quantizer the first time
// the table crosses quantizeSampleThreshold live vectors, when the engine's
// configuration asks for quantization. It is a no-op once a quantizer is
// already fit or the table carries no vector column.
func (e *Engine) maybeEnableQuantization(ts *tableState) {
	if !e.cfg.Index.Quantize || ts.vectors == nil || ts.vectors.QuantizerReady() {
		return
	}
	if ts.vectors.Len() < quantizeSampleThreshold {
		return
	}
	_ = ts.vectors.EnableQuantization(1)
}

// Insert stages a new row under pk with the given encoded payload and
// (optionally) a vector value for the table's vector column, deferring the
// LMI/NSW updates until Commit.
func (t *Tx) Insert(table string, pk int64, payload []byte, vector []float32) error {
	ts, err := t.engine.tableState(table)
	if err != nil {
		return err
	}
	tupleKey := encodePK(pk)

	_, existed, err := ts.index.PointLookup(pk)
	if err != nil {
		return err
	}

	value := mvcc.EncodeVersionValue(mvcc.KindInsert, payload)
	versionKey := store.EncodeVersionKey(tupleKey, uint64(t.mvccTx.XID()))
	t.mvccTx.StageWrite(store.CFTuples, string(tupleKey), mvcc.NewTupleVersion(value, t.mvccTx.XID()), versionKey)

	t.pending = append(t.pending, pendingIndexOp{
		table:   table,
		pk:      pk,
		newKey:  !existed,
		locator: tupleKey,
		vector:  vector,
	})
	return nil
}

// Update stages a new version of an existing row. Per spec §4.2's
// append-only version chain, this writes a fresh version rather than
// mutating the old one; the LMI's locator (the tuple key) is unchanged, so
// no LMI mutation is needed — only the vector, if the table has one and
// this update carries a new value for it.
func (t *Tx) Update(table string, pk int64, payload []byte, vector []float32) error {
	ts, err := t.engine.tableState(table)
	if err != nil {
		return err
	}
	tupleKey := encodePK(pk)

	value := mvcc.EncodeVersionValue(mvcc.KindUpdate, payload)
	versionKey := store.EncodeVersionKey(tupleKey, uint64(t.mvccTx.XID()))
	t.mvccTx.StageWrite(store.CFTuples, string(tupleKey), mvcc.NewTupleVersion(value, t.mvccTx.XID()), versionKey)

	if vector != nil {
		t.pending = append(t.pending, pendingIndexOp{table: table, pk: pk, vector: vector})
	}
	_ = ts
	return nil
}

// Delete stages a tombstone version for pk and defers soft-deleting its
// vector (NSW has no correctness-preserving in-place delete, spec §4.5).
func (t *Tx) Delete(table string, pk int64) error {
	if _, err := t.engine.tableState(table); err != nil {
		return err
	}
	tupleKey := encodePK(pk)

	value := mvcc.EncodeVersionValue(mvcc.KindDelete, nil)
	versionKey := store.EncodeVersionKey(tupleKey, uint64(t.mvccTx.XID()))
	t.mvccTx.StageWrite(store.CFTuples, string(tupleKey), mvcc.NewTupleVersion(value, t.mvccTx.XID()), versionKey)
	t.mvccTx.StageDelete(string(tupleKey))

	t.pending = append(t.pending, pendingIndexOp{table: table, pk: pk, tombstoned: true})
	return nil
}

// Read returns the payload visible to this transaction for pk in table, or
// (nil, false) if no visible row exists.
func (t *Tx) Read(table string, pk int64) ([]byte, bool, error) {
	if _, err := t.engine.tableState(table); err != nil {
		return nil, false, err
	}
	tupleKey := encodePK(pk)
	return t.engine.mgr.Read(t.mvccTx, store.CFTuples, tupleKey)
}
