package mvcc

import (
	"sync"
	"time"

	"github.com/kasuganosora/hybridpg/pkg/store"
)

// Transaction is one snapshot-isolated unit of work. Writes are staged in
// memory (and mirrored into a store.Batch) until Commit, at which point the
// manager checks for first-committer-wins conflicts and applies the batch
// atomically.
//
// Adapted from the teacher's pkg/mvcc/transaction.go: the Command
// interface is gone (staged writes are applied via the record store's own
// Batch instead of a bespoke Apply/Rollback pair), and every Transaction
// is now reachable only through the *Manager that created it — there is
// no package-level global to look one up from.
type Transaction struct {
	mu sync.RWMutex

	xid       XID
	snapshot  *Snapshot
	status    TransactionStatus
	level     IsolationLevel
	startTime time.Time
	endTime   time.Time

	batch store.Batch

	// reads records the newest version's xmin this transaction observed
	// for each tuple key, as noted by RecordRead. The manager's
	// first-committer-wins check at commit time does not consult it; that
	// check covers written keys only.
	reads map[string]XID
	// writes/deletes record which tuple keys this transaction is staging
	// changes to.
	writes  map[string]*TupleVersion
	deletes map[string]bool
}

func newTransaction(xid XID, snapshot *Snapshot, level IsolationLevel, batch store.Batch) *Transaction {
	return &Transaction{
		xid:       xid,
		snapshot:  snapshot,
		status:    TxnStatusInProgress,
		level:     level,
		startTime: time.Now(),
		batch:     batch,
		reads:     make(map[string]XID),
		writes:    make(map[string]*TupleVersion),
		deletes:   make(map[string]bool),
	}
}

func (t *Transaction) XID() XID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.xid
}

func (t *Transaction) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}

func (t *Transaction) Status() TransactionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Transaction) Level() IsolationLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.level
}

func (t *Transaction) Age() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.startTime)
}

// RecordRead notes the xmin of the version this transaction read for key.
// Commit's conflict check does not use these entries.
func (t *Transaction) RecordRead(key string, observedXmin XID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads[key] = observedXmin
}

// StageWrite buffers a new tuple version for key, mirroring it into the
// underlying store batch under the version-key encoding.
func (t *Transaction) StageWrite(cf store.ColumnFamily, tupleKey string, version *TupleVersion, encodedVersionKey []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes[tupleKey] = version
	t.batch.Put(cf, encodedVersionKey, version.GetValue())
}

// StageDelete marks key as deleted by this transaction: Manager.Read then
// reports it absent to this transaction, and Commit includes it in the
// conflict check. It writes nothing to the batch; the tombstone version
// itself is staged separately through StageWrite with KindDelete, so
// older versions stay in place for older snapshots.
func (t *Transaction) StageDelete(tupleKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletes[tupleKey] = true
}

func (t *Transaction) writtenKeys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.writes)+len(t.deletes))
	for k := range t.writes {
		out = append(out, k)
	}
	for k := range t.deletes {
		out = append(out, k)
	}
	return out
}

func (t *Transaction) setStatus(s TransactionStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	t.endTime = time.Now()
}
