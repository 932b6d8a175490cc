package mvcc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/hybridpg/pkg/store"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, store.Store) {
	t.Helper()
	st, err := store.OpenBadgerStore(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mgr := NewManager(st, cfg)
	t.Cleanup(func() { mgr.Close() })
	return mgr, st
}

func TestBeginAssignsIncreasingXIDs(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	txn1, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	txn2, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)

	require.True(t, txn1.XID().IsBefore(txn2.XID()))
	require.Equal(t, TxnStatusInProgress, txn1.Status())
}

func TestCommitAppliesBatchAndRemovesFromActiveSet(t *testing.T) {
	mgr, st := newTestManager(t, Config{})

	txn, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	require.True(t, mgr.IsTransactionActive(txn.XID()))

	version := NewTupleVersion([]byte("alice"), txn.XID())
	key := store.EncodeVersionKey([]byte("row-1"), uint64(txn.XID()))
	txn.StageWrite(store.CFTuples, "row-1", version, key)

	require.NoError(t, mgr.Commit(txn))
	require.Equal(t, TxnStatusCommitted, txn.Status())
	require.False(t, mgr.IsTransactionActive(txn.XID()))

	got, ok, err := st.Get(store.CFTuples, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", string(got))
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	mgr, st := newTestManager(t, Config{})

	txn, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)

	version := NewTupleVersion([]byte("bob"), txn.XID())
	key := store.EncodeVersionKey([]byte("row-2"), uint64(txn.XID()))
	txn.StageWrite(store.CFTuples, "row-2", version, key)

	require.NoError(t, mgr.Rollback(txn))
	require.Equal(t, TxnStatusAborted, txn.Status())
	require.False(t, mgr.IsTransactionActive(txn.XID()))

	_, ok, err := st.Get(store.CFTuples, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitDetectsFirstCommitterWinsConflict(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	txnA, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	txnB, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)

	keyA := store.EncodeVersionKey([]byte("row-3"), uint64(txnA.XID()))
	txnA.StageWrite(store.CFTuples, "row-3", NewTupleVersion([]byte("from-a"), txnA.XID()), keyA)
	require.NoError(t, mgr.Commit(txnA))

	keyB := store.EncodeVersionKey([]byte("row-3"), uint64(txnB.XID()))
	txnB.StageWrite(store.CFTuples, "row-3", NewTupleVersion([]byte("from-b"), txnB.XID()), keyB)

	err = mgr.Commit(txnB)
	require.Error(t, err)
}

func TestCommitAllowsDisjointWrites(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	txnA, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	txnB, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)

	keyA := store.EncodeVersionKey([]byte("row-a"), uint64(txnA.XID()))
	txnA.StageWrite(store.CFTuples, "row-a", NewTupleVersion([]byte("a"), txnA.XID()), keyA)
	require.NoError(t, mgr.Commit(txnA))

	keyB := store.EncodeVersionKey([]byte("row-b"), uint64(txnB.XID()))
	txnB.StageWrite(store.CFTuples, "row-b", NewTupleVersion([]byte("b"), txnB.XID()), keyB)
	require.NoError(t, mgr.Commit(txnB))
}

func TestSnapshotDoesNotSeeLaterTransactionAsActive(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	txn1, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)

	_, err = mgr.Begin(RepeatableRead)
	require.NoError(t, err)

	require.Empty(t, txn1.Snapshot().Xip())
}

func TestCloseIsIdempotentAndRejectsNewTransactions(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})
	require.NoError(t, mgr.Close())
	require.NoError(t, mgr.Close())

	_, err := mgr.Begin(RepeatableRead)
	require.Error(t, err)
}

func TestGCReclaimsOldCommitLogEntries(t *testing.T) {
	mgr, _ := newTestManager(t, Config{ClogRetain: 2})

	var last *Transaction
	for i := 0; i < 5; i++ {
		txn, err := mgr.Begin(RepeatableRead)
		require.NoError(t, err)
		require.NoError(t, mgr.Commit(txn))
		last = txn
	}

	mgr.GC()
	_, stillTracked := mgr.GetCommitLog().GetStatus(XIDBootstrap + 1)
	require.False(t, stillTracked)

	status, ok := mgr.GetCommitLog().GetStatus(last.XID())
	require.True(t, ok)
	require.Equal(t, TxnStatusCommitted, status)
}

func TestGCReapsAgedSnapshots(t *testing.T) {
	mgr, _ := newTestManager(t, Config{SnapshotMaxAge: time.Millisecond})

	txn, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, mgr.Commit(txn))

	time.Sleep(5 * time.Millisecond)
	mgr.GC()

	_, ok := mgr.GetSnapshot(txn.XID())
	require.False(t, ok)
}

func TestConcurrentBeginAndCommit(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			txn, err := mgr.Begin(RepeatableRead)
			if err != nil {
				done <- err
				return
			}
			done <- mgr.Commit(txn)
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}

	stats := mgr.GetStatistics()
	require.Equal(t, 0, stats.ActiveTxns)
}

func TestListActiveTransactionsReflectsOpenTxns(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	txn1, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	txn2, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)

	active := mgr.ListActiveTransactions()
	require.Len(t, active, 2)
	require.Contains(t, active, txn1.XID())
	require.Contains(t, active, txn2.XID())

	require.NoError(t, mgr.Commit(txn1))
	require.Equal(t, []XID{txn2.XID()}, mgr.ListActiveTransactions())
}
