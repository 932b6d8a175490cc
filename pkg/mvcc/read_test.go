package mvcc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/hybridpg/pkg/store"
)

func stageVersion(t *testing.T, txn *Transaction, tupleKey string, kind VersionKind, payload []byte) {
	t.Helper()
	value := EncodeVersionValue(kind, payload)
	key := store.EncodeVersionKey([]byte(tupleKey), uint64(txn.XID()))
	txn.StageWrite(store.CFTuples, tupleKey, NewTupleVersion(value, txn.XID()), key)
}

func TestReadSeesOwnUncommittedWrite(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	txn, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	stageVersion(t, txn, "row-1", KindInsert, []byte("payload"))

	payload, ok, err := mgr.Read(txn, store.CFTuples, []byte("row-1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "payload", string(payload))
}

func TestReadDoesNotSeeOwnUncommittedDelete(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	txn, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	stageVersion(t, txn, "row-1", KindInsert, []byte("payload"))
	txn.StageDelete("row-1")

	_, ok, err := mgr.Read(txn, store.CFTuples, []byte("row-1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadSeesCommittedVersionFromAnotherTransaction(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	writer, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	stageVersion(t, writer, "row-2", KindInsert, []byte("alice"))
	require.NoError(t, mgr.Commit(writer))

	reader, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	payload, ok, err := mgr.Read(reader, store.CFTuples, []byte("row-2"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", string(payload))
}

func TestReadDoesNotSeeUncommittedConcurrentWrite(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	reader, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)

	writer, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	stageVersion(t, writer, "row-3", KindInsert, []byte("bob"))
	require.NoError(t, mgr.Commit(writer))

	_, ok, err := mgr.Read(reader, store.CFTuples, []byte("row-3"))
	require.NoError(t, err)
	require.False(t, ok, "reader's snapshot predates writer's commit")
}

func TestReadSeesLatestOfMultipleCommittedVersions(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	first, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	stageVersion(t, first, "row-4", KindInsert, []byte("v1"))
	require.NoError(t, mgr.Commit(first))

	second, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	stageVersion(t, second, "row-4", KindUpdate, []byte("v2"))
	require.NoError(t, mgr.Commit(second))

	reader, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	payload, ok, err := mgr.Read(reader, store.CFTuples, []byte("row-4"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(payload))
}

func TestReadReturnsFalseAfterCommittedDelete(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	inserter, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	stageVersion(t, inserter, "row-5", KindInsert, []byte("gone-soon"))
	require.NoError(t, mgr.Commit(inserter))

	deleter, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	stageVersion(t, deleter, "row-5", KindDelete, nil)
	require.NoError(t, mgr.Commit(deleter))

	reader, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	_, ok, err := mgr.Read(reader, store.CFTuples, []byte("row-5"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadReturnsFalseForUnknownKey(t *testing.T) {
	mgr, _ := newTestManager(t, Config{})

	txn, err := mgr.Begin(RepeatableRead)
	require.NoError(t, err)
	_, ok, err := mgr.Read(txn, store.CFTuples, []byte("nonexistent"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeVersionValueRejectsEmptyInput(t *testing.T) {
	_, _, err := DecodeVersionValue(nil)
	require.Error(t, err)
}

func TestEncodeDecodeVersionValueRoundTrips(t *testing.T) {
	raw := EncodeVersionValue(KindUpdate, []byte("hello"))
	kind, payload, err := DecodeVersionValue(raw)
	require.NoError(t, err)
	require.Equal(t, KindUpdate, kind)
	require.Equal(t, "hello", string(payload))
}
