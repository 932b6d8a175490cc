package mvcc

import "github.com/kasuganosora/hybridpg/pkg/store"

// Read implements spec §4.2's `read(cf, key) → Option<Payload>`: the
// newest version of tupleKey visible under txn's snapshot, preferring
// txn's own uncommitted write/delete over whatever is already durable in
// the record store. Committed versions are found by scanning the
// version-key chain newest-first (store.EncodeVersionKey orders that way)
// and returning the first one whose creating XID is visible.
//
// Only committed transactions ever write through to the store (Manager.Commit
// is the sole path that calls batch.Commit; Rollback discards the batch
// unapplied), so every version this scan observes was created by a
// transaction the commit log would report committed — there is no need to
// separately consult the commit log here.
func (m *Manager) Read(txn *Transaction, cf store.ColumnFamily, tupleKey []byte) ([]byte, bool, error) {
	key := string(tupleKey)

	txn.mu.RLock()
	if txn.deletes[key] {
		txn.mu.RUnlock()
		return nil, false, nil
	}
	if v, ok := txn.writes[key]; ok {
		txn.mu.RUnlock()
		kind, payload, err := DecodeVersionValue(v.GetValue())
		if err != nil {
			return nil, false, err
		}
		if kind == KindDelete {
			return nil, false, nil
		}
		return payload, true, nil
	}
	txn.mu.RUnlock()

	it, err := m.store.NewIterator(cf, store.IterOptions{
		LowerBound: store.VersionKeyPrefix(tupleKey),
		UpperBound: nil,
	})
	if err != nil {
		return nil, false, err
	}
	defer it.Close()

	snapshot := txn.Snapshot()
	prefix := store.VersionKeyPrefix(tupleKey)
	for ; it.Valid(); it.Next() {
		vKey := it.Key()
		if !hasPrefix(vKey, prefix) {
			break
		}
		_, xid := store.DecodeVersionKey(vKey)
		w := XID(xid)
		if !versionVisible(w, snapshot) {
			continue
		}
		raw := it.Value()
		if err := it.Error(); err != nil {
			return nil, false, err
		}
		kind, payload, err := DecodeVersionValue(raw)
		if err != nil {
			return nil, false, err
		}
		if kind == KindDelete {
			return nil, false, nil
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, true, nil
	}
	return nil, false, nil
}

// versionVisible implements the snapshot half of spec §4.2's visibility
// rule (w <= r.read_txid && w not in r.active_at_begin); the "w committed"
// conjunct is guaranteed structurally, see Read's doc comment.
func versionVisible(w XID, snapshot *Snapshot) bool {
	if snapshot.IsActive(w) {
		return false
	}
	return w < snapshot.Xmax()
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
