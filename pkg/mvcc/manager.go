package mvcc

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/hybridpg/pkg/errs"
	"github.com/kasuganosora/hybridpg/pkg/store"
)

// Config tunes a Manager's garbage collection behavior. Adapted from the
// teacher's mysql/mvcc/manager.go Config, trimmed to the knobs this core
// still has a use for: the datasource-capability/auto-downgrade fields are
// gone along with DataSourceFeatures.
type Config struct {
	// GCInterval is how often the background loop runs. Zero disables the
	// background loop; GC can still be invoked manually.
	GCInterval time.Duration
	// ClogRetain is how many XIDs behind the current one the commit log
	// keeps entries for.
	ClogRetain uint64
	// SnapshotMaxAge reaps tracked snapshots older than this during GC, as
	// a backstop against callers that forget to release one.
	SnapshotMaxAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		GCInterval:     time.Minute,
		ClogRetain:     1_000_000,
		SnapshotMaxAge: 10 * time.Minute,
	}
}

// Manager owns one record store and issues snapshot-isolated transactions
// against it. Unlike the teacher's mysql/mvcc/manager.go, there is no
// package-level singleton: every caller constructs and holds its own
// *Manager explicitly, since a hybrid engine built on pkg/store has no
// notion of "the one global datasource" to hang a singleton off of.
type Manager struct {
	store store.Store
	cfg   Config

	xid uint64 // atomic, next XID to hand out

	mu            sync.RWMutex
	snapshots     map[XID]*Snapshot
	transactions  map[XID]*Transaction
	lastCommitted map[string]XID // tuple key -> XID of its last committed writer

	clog    *CommitLog
	checker *VisibilityChecker

	closed  bool
	gcStop  chan struct{}
	gcDone  chan struct{}
}

// NewManager creates a Manager bound to store and starts its background GC
// loop if cfg.GCInterval is nonzero.
func NewManager(st store.Store, cfg Config) *Manager {
	m := &Manager{
		store:         st,
		cfg:           cfg,
		xid:           uint64(XIDBootstrap),
		snapshots:     make(map[XID]*Snapshot),
		transactions:  make(map[XID]*Transaction),
		lastCommitted: make(map[string]XID),
		clog:          NewCommitLog(),
		checker:       NewVisibilityChecker(),
		gcStop:        make(chan struct{}),
		gcDone:        make(chan struct{}),
	}
	if cfg.GCInterval > 0 {
		go m.gcLoop()
	} else {
		close(m.gcDone)
	}
	return m
}

// Close stops the background GC loop. It does not close the underlying
// store, which the caller still owns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.gcStop)
	<-m.gcDone
	return nil
}

func (m *Manager) nextXID() XID {
	return XID(atomic.AddUint64(&m.xid, 1))
}

// CurrentXID returns the most recently issued XID.
func (m *Manager) CurrentXID() XID {
	return XID(atomic.LoadUint64(&m.xid))
}

// Begin starts a new transaction at the given isolation level, computing
// its snapshot from the set of currently in-progress transactions.
func (m *Manager) Begin(level IsolationLevel) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, &errs.InternalError{Reason: "manager closed"}
	}

	xid := m.nextXID()
	m.clog.SetStatus(xid, TxnStatusInProgress)

	xip := make([]XID, 0, len(m.transactions))
	for activeXID := range m.transactions {
		xip = append(xip, activeXID)
	}
	sort.Slice(xip, func(i, j int) bool { return xip[i] < xip[j] })

	xmin := xid
	if len(xip) > 0 {
		xmin = xip[0]
	}
	snapshot := NewSnapshot(xmin, NextXID(xid), xip, level)

	batch := m.store.NewBatch()
	txn := newTransaction(xid, snapshot, level, batch)

	m.transactions[xid] = txn
	m.snapshots[xid] = snapshot
	return txn, nil
}

// GetSnapshot returns the snapshot a still-active transaction was assigned.
func (m *Manager) GetSnapshot(xid XID) (*Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[xid]
	return s, ok
}

// Commit validates first-committer-wins conflicts against txn's write set,
// then applies its staged batch to the store. A conflict is any key txn
// wrote that another transaction has since committed a version for which
// txn's snapshot could not see — i.e. committed at or after txn's xmax, or
// by a transaction txn's snapshot recorded as in-progress.
func (m *Manager) Commit(txn *Transaction) error {
	m.mu.Lock()

	keys := txn.writtenKeys()
	for _, key := range keys {
		committedXID, ok := m.lastCommitted[key]
		if !ok {
			continue
		}
		if !committedXID.IsBefore(txn.snapshot.Xmax()) || txn.snapshot.IsActive(committedXID) {
			m.mu.Unlock()
			return &errs.ConflictError{Key: key}
		}
	}

	if err := txn.batch.Commit(context.Background()); err != nil {
		m.mu.Unlock()
		return err
	}

	for _, key := range keys {
		m.lastCommitted[key] = txn.xid
	}

	m.clog.SetStatus(txn.xid, TxnStatusCommitted)
	delete(m.transactions, txn.xid)
	delete(m.snapshots, txn.xid)
	m.mu.Unlock()

	txn.setStatus(TxnStatusCommitted)
	return nil
}

// Rollback discards txn's staged batch and marks it aborted.
func (m *Manager) Rollback(txn *Transaction) error {
	txn.batch.Discard()

	m.mu.Lock()
	m.clog.SetStatus(txn.xid, TxnStatusAborted)
	delete(m.transactions, txn.xid)
	delete(m.snapshots, txn.xid)
	m.mu.Unlock()

	txn.setStatus(TxnStatusAborted)
	return nil
}

func (m *Manager) GetCommitLog() *CommitLog { return m.clog }

func (m *Manager) GetVisibilityChecker() *VisibilityChecker { return m.checker }

// ListActiveTransactions returns the XIDs of all transactions currently in
// progress.
func (m *Manager) ListActiveTransactions() []XID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]XID, 0, len(m.transactions))
	for xid := range m.transactions {
		out = append(out, xid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) IsTransactionActive(xid XID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.transactions[xid]
	return ok
}

// Statistics summarizes the manager's live state, analogous to the
// teacher's GetStatistics.
type Statistics struct {
	CurrentXID        XID
	ActiveTxns        int
	TrackedSnapshots  int
	CommitLogEntries  int
	CommitLogOldest   XID
	LastCommittedKeys int
}

func (m *Manager) GetStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Statistics{
		CurrentXID:        m.CurrentXID(),
		ActiveTxns:        len(m.transactions),
		TrackedSnapshots:  len(m.snapshots),
		CommitLogEntries:  m.clog.GetEntryCount(),
		CommitLogOldest:   m.clog.GetOldestXID(),
		LastCommittedKeys: len(m.lastCommitted),
	}
}

// GC reclaims commit-log entries older than cfg.ClogRetain XIDs behind the
// current one and drops tracked snapshots older than cfg.SnapshotMaxAge.
func (m *Manager) GC() {
	m.clog.GC(m.CurrentXID(), m.cfg.ClogRetain)

	if m.cfg.SnapshotMaxAge <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for xid, snap := range m.snapshots {
		if _, active := m.transactions[xid]; active {
			continue
		}
		if snap.Age() > m.cfg.SnapshotMaxAge {
			delete(m.snapshots, xid)
		}
	}
}

func (m *Manager) gcLoop() {
	defer close(m.gcDone)
	ticker := time.NewTicker(m.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.gcStop:
			return
		case <-ticker.C:
			m.GC()
		}
	}
}
