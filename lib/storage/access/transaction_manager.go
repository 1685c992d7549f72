package access

import (
	"sync"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/recovery"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

/**
 * TransactionManager keeps track of all the transactions running in the
 * system. It hands out transaction ids, and on commit or abort it releases
 * every lock the transaction still holds.
 */
type TransactionManager struct {
	nextTxnId   types.TxnID
	lockManager *LockManager
	logManager  *recovery.LogManager
	/** The global transaction latch is used for checkpointing. */
	globalTxnLatch common.ReaderWriterLatch
	mutex          *sync.Mutex
}

var txnMap map[types.TxnID]*Transaction = make(map[types.TxnID]*Transaction)
var txnMapMutex = new(sync.Mutex)

// GetTransaction looks a running transaction up by id. The deadlock detector
// uses this to flip a victim to ABORTED.
func GetTransaction(txnId types.TxnID) *Transaction {
	txnMapMutex.Lock()
	defer txnMapMutex.Unlock()
	return txnMap[txnId]
}

func NewTransactionManager(lockManager *LockManager, logManager *recovery.LogManager) *TransactionManager {
	return &TransactionManager{0, lockManager, logManager, common.NewRWLatch(), new(sync.Mutex)}
}

// Begin starts a new transaction at REPEATABLE_READ
func (tm *TransactionManager) Begin() *Transaction {
	return tm.BeginWithIsolationLevel(REPEATABLE_READ)
}

// BeginWithIsolationLevel starts a new transaction at the given level
func (tm *TransactionManager) BeginWithIsolationLevel(isolationLevel IsolationLevel) *Transaction {
	// Acquire the global transaction latch in shared mode.
	tm.globalTxnLatch.RLock()

	tm.mutex.Lock()
	tm.nextTxnId += 1
	txn := NewTransaction(tm.nextTxnId, isolationLevel)
	tm.mutex.Unlock()

	txnMapMutex.Lock()
	txnMap[txn.GetTransactionId()] = txn
	txnMapMutex.Unlock()

	return txn
}

// Commit finishes the transaction and releases its remaining locks
func (tm *TransactionManager) Commit(txn *Transaction) {
	txn.SetState(COMMITTED)

	if tm.logManager.IsEnabledLogging() {
		tm.logManager.Flush()
	}

	tm.releaseLocks(txn)
	tm.dropTransaction(txn)
	// Release the global transaction latch.
	tm.globalTxnLatch.RUnlock()
}

// Abort rolls the transaction back and releases its remaining locks. Undo of
// data changes is driven by the callers owning the write sets; restoring
// dirty pages is not the lock manager's concern.
func (tm *TransactionManager) Abort(txn *Transaction) {
	txn.SetState(ABORTED)

	tm.releaseLocks(txn)
	tm.dropTransaction(txn)
	// Release the global transaction latch.
	tm.globalTxnLatch.RUnlock()
}

// BlockAllTransactions stops new transactions from starting, for a checkpoint
func (tm *TransactionManager) BlockAllTransactions() {
	tm.globalTxnLatch.WLock()
}

// ResumeTransactions reopens the gate closed by BlockAllTransactions
func (tm *TransactionManager) ResumeTransactions() {
	tm.globalTxnLatch.WUnlock()
}

func (tm *TransactionManager) releaseLocks(txn *Transaction) {
	lockSet := make([]page.RID, 0)
	lockSet = append(lockSet, txn.GetExclusiveLockSet()...)
	lockSet = append(lockSet, txn.GetSharedLockSet()...)
	for _, lockedRid := range lockSet {
		rid := lockedRid
		tm.lockManager.Unlock(txn, &rid)
	}
}

func (tm *TransactionManager) dropTransaction(txn *Transaction) {
	txnMapMutex.Lock()
	delete(txnMap, txn.GetTransactionId())
	txnMapMutex.Unlock()
}
