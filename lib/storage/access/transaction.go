package access

import (
	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

/**
 * Transaction states:
 *
 *     _________________________
 *    |                         v
 * GROWING -> SHRINKING -> COMMITTED   ABORTED
 *    |__________|________________________^
 *
 **/

type TransactionState int32

const (
	GROWING TransactionState = iota
	SHRINKING
	COMMITTED
	ABORTED
)

type IsolationLevel int32

const (
	READ_UNCOMMITTED IsolationLevel = iota
	READ_COMMITTED
	REPEATABLE_READ
)

/**
 * Transaction tracks information related to a transaction.
 */
type Transaction struct {
	/** The current transaction state. */
	state TransactionState

	/** The isolation level the transaction runs under. */
	isolationLevel IsolationLevel

	/** The id of this transaction. */
	txnId types.TxnID

	/** The LSN of the last record written by the transaction. */
	prevLSN types.LSN

	/** LockManager: the set of shared-locked tuples held by this transaction. */
	sharedLockSet []page.RID
	/** LockManager: the set of exclusive-locked tuples held by this transaction. */
	exclusiveLockSet []page.RID
}

func NewTransaction(txnId types.TxnID, isolationLevel IsolationLevel) *Transaction {
	return &Transaction{
		GROWING,
		isolationLevel,
		txnId,
		common.InvalidLSN,
		make([]page.RID, 0),
		make([]page.RID, 0),
	}
}

/** @return the id of this transaction */
func (txn *Transaction) GetTransactionId() types.TxnID { return txn.txnId }

/** @return the isolation level of this transaction */
func (txn *Transaction) GetIsolationLevel() IsolationLevel { return txn.isolationLevel }

/** @return the set of resources under a shared lock */
func (txn *Transaction) GetSharedLockSet() []page.RID { return txn.sharedLockSet }

/** @return the set of resources under an exclusive lock */
func (txn *Transaction) GetExclusiveLockSet() []page.RID { return txn.exclusiveLockSet }

func (txn *Transaction) SetSharedLockSet(set []page.RID)    { txn.sharedLockSet = set }
func (txn *Transaction) SetExclusiveLockSet(set []page.RID) { txn.exclusiveLockSet = set }

func (txn *Transaction) AddIntoSharedLockSet(rid page.RID) {
	txn.sharedLockSet = append(txn.sharedLockSet, rid)
}

func (txn *Transaction) AddIntoExclusiveLockSet(rid page.RID) {
	txn.exclusiveLockSet = append(txn.exclusiveLockSet, rid)
}

func (txn *Transaction) RemoveFromSharedLockSet(rid page.RID) {
	txn.sharedLockSet = removeRID(txn.sharedLockSet, rid)
}

func (txn *Transaction) RemoveFromExclusiveLockSet(rid page.RID) {
	txn.exclusiveLockSet = removeRID(txn.exclusiveLockSet, rid)
}

func removeRID(list []page.RID, rid page.RID) []page.RID {
	for i, r := range list {
		if r == rid {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	return list
}

func isContainsRID(list []page.RID, rid page.RID) bool {
	for _, r := range list {
		if rid == r {
			return true
		}
	}
	return false
}

/** @return true if rid is shared locked by this transaction */
func (txn *Transaction) IsSharedLocked(rid *page.RID) bool {
	return isContainsRID(txn.sharedLockSet, *rid)
}

/** @return true if rid is exclusively locked by this transaction */
func (txn *Transaction) IsExclusiveLocked(rid *page.RID) bool {
	return isContainsRID(txn.exclusiveLockSet, *rid)
}

/** @return the current state of the transaction */
func (txn *Transaction) GetState() TransactionState { return txn.state }

/**
* Set the state of the transaction.
* @param state new state
 */
func (txn *Transaction) SetState(state TransactionState) {
	txn.state = state
}

/** @return the previous LSN */
func (txn *Transaction) GetPrevLSN() types.LSN { return txn.prevLSN }

/**
* Set the previous LSN.
* @param prevLSN new previous lsn
 */
func (txn *Transaction) SetPrevLSN(prevLSN types.LSN) { txn.prevLSN = prevLSN }
