package access

import (
	"fmt"

	"github.com/minatodb/minatodb/lib/types"
)

// AbortReason tells the caller why the lock manager killed its transaction.
type AbortReason int32

const (
	LOCK_ON_SHRINKING AbortReason = iota
	LOCKSHARED_ON_READ_UNCOMMITTED
	UPGRADE_CONFLICT
	DEADLOCK
)

func (reason AbortReason) String() string {
	switch reason {
	case LOCK_ON_SHRINKING:
		return "LOCK_ON_SHRINKING"
	case LOCKSHARED_ON_READ_UNCOMMITTED:
		return "LOCKSHARED_ON_READ_UNCOMMITTED"
	case UPGRADE_CONFLICT:
		return "UPGRADE_CONFLICT"
	case DEADLOCK:
		return "DEADLOCK"
	}
	return "UNKNOWN"
}

// TransactionAbortException is the typed failure a lock request surfaces when
// it transitioned its transaction to ABORTED.
type TransactionAbortException struct {
	txnId       types.TxnID
	abortReason AbortReason
}

func NewTransactionAbortException(txnId types.TxnID, abortReason AbortReason) *TransactionAbortException {
	return &TransactionAbortException{txnId, abortReason}
}

func (e *TransactionAbortException) Error() string {
	return fmt.Sprintf("transaction %d aborted: %s", e.txnId, e.abortReason)
}

func (e *TransactionAbortException) GetTransactionId() types.TxnID { return e.txnId }

func (e *TransactionAbortException) GetAbortReason() AbortReason { return e.abortReason }
