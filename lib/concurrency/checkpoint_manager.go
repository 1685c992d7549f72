package concurrency

import (
	"github.com/minatodb/minatodb/lib/recovery"
	"github.com/minatodb/minatodb/lib/storage/access"
	"github.com/minatodb/minatodb/lib/storage/buffer"
)

/**
 * CheckpointManager creates consistent checkpoints by blocking all other
 * transactions temporarily, then pushing every dirty frame and the buffered
 * log to disk.
 */
type CheckpointManager struct {
	transactionManager *access.TransactionManager
	logManager         *recovery.LogManager
	bufferPoolManager  buffer.BufferPoolManager
}

func NewCheckpointManager(
	transactionManager *access.TransactionManager,
	logManager *recovery.LogManager,
	bufferPoolManager buffer.BufferPoolManager) *CheckpointManager {
	return &CheckpointManager{transactionManager, logManager, bufferPoolManager}
}

// BeginCheckpoint blocks all transactions and persists every dirty page and
// the log. Transactions stay blocked until EndCheckpoint.
func (cm *CheckpointManager) BeginCheckpoint() {
	cm.transactionManager.BlockAllTransactions()
	cm.bufferPoolManager.FlushAllDirtyPages()
	cm.logManager.Flush()
}

// EndCheckpoint allows transactions to resume, completing the checkpoint.
func (cm *CheckpointManager) EndCheckpoint() {
	cm.transactionManager.ResumeTransactions()
}
