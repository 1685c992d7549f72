package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minatodb/minatodb/lib/config"
	"github.com/minatodb/minatodb/lib/storage/index/index_common"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

func newTestEngine(t *testing.T) *StorageEngine {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.UseVirtualStorage = true
	cfg.PoolSize = 16
	cfg.PoolInstances = 2

	se, err := NewStorageEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(se.Shutdown)
	return se
}

func TestEngineBootAndIndex(t *testing.T) {
	se := newTestEngine(t)

	tree := se.OpenIndex("accounts_pk", index_common.IntegerKeyComparator)
	require.NotNil(t, tree)

	for i := int64(1); i <= 100; i++ {
		rid := page.RID{PageId: types.PageID(int32(i)), SlotNum: uint32(i)}
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), rid))
	}
	for i := int64(1); i <= 100; i++ {
		rids, found := tree.GetValue(index_common.NewIntegerKey(i))
		require.True(t, found)
		assert.Equal(t, uint32(i), rids[0].GetSlotNum())
	}

	// the same name returns the same index handle
	again := se.OpenIndex("accounts_pk", index_common.IntegerKeyComparator)
	assert.Equal(t, tree, again)
}

func TestEngineTransactionsAndLocks(t *testing.T) {
	se := newTestEngine(t)

	txnManager := se.GetTransactionManager()
	lockManager := se.GetLockManager()

	txn := txnManager.Begin()
	rid := page.RID{PageId: 1, SlotNum: 1}
	require.NoError(t, lockManager.LockExclusive(txn, &rid))
	txnManager.Commit(txn)

	txn2 := txnManager.Begin()
	require.NoError(t, lockManager.LockExclusive(txn2, &rid))
	txnManager.Commit(txn2)
}

func TestEngineCheckpoint(t *testing.T) {
	se := newTestEngine(t)

	tree := se.OpenIndex("events_pk", index_common.IntegerKeyComparator)
	for i := int64(1); i <= 50; i++ {
		rid := page.RID{PageId: types.PageID(int32(i)), SlotNum: uint32(i)}
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), rid))
	}

	checkpointManager := se.GetCheckpointManager()
	checkpointManager.BeginCheckpoint()
	checkpointManager.EndCheckpoint()

	// data remains visible after the checkpoint
	rids, found := tree.GetValue(index_common.NewIntegerKey(25))
	require.True(t, found)
	assert.Equal(t, uint32(25), rids[0].GetSlotNum())
}
