package access

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/recovery"
	"github.com/minatodb/minatodb/lib/storage/disk"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

func newTestManagers() (*LockManager, *TransactionManager) {
	lockManager := NewLockManager()
	dm := disk.NewDiskManagerTest()
	txnManager := NewTransactionManager(lockManager, recovery.NewLogManager(dm))
	return lockManager, txnManager
}

func TestSharedLockBasic(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn1 := txnManager.Begin()
	txn2 := txnManager.Begin()
	rid := page.RID{PageId: 1, SlotNum: 0}

	// two sharers coexist
	require.NoError(t, lockManager.LockShared(txn1, &rid))
	require.NoError(t, lockManager.LockShared(txn2, &rid))
	assert.True(t, txn1.IsSharedLocked(&rid))
	assert.True(t, txn2.IsSharedLocked(&rid))

	// re-requesting a held lock is a no-op
	require.NoError(t, lockManager.LockShared(txn1, &rid))

	txnManager.Commit(txn1)
	txnManager.Commit(txn2)
	assert.False(t, txn1.IsSharedLocked(&rid))
}

func TestExclusiveLockConflict(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn1 := txnManager.Begin()
	txn2 := txnManager.Begin()
	rid := page.RID{PageId: 1, SlotNum: 1}

	require.NoError(t, lockManager.LockExclusive(txn1, &rid))

	granted := make(chan struct{})
	go func() {
		assert.NoError(t, lockManager.LockExclusive(txn2, &rid))
		close(granted)
	}()

	select {
	case <-granted:
		t.Fatal("the second exclusive lock must block while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	txnManager.Commit(txn1)

	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("the blocked exclusive lock must be granted after the unlock")
	}
	txnManager.Commit(txn2)
}

func TestSharedExclusiveFIFO(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn1 := txnManager.Begin()
	txn2 := txnManager.Begin()
	txn3 := txnManager.Begin()
	rid := page.RID{PageId: 2, SlotNum: 0}

	// T1 holds S
	require.NoError(t, lockManager.LockShared(txn1, &rid))

	var mu sync.Mutex
	grantOrder := make([]types.TxnID, 0)
	record := func(id types.TxnID) {
		mu.Lock()
		grantOrder = append(grantOrder, id)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// T2 requests X, blocks behind T1's S
		assert.NoError(t, lockManager.LockExclusive(txn2, &rid))
		record(txn2.GetTransactionId())
		time.Sleep(20 * time.Millisecond)
		lockManager.Unlock(txn2, &rid)
	}()

	// let T2 enqueue first
	time.Sleep(50 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		// T3 requests S, must not bypass the queued X of T2
		assert.NoError(t, lockManager.LockShared(txn3, &rid))
		record(txn3.GetTransactionId())
		lockManager.Unlock(txn3, &rid)
	}()

	// let T3 enqueue behind T2
	time.Sleep(50 * time.Millisecond)

	lockManager.Unlock(txn1, &rid)
	wg.Wait()

	require.Len(t, grantOrder, 2)
	assert.Equal(t, txn2.GetTransactionId(), grantOrder[0], "the earlier queued X goes first")
	assert.Equal(t, txn3.GetTransactionId(), grantOrder[1])
}

func TestLockOnShrinking(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn := txnManager.Begin()
	rid1 := page.RID{PageId: 3, SlotNum: 0}
	rid2 := page.RID{PageId: 3, SlotNum: 1}

	require.NoError(t, lockManager.LockShared(txn, &rid1))
	// first unlock under REPEATABLE_READ drives GROWING -> SHRINKING
	require.True(t, lockManager.Unlock(txn, &rid1))
	assert.Equal(t, SHRINKING, txn.GetState())

	err := lockManager.LockShared(txn, &rid2)
	require.Error(t, err)
	abortErr, ok := err.(*TransactionAbortException)
	require.True(t, ok)
	assert.Equal(t, LOCK_ON_SHRINKING, abortErr.GetAbortReason())
	assert.Equal(t, ABORTED, txn.GetState())
}

func TestLockSharedOnReadUncommitted(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn := txnManager.BeginWithIsolationLevel(READ_UNCOMMITTED)
	rid := page.RID{PageId: 4, SlotNum: 0}

	err := lockManager.LockShared(txn, &rid)
	require.Error(t, err)
	abortErr, ok := err.(*TransactionAbortException)
	require.True(t, ok)
	assert.Equal(t, LOCKSHARED_ON_READ_UNCOMMITTED, abortErr.GetAbortReason())
	assert.Equal(t, ABORTED, txn.GetState())

	// writers still take X under READ_UNCOMMITTED
	txn2 := txnManager.BeginWithIsolationLevel(READ_UNCOMMITTED)
	require.NoError(t, lockManager.LockExclusive(txn2, &rid))
	txnManager.Commit(txn2)
}

func TestReadCommittedUnlockKeepsGrowing(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn := txnManager.BeginWithIsolationLevel(READ_COMMITTED)
	rid1 := page.RID{PageId: 5, SlotNum: 0}
	rid2 := page.RID{PageId: 5, SlotNum: 1}

	// READ_COMMITTED releases shared locks right after the read without
	// entering SHRINKING, so later locks stay legal
	require.NoError(t, lockManager.LockShared(txn, &rid1))
	require.True(t, lockManager.Unlock(txn, &rid1))
	assert.Equal(t, GROWING, txn.GetState())

	require.NoError(t, lockManager.LockExclusive(txn, &rid2))
	txnManager.Commit(txn)
}

func TestLockUpgradeSoleHolder(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn := txnManager.Begin()
	rid := page.RID{PageId: 6, SlotNum: 0}

	require.NoError(t, lockManager.LockShared(txn, &rid))
	require.NoError(t, lockManager.LockUpgrade(txn, &rid))
	assert.False(t, txn.IsSharedLocked(&rid))
	assert.True(t, txn.IsExclusiveLocked(&rid))
	txnManager.Commit(txn)
}

func TestLockUpgradeWaitsForOtherSharer(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn1 := txnManager.Begin()
	txn2 := txnManager.Begin()
	rid := page.RID{PageId: 6, SlotNum: 1}

	require.NoError(t, lockManager.LockShared(txn1, &rid))
	require.NoError(t, lockManager.LockShared(txn2, &rid))

	upgraded := make(chan struct{})
	go func() {
		assert.NoError(t, lockManager.LockUpgrade(txn1, &rid))
		close(upgraded)
	}()

	select {
	case <-upgraded:
		t.Fatal("upgrade must wait until the other sharer releases")
	case <-time.After(50 * time.Millisecond):
	}

	lockManager.Unlock(txn2, &rid)

	select {
	case <-upgraded:
	case <-time.After(time.Second):
		t.Fatal("upgrade must be granted once the transaction is the sole holder")
	}
	assert.True(t, txn1.IsExclusiveLocked(&rid))
	txnManager.Commit(txn1)
}

func TestUpgradeConflict(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn1 := txnManager.Begin()
	txn2 := txnManager.Begin()
	rid := page.RID{PageId: 7, SlotNum: 0}

	require.NoError(t, lockManager.LockShared(txn1, &rid))
	require.NoError(t, lockManager.LockShared(txn2, &rid))

	firstUpgradeDone := make(chan struct{})
	go func() {
		assert.NoError(t, lockManager.LockUpgrade(txn1, &rid))
		close(firstUpgradeDone)
	}()

	// wait until the first upgrade is pending
	time.Sleep(50 * time.Millisecond)

	err := lockManager.LockUpgrade(txn2, &rid)
	require.Error(t, err)
	abortErr, ok := err.(*TransactionAbortException)
	require.True(t, ok)
	assert.Equal(t, UPGRADE_CONFLICT, abortErr.GetAbortReason())
	assert.Equal(t, ABORTED, txn2.GetState())

	// aborting the second sharer lets the pending upgrade through
	txnManager.Abort(txn2)

	select {
	case <-firstUpgradeDone:
	case <-time.After(time.Second):
		t.Fatal("the pending upgrade must be granted after the conflicting sharer aborts")
	}
	txnManager.Commit(txn1)
}

func TestDeadlockDetectionAbortsYoungest(t *testing.T) {
	oldInterval := common.CycleDetectionInterval
	common.CycleDetectionInterval = 10 * time.Millisecond
	defer func() { common.CycleDetectionInterval = oldInterval }()

	lockManager, txnManager := newTestManagers()
	lockManager.StartCycleDetection()
	defer lockManager.StopCycleDetection()

	txn1 := txnManager.Begin()
	txn2 := txnManager.Begin()
	ridA := page.RID{PageId: 8, SlotNum: 0}
	ridB := page.RID{PageId: 8, SlotNum: 1}

	require.NoError(t, lockManager.LockExclusive(txn1, &ridA))
	require.NoError(t, lockManager.LockExclusive(txn2, &ridB))

	var wg sync.WaitGroup
	var err1, err2 error

	wg.Add(2)
	go func() {
		defer wg.Done()
		err1 = lockManager.LockExclusive(txn1, &ridB)
	}()
	go func() {
		defer wg.Done()
		// give T1 a moment to block first so both edges of the cycle exist
		time.Sleep(30 * time.Millisecond)
		err2 = lockManager.LockExclusive(txn2, &ridA)
		if err2 != nil {
			// rolling the victim back releases its lock on B and unblocks T1
			txnManager.Abort(txn2)
		}
	}()
	wg.Wait()

	// the victim is the youngest transaction of the cycle
	require.Error(t, err2)
	abortErr, ok := err2.(*TransactionAbortException)
	require.True(t, ok)
	assert.Equal(t, DEADLOCK, abortErr.GetAbortReason())
	assert.Equal(t, ABORTED, txn2.GetState())

	// the survivor got its lock and commits
	require.NoError(t, err1)
	assert.True(t, txn1.IsExclusiveLocked(&ridB))
	txnManager.Commit(txn1)
	assert.Equal(t, COMMITTED, txn1.GetState())
}

func TestGraphAPI(t *testing.T) {
	lockManager, _ := newTestManagers()

	lockManager.AddEdge(1, 2)
	lockManager.AddEdge(2, 3)
	// duplicate edges collapse
	lockManager.AddEdge(1, 2)
	assert.Len(t, lockManager.GetEdgeList(), 2)

	var victim types.TxnID
	assert.False(t, lockManager.HasCycle(&victim))

	lockManager.AddEdge(3, 1)
	require.True(t, lockManager.HasCycle(&victim))
	// the victim is the largest transaction id on the cycle
	assert.Equal(t, types.TxnID(3), victim)

	lockManager.RemoveEdge(3, 1)
	assert.False(t, lockManager.HasCycle(&victim))
	assert.Len(t, lockManager.GetEdgeList(), 2)
}

func TestUnlockWithoutHold(t *testing.T) {
	lockManager, txnManager := newTestManagers()

	txn := txnManager.Begin()
	rid := page.RID{PageId: 9, SlotNum: 0}

	// reported as failure but not fatal
	assert.False(t, lockManager.Unlock(txn, &rid))
	assert.Equal(t, GROWING, txn.GetState())
}
