package access

import (
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/golang-collections/collections/stack"
	pair "github.com/notEpsilon/go-pair"
	"github.com/sasha-s/go-deadlock"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

type LockMode int32

const (
	SHARED LockMode = iota
	EXCLUSIVE
)

// LockRequest is one queued lock acquisition. It stays in the request queue
// until the waiting goroutine observes its grant (or its abort) and removes
// it; the deadlock detector removes the ungranted requests of its victims
// itself.
type LockRequest struct {
	txnId    types.TxnID
	lockMode LockMode
	granted  bool
}

func NewLockRequest(txnId types.TxnID, lockMode LockMode) *LockRequest {
	return &LockRequest{txnId: txnId, lockMode: lockMode, granted: false}
}

// LockRequestQueue is the FIFO wait queue of one record, with the condition
// variable its waiters block on. The condition variable shares the manager
// latch, so waiters atomically release it while sleeping.
type LockRequestQueue struct {
	requestQueue []*LockRequest
	cv           *sync.Cond
	upgrading    bool
}

// lockHolder is the side table entry recording who currently holds the
// record and in which mode.
type lockHolder struct {
	mode    LockMode
	holders mapset.Set[types.TxnID]
}

/**
 * LockManager handles transactions asking for tuple locks under strict two
 * phase locking. Grants are FIFO per record; the sole exception is a
 * sole-holder upgrade which converts in place ahead of queued requests. A
 * background task detects wait-for cycles and aborts the youngest transaction
 * of each.
 */
type LockManager struct {
	mutex *deadlock.Mutex

	/** Lock table for lock requests. */
	lockTable map[page.RID]*LockRequestQueue
	/** Current holders per record. */
	lockHolders map[page.RID]*lockHolder
	/** Waits-for graph representation. */
	waitsFor map[types.TxnID][]types.TxnID

	detectorStop chan struct{}
	detectorWg   sync.WaitGroup
}

func NewLockManager() *LockManager {
	return &LockManager{
		mutex:       new(deadlock.Mutex),
		lockTable:   make(map[page.RID]*LockRequestQueue),
		lockHolders: make(map[page.RID]*lockHolder),
		waitsFor:    make(map[types.TxnID][]types.TxnID),
	}
}

// getLockRequestQueue lazily creates the queue of a record.
// Caller holds the manager latch.
func (lm *LockManager) getLockRequestQueue(rid page.RID) *LockRequestQueue {
	if queue, ok := lm.lockTable[rid]; ok {
		return queue
	}
	queue := &LockRequestQueue{
		requestQueue: make([]*LockRequest, 0),
		cv:           sync.NewCond(lm.mutex),
	}
	lm.lockTable[rid] = queue
	return queue
}

// getLockHolder lazily creates the holder entry of a record.
// Caller holds the manager latch.
func (lm *LockManager) getLockHolder(rid page.RID) *lockHolder {
	if holder, ok := lm.lockHolders[rid]; ok {
		return holder
	}
	holder := &lockHolder{mode: SHARED, holders: mapset.NewThreadUnsafeSet[types.TxnID]()}
	lm.lockHolders[rid] = holder
	return holder
}

/**
* LockShared acquires a lock on rid in shared mode.
* @return nil when granted, a TransactionAbortException when the request
* killed (or found) an aborted transaction
 */
func (lm *LockManager) LockShared(txn *Transaction, rid *page.RID) error {
	if txn.GetState() == SHRINKING {
		txn.SetState(ABORTED)
		return NewTransactionAbortException(txn.GetTransactionId(), LOCK_ON_SHRINKING)
	}
	if txn.GetIsolationLevel() == READ_UNCOMMITTED {
		txn.SetState(ABORTED)
		return NewTransactionAbortException(txn.GetTransactionId(), LOCKSHARED_ON_READ_UNCOMMITTED)
	}
	if txn.GetState() == ABORTED {
		return NewTransactionAbortException(txn.GetTransactionId(), DEADLOCK)
	}
	common.SH_Assert(!txn.IsExclusiveLocked(rid), "requesting S while holding X")
	if txn.IsSharedLocked(rid) {
		return nil
	}

	lm.mutex.Lock()
	queue := lm.getLockRequestQueue(*rid)
	request := NewLockRequest(txn.GetTransactionId(), SHARED)
	queue.requestQueue = append(queue.requestQueue, request)
	lm.grantLockRequests(*rid)

	for !request.granted && txn.GetState() != ABORTED {
		queue.cv.Wait()
	}

	if txn.GetState() == ABORTED {
		lm.eraseLockRequest(txn.GetTransactionId(), *rid)
		lm.mutex.Unlock()
		return NewTransactionAbortException(txn.GetTransactionId(), DEADLOCK)
	}

	lm.eraseLockRequest(txn.GetTransactionId(), *rid)
	txn.AddIntoSharedLockSet(*rid)
	lm.mutex.Unlock()
	return nil
}

/**
* LockExclusive acquires a lock on rid in exclusive mode.
* @return nil when granted, a TransactionAbortException otherwise
 */
func (lm *LockManager) LockExclusive(txn *Transaction, rid *page.RID) error {
	if txn.GetState() == SHRINKING {
		txn.SetState(ABORTED)
		return NewTransactionAbortException(txn.GetTransactionId(), LOCK_ON_SHRINKING)
	}
	if txn.GetState() == ABORTED {
		return NewTransactionAbortException(txn.GetTransactionId(), DEADLOCK)
	}
	common.SH_Assert(!txn.IsSharedLocked(rid), "requesting X while holding S, call LockUpgrade instead")
	if txn.IsExclusiveLocked(rid) {
		return nil
	}

	lm.mutex.Lock()
	queue := lm.getLockRequestQueue(*rid)
	request := NewLockRequest(txn.GetTransactionId(), EXCLUSIVE)
	queue.requestQueue = append(queue.requestQueue, request)
	lm.grantLockRequests(*rid)

	for !request.granted && txn.GetState() != ABORTED {
		queue.cv.Wait()
	}

	if txn.GetState() == ABORTED {
		lm.eraseLockRequest(txn.GetTransactionId(), *rid)
		lm.mutex.Unlock()
		return NewTransactionAbortException(txn.GetTransactionId(), DEADLOCK)
	}

	lm.eraseLockRequest(txn.GetTransactionId(), *rid)
	txn.AddIntoExclusiveLockSet(*rid)
	lm.mutex.Unlock()
	return nil
}

/**
* LockUpgrade upgrades the transaction's shared lock on rid into an exclusive
* one. Only one upgrade may be pending per record.
* @return nil when granted, a TransactionAbortException otherwise
 */
func (lm *LockManager) LockUpgrade(txn *Transaction, rid *page.RID) error {
	if txn.GetState() == SHRINKING {
		txn.SetState(ABORTED)
		return NewTransactionAbortException(txn.GetTransactionId(), LOCK_ON_SHRINKING)
	}
	if txn.GetState() == ABORTED {
		return NewTransactionAbortException(txn.GetTransactionId(), DEADLOCK)
	}
	common.SH_Assert(txn.IsSharedLocked(rid), "upgrade without holding S")
	common.SH_Assert(!txn.IsExclusiveLocked(rid), "upgrade while already holding X")

	lm.mutex.Lock()
	queue := lm.getLockRequestQueue(*rid)
	if queue.upgrading {
		txn.SetState(ABORTED)
		lm.mutex.Unlock()
		return NewTransactionAbortException(txn.GetTransactionId(), UPGRADE_CONFLICT)
	}
	queue.upgrading = true

	// the upgrading request goes to the head of the queue: a sole holder is
	// granted ahead of any queued shared request
	request := NewLockRequest(txn.GetTransactionId(), EXCLUSIVE)
	queue.requestQueue = append([]*LockRequest{request}, queue.requestQueue...)
	lm.grantLockRequests(*rid)

	for !request.granted && txn.GetState() != ABORTED {
		queue.cv.Wait()
	}

	queue.upgrading = false
	if txn.GetState() == ABORTED {
		lm.eraseLockRequest(txn.GetTransactionId(), *rid)
		lm.mutex.Unlock()
		return NewTransactionAbortException(txn.GetTransactionId(), DEADLOCK)
	}

	lm.eraseLockRequest(txn.GetTransactionId(), *rid)
	txn.RemoveFromSharedLockSet(*rid)
	txn.AddIntoExclusiveLockSet(*rid)
	lm.mutex.Unlock()
	return nil
}

/**
* Unlock releases the lock the transaction holds on rid. Under
* REPEATABLE_READ the first unlock moves the transaction to SHRINKING.
* @return false when the transaction held no lock on rid
 */
func (lm *LockManager) Unlock(txn *Transaction, rid *page.RID) bool {
	lm.mutex.Lock()

	holder, ok := lm.lockHolders[*rid]
	if !ok || !holder.holders.Contains(txn.GetTransactionId()) {
		lm.mutex.Unlock()
		common.Logger.Warnf("txn %d unlocks rid %s it does not hold", txn.GetTransactionId(), rid.ToString())
		return false
	}

	if txn.GetIsolationLevel() == REPEATABLE_READ && txn.GetState() == GROWING {
		txn.SetState(SHRINKING)
	}

	holder.holders.Remove(txn.GetTransactionId())
	if holder.holders.Cardinality() == 0 {
		delete(lm.lockHolders, *rid)
	}
	txn.RemoveFromSharedLockSet(*rid)
	txn.RemoveFromExclusiveLockSet(*rid)

	lm.grantLockRequests(*rid)
	if queue, ok := lm.lockTable[*rid]; ok {
		queue.cv.Broadcast()
		// entries with no holder and no waiter can be collected
		if len(queue.requestQueue) == 0 {
			if _, held := lm.lockHolders[*rid]; !held {
				delete(lm.lockTable, *rid)
			}
		}
	}

	lm.mutex.Unlock()
	return true
}

// grantLockRequests scans the request queue from the head and grants while
// the next request is compatible with the current holders. The scan stops at
// the first non grantable request to keep grants FIFO.
// Caller holds the manager latch.
func (lm *LockManager) grantLockRequests(rid page.RID) {
	queue, ok := lm.lockTable[rid]
	if !ok {
		return
	}

	for _, request := range queue.requestQueue {
		if request.granted {
			continue
		}
		holder, held := lm.lockHolders[rid]

		if request.lockMode == SHARED {
			if held && holder.mode == EXCLUSIVE {
				break
			}
			h := lm.getLockHolder(rid)
			h.mode = SHARED
			h.holders.Add(request.txnId)
			request.granted = true
			// more contiguous sharers may be granted
			continue
		}

		// EXCLUSIVE
		if !held {
			h := lm.getLockHolder(rid)
			h.mode = EXCLUSIVE
			h.holders.Add(request.txnId)
			request.granted = true
			break
		}
		if holder.mode == SHARED && holder.holders.Cardinality() == 1 && holder.holders.Contains(request.txnId) {
			// sole holder upgrading, convert in place
			holder.mode = EXCLUSIVE
			request.granted = true
			break
		}
		break
	}
}

// eraseLockRequest drops the transaction's request from the record's queue.
// Caller holds the manager latch.
func (lm *LockManager) eraseLockRequest(txnId types.TxnID, rid page.RID) {
	queue, ok := lm.lockTable[rid]
	if !ok {
		return
	}
	for i, request := range queue.requestQueue {
		if request.txnId == txnId {
			queue.requestQueue = append(queue.requestQueue[:i], queue.requestQueue[i+1:]...)
			return
		}
	}
}

/*** Graph API ***/

/** AddEdge adds an edge t1 -> t2. */
func (lm *LockManager) AddEdge(t1 types.TxnID, t2 types.TxnID) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.addEdgeLocked(t1, t2)
}

func (lm *LockManager) addEdgeLocked(t1 types.TxnID, t2 types.TxnID) {
	for _, tid := range lm.waitsFor[t1] {
		if tid == t2 {
			return
		}
	}
	lm.waitsFor[t1] = append(lm.waitsFor[t1], t2)
}

/** RemoveEdge removes the edge t1 -> t2. */
func (lm *LockManager) RemoveEdge(t1 types.TxnID, t2 types.TxnID) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	vec := lm.waitsFor[t1]
	for i, tid := range vec {
		if tid == t2 {
			lm.waitsFor[t1] = append(vec[:i], vec[i+1:]...)
			return
		}
	}
}

/**
* HasCycle checks the wait-for graph for a cycle.
* @param[out] txnId the youngest transaction id of the found cycle
* @return true when a cycle exists
 */
func (lm *LockManager) HasCycle(txnId *types.TxnID) bool {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.hasCycleLocked(txnId)
}

type dfsFrame struct {
	txn         types.TxnID
	neighborIdx int
}

// hasCycleLocked runs a deterministic DFS: sources in ascending transaction
// id order, neighbors in ascending order. The victim is the largest id on the
// found cycle. Caller holds the manager latch.
func (lm *LockManager) hasCycleLocked(txnId *types.TxnID) bool {
	srcNodes := make([]types.TxnID, 0, len(lm.waitsFor))
	for src, neighbors := range lm.waitsFor {
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		srcNodes = append(srcNodes, src)
	}
	sort.Slice(srcNodes, func(i, j int) bool { return srcNodes[i] < srcNodes[j] })

	visited := make(map[types.TxnID]bool)
	for _, src := range srcNodes {
		if visited[src] {
			continue
		}

		onPath := make(map[types.TxnID]int)
		path := make([]types.TxnID, 0)
		st := stack.New()
		st.Push(&dfsFrame{src, 0})
		onPath[src] = 0
		path = append(path, src)

		for st.Len() > 0 {
			frame := st.Peek().(*dfsFrame)
			neighbors := lm.waitsFor[frame.txn]
			if frame.neighborIdx < len(neighbors) {
				next := neighbors[frame.neighborIdx]
				frame.neighborIdx++
				if cycleStart, onCycle := onPath[next]; onCycle {
					victim := next
					for _, tid := range path[cycleStart:] {
						if tid > victim {
							victim = tid
						}
					}
					*txnId = victim
					return true
				}
				if !visited[next] {
					st.Push(&dfsFrame{next, 0})
					onPath[next] = len(path)
					path = append(path, next)
				}
			} else {
				st.Pop()
				visited[frame.txn] = true
				delete(onPath, frame.txn)
				path = path[:len(path)-1]
			}
		}
	}
	return false
}

/** GetEdgeList returns every edge of the graph, used for testing only. */
func (lm *LockManager) GetEdgeList() []pair.Pair[types.TxnID, types.TxnID] {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	edges := make([]pair.Pair[types.TxnID, types.TxnID], 0)
	for t1, neighbors := range lm.waitsFor {
		for _, t2 := range neighbors {
			edges = append(edges, pair.Pair[types.TxnID, types.TxnID]{First: t1, Second: t2})
		}
	}
	return edges
}

// buildWaitsForGraph rebuilds the graph from the lock table: every ungranted
// request yields edges from the waiter to every current holder.
// Caller holds the manager latch.
func (lm *LockManager) buildWaitsForGraph() {
	lm.waitsFor = make(map[types.TxnID][]types.TxnID)
	for rid, queue := range lm.lockTable {
		holder, held := lm.lockHolders[rid]
		if !held {
			continue
		}
		for _, request := range queue.requestQueue {
			if request.granted {
				continue
			}
			for _, holderTxn := range holder.holders.ToSlice() {
				if holderTxn != request.txnId {
					lm.addEdgeLocked(request.txnId, holderTxn)
				}
			}
		}
	}
}

// abortTransactionLocked kills the victim: its state becomes ABORTED, its
// pending requests leave every queue and all affected waiters are woken.
// Caller holds the manager latch.
func (lm *LockManager) abortTransactionLocked(victim types.TxnID) {
	if txn := GetTransaction(victim); txn != nil {
		txn.SetState(ABORTED)
	}

	for _, queue := range lm.lockTable {
		erased := false
		for i := 0; i < len(queue.requestQueue); i++ {
			if queue.requestQueue[i].txnId == victim && !queue.requestQueue[i].granted {
				queue.requestQueue = append(queue.requestQueue[:i], queue.requestQueue[i+1:]...)
				erased = true
				i--
			}
		}
		if erased {
			queue.cv.Broadcast()
		}
	}

	common.Logger.Warnf("deadlock detector aborted txn %d", victim)
}

/** StartCycleDetection launches the background detection task. */
func (lm *LockManager) StartCycleDetection() {
	if lm.detectorStop != nil {
		return
	}
	lm.detectorStop = make(chan struct{})
	lm.detectorWg.Add(1)
	go lm.runCycleDetection()
}

/** StopCycleDetection stops the background task and waits for it to exit. */
func (lm *LockManager) StopCycleDetection() {
	if lm.detectorStop == nil {
		return
	}
	close(lm.detectorStop)
	lm.detectorWg.Wait()
	lm.detectorStop = nil
}

// runCycleDetection wakes on a fixed interval, rebuilds the wait-for graph
// and aborts the youngest transaction of every cycle until none remains.
func (lm *LockManager) runCycleDetection() {
	defer lm.detectorWg.Done()
	ticker := time.NewTicker(common.CycleDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lm.detectorStop:
			return
		case <-ticker.C:
			lm.mutex.Lock()
			lm.buildWaitsForGraph()
			var victim types.TxnID
			for lm.hasCycleLocked(&victim) {
				lm.abortTransactionLocked(victim)
				lm.buildWaitsForGraph()
			}
			lm.mutex.Unlock()
		}
	}
}
