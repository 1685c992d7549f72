// this code is based on https://github.com/brunocalza/go-bustub

package buffer

import (
	"fmt"

	"github.com/ncw/directio"
	"github.com/sasha-s/go-deadlock"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/errors"
	"github.com/minatodb/minatodb/lib/recovery"
	"github.com/minatodb/minatodb/lib/storage/disk"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

const ErrPageNotFound = errors.Error("could not find page")
const ErrPagePinned = errors.Error("page pin count is greater than 0")
const ErrPageNotPinned = errors.Error("page pin count is already 0")

// BufferPoolManager is the surface the index and access layers program
// against. Both the single instance pool and the parallel pool satisfy it.
type BufferPoolManager interface {
	FetchPage(pageID types.PageID) *page.Page
	UnpinPage(pageID types.PageID, isDirty bool) error
	NewPage() *page.Page
	DeletePage(pageID types.PageID) error
	FlushPage(pageID types.PageID) bool
	FlushAllPages()
	FlushAllDirtyPages() bool
	GetPoolSize() uint32
}

// BufferPoolManagerInstance maps page ids to in-memory frames, pinning and
// evicting through the LRU replacer. When it is one shard of a parallel pool,
// it allocates page ids from the arithmetic progression
// {instanceIndex + k*numInstances} so every id it hands out routes back to it.
type BufferPoolManagerInstance struct {
	diskManager   disk.DiskManager
	pages         []*page.Page // index is FrameID
	replacer      *LRUReplacer
	freeList      []FrameID
	pageTable     map[types.PageID]FrameID
	numInstances  uint32
	instanceIndex uint32
	nextPageID    types.PageID
	logManager    *recovery.LogManager
	mutex         *deadlock.Mutex
}

// NewBufferPoolManager returns a standalone buffer pool manager
func NewBufferPoolManager(poolSize uint32, diskManager disk.DiskManager, logManager *recovery.LogManager) *BufferPoolManagerInstance {
	return NewBufferPoolManagerInstance(poolSize, 1, 0, diskManager, logManager)
}

// NewBufferPoolManagerInstance returns one shard of a parallel buffer pool
func NewBufferPoolManagerInstance(poolSize uint32, numInstances uint32, instanceIndex uint32, diskManager disk.DiskManager, logManager *recovery.LogManager) *BufferPoolManagerInstance {
	common.SH_Assert(numInstances > 0, "a pool must consist of at least one instance")
	common.SH_Assert(instanceIndex < numInstances, "instance index must be smaller than the number of instances")

	freeList := make([]FrameID, poolSize)
	pages := make([]*page.Page, poolSize)
	for i := uint32(0); i < poolSize; i++ {
		freeList[i] = FrameID(i)
		pages[i] = nil
	}

	// resume the id progression past whatever the data file already holds
	existingPages := diskManager.Size() / common.PageSize
	nextPageID := types.PageID(instanceIndex)
	if existingPages > int64(instanceIndex) {
		k := (existingPages - int64(instanceIndex) + int64(numInstances) - 1) / int64(numInstances)
		nextPageID = types.PageID(int64(instanceIndex) + k*int64(numInstances))
	}

	return &BufferPoolManagerInstance{
		diskManager:   diskManager,
		pages:         pages,
		replacer:      NewLRUReplacer(poolSize),
		freeList:      freeList,
		pageTable:     make(map[types.PageID]FrameID),
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    nextPageID,
		logManager:    logManager,
		mutex:         new(deadlock.Mutex),
	}
}

// FetchPage fetches the requested page from the buffer pool.
func (b *BufferPoolManagerInstance) FetchPage(pageID types.PageID) *page.Page {
	b.mutex.Lock()

	// if it is on buffer pool return it
	if frameID, ok := b.pageTable[pageID]; ok {
		pg := b.pages[frameID]
		pg.IncPinCount()
		b.replacer.Pin(frameID)
		b.mutex.Unlock()
		if common.EnableDebug {
			common.ShPrintf(common.DEBUG_INFO, "FetchPage: PageId=%d PinCount=%d\n", pg.GetPageId(), pg.PinCount())
		}
		return pg
	}

	// get the id from free list or from replacer
	frameID := b.getFrameID()
	if frameID == nil {
		b.mutex.Unlock()
		return nil
	}

	if !b.evictFrame(*frameID) {
		b.mutex.Unlock()
		return nil
	}

	data := directio.AlignedBlock(common.PageSize)
	err := b.diskManager.ReadPage(pageID, data)
	if err != nil {
		b.freeList = append(b.freeList, *frameID)
		b.mutex.Unlock()
		if err != types.DeallocatedPageErr {
			common.ShPrintf(common.DEBUG_INFO, "FetchPage: read of page %d failed: %v\n", pageID, err)
		}
		return nil
	}
	var pageData [common.PageSize]byte
	copy(pageData[:], data)
	pg := page.New(pageID, false, &pageData)

	b.pageTable[pageID] = *frameID
	b.pages[*frameID] = pg
	b.mutex.Unlock()

	if common.EnableDebug {
		common.ShPrintf(common.DEBUG_INFO, "FetchPage: PageId=%d PinCount=%d\n", pg.GetPageId(), pg.PinCount())
	}
	return pg
}

// UnpinPage unpins the target page from the buffer pool.
func (b *BufferPoolManagerInstance) UnpinPage(pageID types.PageID, isDirty bool) error {
	b.mutex.Lock()

	if frameID, ok := b.pageTable[pageID]; ok {
		pg := b.pages[frameID]
		if pg.PinCount() <= 0 {
			b.mutex.Unlock()
			common.Logger.Warnf("unpin of page %d which is not pinned", pageID)
			return ErrPageNotPinned
		}
		pg.DecPinCount()

		if pg.PinCount() == 0 {
			b.replacer.Unpin(frameID)
		}

		// the dirty flag is sticky: a clean unpin never clears it
		if isDirty {
			pg.SetIsDirty(true)
		}
		b.mutex.Unlock()

		if common.EnableDebug {
			common.ShPrintf(common.DEBUG_INFO, "UnpinPage: PageId=%d PinCount=%d\n", pg.GetPageId(), pg.PinCount())
		}
		return nil
	}
	b.mutex.Unlock()

	common.Logger.Warnf("unpin of page %d which is not resident", pageID)
	return ErrPageNotFound
}

// NewPage allocates a new page id from this instance's progression and pins a
// zeroed frame for it.
func (b *BufferPoolManagerInstance) NewPage() *page.Page {
	b.mutex.Lock()

	frameID := b.getFrameID()
	if frameID == nil {
		b.mutex.Unlock()
		return nil // the buffer is full, it can't find a frame
	}

	if !b.evictFrame(*frameID) {
		b.mutex.Unlock()
		return nil
	}

	pageID := b.allocatePage()
	pg := page.NewEmpty(pageID)

	b.pageTable[pageID] = *frameID
	b.pages[*frameID] = pg

	b.mutex.Unlock()

	if common.EnableDebug {
		common.ShPrintf(common.DEBUG_INFO, "NewPage: returned pageID: %d\n", pageID)
	}
	return pg
}

// DeletePage frees the frame of the page and deallocates it on disk. Fails
// while someone still pins the page; trivially succeeds when not resident.
func (b *BufferPoolManagerInstance) DeletePage(pageID types.PageID) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.diskManager.DeallocatePage(pageID)
		return nil
	}

	pg := b.pages[frameID]
	if pg.PinCount() > 0 {
		return ErrPagePinned
	}

	if pg.IsDirty() {
		b.logManager.Flush()
		data := pg.Data()
		if err := b.diskManager.WritePage(pageID, data[:]); err != nil {
			return err
		}
	}

	delete(b.pageTable, pageID)
	b.replacer.Pin(frameID)
	b.pages[frameID] = nil
	b.freeList = append(b.freeList, frameID)
	b.diskManager.DeallocatePage(pageID)
	return nil
}

// FlushPage flushes the target page to disk.
func (b *BufferPoolManagerInstance) FlushPage(pageID types.PageID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !pageID.IsValid() {
		return false
	}

	if frameID, ok := b.pageTable[pageID]; ok {
		pg := b.pages[frameID]
		data := pg.Data()
		if err := b.diskManager.WritePage(pageID, data[:]); err != nil {
			common.Logger.Errorf("flush of page %d failed: %v", pageID, err)
			return false
		}
		pg.SetIsDirty(false)
		return true
	}
	return false
}

// FlushAllPages flushes all the pages in the buffer pool to disk.
func (b *BufferPoolManagerInstance) FlushAllPages() {
	pageIDs := make([]types.PageID, 0)
	b.mutex.Lock()
	for pageID := range b.pageTable {
		pageIDs = append(pageIDs, pageID)
	}
	b.mutex.Unlock()

	for _, pageID := range pageIDs {
		b.FlushPage(pageID)
	}
}

// FlushAllDirtyPages flushes all dirty pages in the buffer pool to disk.
func (b *BufferPoolManagerInstance) FlushAllDirtyPages() bool {
	pageIDs := make([]types.PageID, 0)
	b.mutex.Lock()
	for pageID, frameID := range b.pageTable {
		// the dirty flag only changes under the pool mutex
		if b.pages[frameID].IsDirty() {
			pageIDs = append(pageIDs, pageID)
		}
	}
	b.mutex.Unlock()

	for _, pageID := range pageIDs {
		if !b.FlushPage(pageID) {
			return false
		}
	}
	return true
}

// GetPoolSize returns the fixed frame count of this instance
func (b *BufferPoolManagerInstance) GetPoolSize() uint32 {
	return uint32(len(b.pages))
}

// evictFrame flushes and unmaps whatever page currently occupies the frame.
// Caller holds the pool mutex.
func (b *BufferPoolManagerInstance) evictFrame(frameID FrameID) bool {
	currentPage := b.pages[frameID]
	if currentPage == nil {
		return true
	}

	common.SH_Assert(currentPage.PinCount() == 0,
		fmt.Sprintf("pin count of page to be cached out must be zero. pageId:%d PinCount:%d", currentPage.GetPageId(), currentPage.PinCount()))

	if currentPage.IsDirty() {
		b.logManager.Flush()
		currentPage.WLatch()
		data := currentPage.Data()
		if err := b.diskManager.WritePage(currentPage.GetPageId(), data[:]); err != nil {
			currentPage.WUnlatch()
			common.Logger.Errorf("writeback of victim page %d failed: %v", currentPage.GetPageId(), err)
			b.freeList = append(b.freeList, frameID)
			return false
		}
		currentPage.WUnlatch()
	}

	delete(b.pageTable, currentPage.GetPageId())
	b.pages[frameID] = nil
	return true
}

// getFrameID claims a frame from the free list, falling back to the replacer.
// Caller holds the pool mutex.
func (b *BufferPoolManagerInstance) getFrameID() *FrameID {
	if len(b.freeList) > 0 {
		frameID, newFreeList := b.freeList[0], b.freeList[1:]
		b.freeList = newFreeList
		return &frameID
	}

	return b.replacer.Victim()
}

// allocatePage hands out the next page id of this instance's progression.
// Caller holds the pool mutex.
func (b *BufferPoolManagerInstance) allocatePage() types.PageID {
	ret := b.nextPageID
	b.nextPageID += types.PageID(b.numInstances)
	common.SH_Assert(uint32(ret)%b.numInstances == b.instanceIndex,
		"allocated page id must route back to the allocating instance")
	return ret
}
