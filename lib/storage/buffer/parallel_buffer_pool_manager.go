package buffer

import (
	"github.com/sasha-s/go-deadlock"

	"github.com/minatodb/minatodb/lib/recovery"
	"github.com/minatodb/minatodb/lib/storage/disk"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

// ParallelBufferPoolManager spreads the frames over several instances and
// routes every page id to the instance at page_id mod numInstances. Sharding
// only reduces latch contention, the per-instance semantics are unchanged.
type ParallelBufferPoolManager struct {
	instances []*BufferPoolManagerInstance
	// next instance to try first on NewPage, advanced round robin
	startIndex uint32
	mutex      *deadlock.Mutex
}

func NewParallelBufferPoolManager(numInstances uint32, poolSizePerInstance uint32, diskManager disk.DiskManager, logManager *recovery.LogManager) *ParallelBufferPoolManager {
	instances := make([]*BufferPoolManagerInstance, numInstances)
	for i := uint32(0); i < numInstances; i++ {
		instances[i] = NewBufferPoolManagerInstance(poolSizePerInstance, numInstances, i, diskManager, logManager)
	}
	return &ParallelBufferPoolManager{
		instances:  instances,
		startIndex: 0,
		mutex:      new(deadlock.Mutex),
	}
}

func (p *ParallelBufferPoolManager) getInstance(pageID types.PageID) *BufferPoolManagerInstance {
	return p.instances[uint32(pageID)%uint32(len(p.instances))]
}

func (p *ParallelBufferPoolManager) FetchPage(pageID types.PageID) *page.Page {
	return p.getInstance(pageID).FetchPage(pageID)
}

func (p *ParallelBufferPoolManager) UnpinPage(pageID types.PageID, isDirty bool) error {
	return p.getInstance(pageID).UnpinPage(pageID, isDirty)
}

// NewPage tries each instance once, starting from the round robin position.
// Returns nil only when every instance is out of frames.
func (p *ParallelBufferPoolManager) NewPage() *page.Page {
	p.mutex.Lock()
	start := p.startIndex
	p.startIndex = (p.startIndex + 1) % uint32(len(p.instances))
	p.mutex.Unlock()

	numInstances := uint32(len(p.instances))
	for i := uint32(0); i < numInstances; i++ {
		instance := p.instances[(start+i)%numInstances]
		if pg := instance.NewPage(); pg != nil {
			return pg
		}
	}
	return nil
}

func (p *ParallelBufferPoolManager) DeletePage(pageID types.PageID) error {
	return p.getInstance(pageID).DeletePage(pageID)
}

func (p *ParallelBufferPoolManager) FlushPage(pageID types.PageID) bool {
	return p.getInstance(pageID).FlushPage(pageID)
}

func (p *ParallelBufferPoolManager) FlushAllPages() {
	for _, instance := range p.instances {
		instance.FlushAllPages()
	}
}

func (p *ParallelBufferPoolManager) FlushAllDirtyPages() bool {
	for _, instance := range p.instances {
		if !instance.FlushAllDirtyPages() {
			return false
		}
	}
	return true
}

// GetPoolSize returns the total frame count over all instances
func (p *ParallelBufferPoolManager) GetPoolSize() uint32 {
	size := uint32(0)
	for _, instance := range p.instances {
		size += instance.GetPoolSize()
	}
	return size
}
