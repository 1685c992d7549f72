package engine

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/concurrency"
	"github.com/minatodb/minatodb/lib/config"
	"github.com/minatodb/minatodb/lib/recovery"
	"github.com/minatodb/minatodb/lib/storage/access"
	"github.com/minatodb/minatodb/lib/storage/buffer"
	"github.com/minatodb/minatodb/lib/storage/disk"
	"github.com/minatodb/minatodb/lib/storage/index"
	"github.com/minatodb/minatodb/lib/storage/index/index_common"
	"github.com/minatodb/minatodb/lib/storage/page"
)

/**
 * StorageEngine wires the storage core together from a configuration: disk
 * manager, parallel buffer pool, log manager, lock manager with its deadlock
 * detector, transaction manager and checkpoint manager. Indexes are opened by
 * name, their roots recorded in the header page.
 */
type StorageEngine struct {
	cfg                *config.EngineConfig
	diskManager        disk.DiskManager
	logManager         *recovery.LogManager
	bufferPoolManager  buffer.BufferPoolManager
	lockManager        *access.LockManager
	transactionManager *access.TransactionManager
	checkpointManager  *concurrency.CheckpointManager

	indexes map[string]*index.BPlusTree
	mutex   *sync.Mutex
}

// NewStorageEngine boots the engine described by cfg.
func NewStorageEngine(cfg *config.EngineConfig) (*StorageEngine, error) {
	cfg.Apply()

	var diskManager disk.DiskManager
	if cfg.UseVirtualStorage {
		diskManager = disk.NewVirtualDiskManagerImpl(cfg.DataFile)
	} else {
		var err error
		diskManager, err = disk.NewDiskManagerImpl(cfg.DataFile)
		if err != nil {
			return nil, errors.Wrap(err, "cannot open storage")
		}
	}

	logManager := recovery.NewLogManager(diskManager)
	bufferPoolManager := buffer.NewParallelBufferPoolManager(cfg.PoolInstances, cfg.PoolSize, diskManager, logManager)
	lockManager := access.NewLockManager()
	transactionManager := access.NewTransactionManager(lockManager, logManager)
	checkpointManager := concurrency.NewCheckpointManager(transactionManager, logManager, bufferPoolManager)

	ensureHeaderPage(bufferPoolManager)
	lockManager.StartCycleDetection()

	common.Logger.Infof("storage engine started: data_file=%s pool_size=%d instances=%d",
		cfg.DataFile, cfg.PoolSize, cfg.PoolInstances)

	return &StorageEngine{
		cfg:                cfg,
		diskManager:        diskManager,
		logManager:         logManager,
		bufferPoolManager:  bufferPoolManager,
		lockManager:        lockManager,
		transactionManager: transactionManager,
		checkpointManager:  checkpointManager,
		indexes:            make(map[string]*index.BPlusTree),
		mutex:              new(sync.Mutex),
	}, nil
}

// ensureHeaderPage materializes page id 0 on fresh storage
func ensureHeaderPage(bpm buffer.BufferPoolManager) {
	if headerRawPage := bpm.FetchPage(common.HeaderPageID); headerRawPage != nil {
		bpm.UnpinPage(common.HeaderPageID, false)
		return
	}
	headerRawPage := bpm.NewPage()
	common.SH_Assert(headerRawPage != nil, "failed to allocate the header page")
	common.SH_Assert(headerRawPage.GetPageId() == common.HeaderPageID,
		"the first allocated page must be the header page")
	page.CastPageAsHeaderPage(headerRawPage).Init()
	bpm.UnpinPage(common.HeaderPageID, true)
}

// OpenIndex returns the B+-tree index of the given name, opening it (and its
// header page record) on first use.
func (se *StorageEngine) OpenIndex(name string, comparator index_common.KeyComparator) *index.BPlusTree {
	se.mutex.Lock()
	defer se.mutex.Unlock()

	if tree, ok := se.indexes[name]; ok {
		return tree
	}
	tree := index.NewBPlusTree(name, se.bufferPoolManager, comparator, 0, 0)
	se.indexes[name] = tree
	return tree
}

func (se *StorageEngine) GetBufferPoolManager() buffer.BufferPoolManager {
	return se.bufferPoolManager
}

func (se *StorageEngine) GetLockManager() *access.LockManager {
	return se.lockManager
}

func (se *StorageEngine) GetTransactionManager() *access.TransactionManager {
	return se.transactionManager
}

func (se *StorageEngine) GetCheckpointManager() *concurrency.CheckpointManager {
	return se.checkpointManager
}

func (se *StorageEngine) GetLogManager() *recovery.LogManager {
	return se.logManager
}

// Shutdown stops the deadlock detector, pushes every dirty page and the log
// out and closes the storage files.
func (se *StorageEngine) Shutdown() {
	se.lockManager.StopCycleDetection()
	se.bufferPoolManager.FlushAllPages()
	se.logManager.Flush()
	se.diskManager.ShutDown()
	common.Logger.Infof("storage engine stopped: data_file=%s", se.cfg.DataFile)
}
