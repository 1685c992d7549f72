package recovery

import (
	"sync"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/storage/disk"
	"github.com/minatodb/minatodb/lib/types"
)

// LogManager is the write path of the log collaborator. The storage core only
// needs two things from it: appending opaque records and flushing buffered
// bytes before a dirty page leaves the buffer pool. Recovery itself is out of
// scope here.
type LogManager struct {
	nextLSN      types.LSN
	persistedLSN types.LSN
	logBuffer    []byte
	bufferUsed   int
	diskManager  disk.DiskManager
	mutex        *sync.Mutex
}

func NewLogManager(diskManager disk.DiskManager) *LogManager {
	return &LogManager{
		nextLSN:      0,
		persistedLSN: common.InvalidLSN,
		logBuffer:    make([]byte, common.LogBufferSize),
		diskManager:  diskManager,
		mutex:        new(sync.Mutex),
	}
}

func (lm *LogManager) IsEnabledLogging() bool {
	return common.EnableLogging
}

// AppendLogRecord copies the serialized record into the log buffer and hands
// out its LSN.
func (lm *LogManager) AppendLogRecord(record []byte) types.LSN {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.bufferUsed+len(record) > len(lm.logBuffer) {
		lm.flushLocked()
	}

	lsn := lm.nextLSN
	lm.nextLSN++
	copy(lm.logBuffer[lm.bufferUsed:], record)
	lm.bufferUsed += len(record)
	return lsn
}

// Flush forces buffered log bytes to disk. The buffer pool calls this before
// writing back a dirty page so the log never lags the data file.
func (lm *LogManager) Flush() {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.flushLocked()
}

func (lm *LogManager) flushLocked() {
	if lm.bufferUsed == 0 {
		return
	}
	if err := lm.diskManager.WriteLog(lm.logBuffer[:lm.bufferUsed]); err != nil {
		common.Logger.Errorf("log flush failed: %v", err)
		return
	}
	lm.bufferUsed = 0
	lm.persistedLSN = lm.nextLSN - 1
}

func (lm *LogManager) GetPersistedLSN() types.LSN {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.persistedLSN
}
