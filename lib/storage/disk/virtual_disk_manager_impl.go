// this code is based on https://github.com/brunocalza/go-bustub

package disk

import (
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/pkg/errors"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/types"
)

// VirtualDiskManagerImpl keeps all pages on an in-memory file. It exists for
// tests and for engines configured with use_virtual_storage.
type VirtualDiskManagerImpl struct {
	db             *memfile.File
	fileName       string
	log            *memfile.File
	nextPageID     types.PageID
	numWrites      uint64
	size           int64
	dbFileMutex    *sync.Mutex
	logFileMutex   *sync.Mutex
	deallocedIDMap map[types.PageID]bool
}

func NewVirtualDiskManagerImpl(dbFilename string) DiskManager {
	return &VirtualDiskManagerImpl{
		db:             memfile.New(make([]byte, 0)),
		fileName:       dbFilename,
		log:            memfile.New(make([]byte, 0)),
		nextPageID:     0,
		dbFileMutex:    new(sync.Mutex),
		logFileMutex:   new(sync.Mutex),
		deallocedIDMap: make(map[types.PageID]bool),
	}
}

// ShutDown does nothing. The backing buffers die with the process.
func (d *VirtualDiskManagerImpl) ShutDown() {
}

// WritePage writes a page to the in-memory file
func (d *VirtualDiskManagerImpl) WritePage(pageId types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageId) * int64(common.PageSize)
	d.db.WriteAt(pageData, offset)

	if offset >= d.size {
		d.size = offset + int64(len(pageData))
	}
	d.numWrites++

	return nil
}

// ReadPage reads a page from the in-memory file
func (d *VirtualDiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	if _, exist := d.deallocedIDMap[pageID]; exist {
		return types.DeallocatedPageErr
	}

	offset := int64(pageID) * int64(common.PageSize)

	if offset > d.size || offset+int64(len(pageData)) > d.size {
		return errors.New("I/O error past end of file")
	}

	if _, err := d.db.ReadAt(pageData, offset); err != nil {
		return errors.Wrapf(err, "in-memory file read error at page %d", pageID)
	}
	return nil
}

// AllocatePage allocates a new page
func (d *VirtualDiskManagerImpl) AllocatePage() types.PageID {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage marks the page as dead. Reads of the id fail afterwards.
func (d *VirtualDiskManagerImpl) DeallocatePage(pageID types.PageID) {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	d.deallocedIDMap[pageID] = true
}

// GetNumWrites returns the number of page writes
func (d *VirtualDiskManagerImpl) GetNumWrites() uint64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	return d.numWrites
}

// Size returns the size of the in-memory file
func (d *VirtualDiskManagerImpl) Size() int64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	return d.size
}

// WriteLog appends the given bytes to the in-memory log file
func (d *VirtualDiskManagerImpl) WriteLog(logData []byte) error {
	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()

	curSize := int64(len(d.log.Bytes()))
	d.log.WriteAt(logData, curSize)
	return nil
}
