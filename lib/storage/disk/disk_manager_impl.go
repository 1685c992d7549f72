// this code is based on https://github.com/brunocalza/go-bustub

package disk

import (
	"io"
	"os"
	"strings"

	"github.com/ncw/directio"
	"github.com/pkg/errors"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/types"
)

// DiskManagerImpl is the disk implementation of DiskManager
type DiskManagerImpl struct {
	db           *os.File
	fileName     string
	log          *os.File
	fileNameLog  string
	nextPageID   types.PageID
	numWrites    uint64
	numFlushes   uint64
	size         int64
	writeBuffer  []byte
}

// NewDiskManagerImpl returns a DiskManager instance backed by a database file
// and its sibling log file. Page writes go through an aligned buffer so the
// file can be opened with O_DIRECT on platforms that support it.
func NewDiskManagerImpl(dbFilename string) (DiskManager, error) {
	file, err := os.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open db file %s", dbFilename)
	}

	periodIdx := strings.LastIndex(dbFilename, ".")
	logfnameBase := dbFilename
	if periodIdx != -1 {
		logfnameBase = dbFilename[:periodIdx]
	}
	logfname := logfnameBase + "." + "log"
	logFile, err := os.OpenFile(logfname, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "can't open log file %s", logfname)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "file info error")
	}
	logFileInfo, err := logFile.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "file info error (log file)")
	}
	logFile.Seek(logFileInfo.Size(), io.SeekStart)

	fileSize := fileInfo.Size()
	nPages := fileSize / common.PageSize

	nextPageID := types.PageID(0)
	if nPages > 0 {
		nextPageID = types.PageID(int32(nPages))
	}

	return &DiskManagerImpl{
		db:          file,
		fileName:    dbFilename,
		log:         logFile,
		fileNameLog: logfname,
		nextPageID:  nextPageID,
		size:        fileSize,
		writeBuffer: directio.AlignedBlock(common.PageSize),
	}, nil
}

// ShutDown closes the database file
func (d *DiskManagerImpl) ShutDown() {
	d.db.Close()
	d.log.Close()
}

// WritePage writes a page to the database file
func (d *DiskManagerImpl) WritePage(pageId types.PageID, pageData []byte) error {
	offset := int64(pageId) * int64(common.PageSize)
	d.db.Seek(offset, io.SeekStart)
	copy(d.writeBuffer, pageData)
	bytesWritten, err := d.db.Write(d.writeBuffer)
	if err != nil {
		return errors.Wrapf(err, "I/O error while writing page %d", pageId)
	}

	if bytesWritten != common.PageSize {
		return errors.Errorf("bytes written (%d) not equals page size", bytesWritten)
	}

	if offset >= d.size {
		d.size = offset + int64(bytesWritten)
	}

	d.numWrites++
	d.db.Sync()
	return nil
}

// ReadPage reads a page from the database file
func (d *DiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	offset := int64(pageID) * int64(common.PageSize)

	fileInfo, err := d.db.Stat()
	if err != nil {
		return errors.Wrap(err, "file info error")
	}

	if offset > fileInfo.Size() {
		return errors.New("I/O error past end of file")
	}

	d.db.Seek(offset, io.SeekStart)

	bytesRead, err := d.db.Read(pageData)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "I/O error while reading page %d", pageID)
	}

	if bytesRead < common.PageSize {
		for i := bytesRead; i < common.PageSize; i++ {
			pageData[i] = 0
		}
	}
	return nil
}

// AllocatePage allocates a new page
// For now just keep an increasing counter
func (d *DiskManagerImpl) AllocatePage() types.PageID {
	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage deallocates page
// Need bitmap in header page for tracking pages
// This does not actually need to do anything for now.
func (d *DiskManagerImpl) DeallocatePage(pageID types.PageID) {
}

// GetNumWrites returns the number of disk writes
func (d *DiskManagerImpl) GetNumWrites() uint64 {
	return d.numWrites
}

// Size returns the size of the file in disk
func (d *DiskManagerImpl) Size() int64 {
	return d.size
}

// WriteLog appends the given bytes to the log file.
// Only returns when the sync is done; writes are sequential.
func (d *DiskManagerImpl) WriteLog(logData []byte) error {
	d.numFlushes++
	_, err := d.log.Write(logData)
	if err != nil {
		return errors.Wrap(err, "I/O error while writing log")
	}
	d.log.Sync()
	return nil
}

// RemoveDBFile can be called after ShutDown
func (d *DiskManagerImpl) RemoveDBFile() {
	os.Remove(d.fileName)
}

// RemoveLogFile can be called after ShutDown
func (d *DiskManagerImpl) RemoveLogFile() {
	os.Remove(d.fileNameLog)
}
