package page

import (
	"unsafe"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/types"
)

/**
 * HeaderPage lives at page id 0 and records, for every index of the database,
 * the page id of its current root.
 *
 * Page format (size in bytes):
 *  -----------------------------------------------------------------
 *  | RecordCount (4) | Record_1 | Record_2 | ... |
 *  -----------------------------------------------------------------
 *  Record format:
 *  -----------------------------------------------------------------
 *  | Name (32, NUL padded) | RootPageId (4) |
 *  -----------------------------------------------------------------
 */

const sizeRecordName = uint32(32)
const sizeHeaderRecord = sizeRecordName + 4
const offsetRecordCount = uint32(0)
const offsetHeaderRecords = uint32(4)

const maxHeaderRecords = (common.PageSize - 4) / int(sizeHeaderRecord)

type HeaderPage struct {
	Page
}

// CastPageAsHeaderPage casts the abstract Page struct into HeaderPage
func CastPageAsHeaderPage(page *Page) *HeaderPage {
	if page == nil {
		return nil
	}
	return (*HeaderPage)(unsafe.Pointer(page))
}

// Init zeroes the record count of a freshly allocated header page
func (hp *HeaderPage) Init() {
	hp.setRecordCount(0)
}

func (hp *HeaderPage) GetRecordCount() uint32 {
	return uint32(types.NewUInt32FromBytes(hp.Data()[offsetRecordCount:]))
}

func (hp *HeaderPage) setRecordCount(count uint32) {
	hp.Copy(offsetRecordCount, types.UInt32(count).Serialize())
}

// InsertRecord adds a {name, rootPageId} record. Returns false when the name
// is too long, already present, or the page is full.
func (hp *HeaderPage) InsertRecord(name string, rootPageId types.PageID) bool {
	if len(name) >= int(sizeRecordName) {
		return false
	}
	count := hp.GetRecordCount()
	if count >= uint32(maxHeaderRecords) {
		return false
	}
	if hp.findRecord(name) != -1 {
		return false
	}

	offset := offsetHeaderRecords + count*sizeHeaderRecord
	nameBytes := make([]byte, sizeRecordName)
	copy(nameBytes, name)
	hp.Copy(offset, nameBytes)
	hp.Copy(offset+sizeRecordName, rootPageId.Serialize())
	hp.setRecordCount(count + 1)
	return true
}

// UpdateRecord rewrites the root page id of an existing record
func (hp *HeaderPage) UpdateRecord(name string, rootPageId types.PageID) bool {
	idx := hp.findRecord(name)
	if idx == -1 {
		return false
	}
	offset := offsetHeaderRecords + uint32(idx)*sizeHeaderRecord
	hp.Copy(offset+sizeRecordName, rootPageId.Serialize())
	return true
}

// DeleteRecord removes the record, compacting the trailing records forward
func (hp *HeaderPage) DeleteRecord(name string) bool {
	idx := hp.findRecord(name)
	if idx == -1 {
		return false
	}
	count := hp.GetRecordCount()
	start := offsetHeaderRecords + uint32(idx)*sizeHeaderRecord
	end := offsetHeaderRecords + count*sizeHeaderRecord
	copy(hp.Data()[start:], hp.Data()[start+sizeHeaderRecord:end])
	hp.setRecordCount(count - 1)
	return true
}

// GetRootId looks up the root page id recorded for the index name
func (hp *HeaderPage) GetRootId(name string) (types.PageID, bool) {
	idx := hp.findRecord(name)
	if idx == -1 {
		return types.InvalidPageID, false
	}
	offset := offsetHeaderRecords + uint32(idx)*sizeHeaderRecord
	return types.NewPageIDFromBytes(hp.Data()[offset+sizeRecordName:]), true
}

func (hp *HeaderPage) findRecord(name string) int {
	count := hp.GetRecordCount()
	for i := uint32(0); i < count; i++ {
		offset := offsetHeaderRecords + i*sizeHeaderRecord
		stored := hp.Data()[offset : offset+sizeRecordName]
		end := 0
		for end < int(sizeRecordName) && stored[end] != 0 {
			end++
		}
		if string(stored[:end]) == name {
			return int(i)
		}
	}
	return -1
}
