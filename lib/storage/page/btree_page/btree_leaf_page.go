package btree_page

import (
	"unsafe"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/storage/index/index_common"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

// Leaf page format, after the shared node header:
//
//	----------------------------------------------------------------------------
//	| NodeHeader (24) | NextPageId (4) | Entry_1 | Entry_2 | ... |
//	----------------------------------------------------------------------------
//	Entry format:
//	----------------------------------------------------------------------------
//	| Key (8) | RID.PageId (4) | RID.SlotNum (4) |
//	----------------------------------------------------------------------------
const offsetNextPageId = sizeBTreePageHeader
const sizeLeafHeader = sizeBTreePageHeader + 4
const sizeLeafEntry = uint32(index_common.KeySize + 8)

// LeafPageMaxSize is the entry capacity when no smaller max size is requested
const LeafPageMaxSize = int32((common.PageSize - sizeLeafHeader) / sizeLeafEntry)

// LeafEntry is one (key, record id) pair of a leaf node
type LeafEntry struct {
	Key index_common.GenericKey
	Rid page.RID
}

type BTreeLeafPage struct {
	BTreePage
}

// CastPageAsBTreeLeafPage casts the abstract Page struct into BTreeLeafPage
func CastPageAsBTreeLeafPage(page *page.Page) *BTreeLeafPage {
	if page == nil {
		return nil
	}
	return (*BTreeLeafPage)(unsafe.Pointer(page))
}

// CastBTreePageAsLeafPage narrows a header view into the leaf variant
func CastBTreePageAsLeafPage(bp *BTreePage) *BTreeLeafPage {
	return (*BTreeLeafPage)(unsafe.Pointer(bp))
}

// Init sets up a freshly allocated leaf node
func (lp *BTreeLeafPage) Init(pageId types.PageID, parentId types.PageID, maxSize int32) {
	lp.SetPageType(LEAF_PAGE)
	lp.SetTreePageId(pageId)
	lp.SetParentPageId(parentId)
	if maxSize == 0 {
		maxSize = LeafPageMaxSize
	}
	lp.SetMaxSize(maxSize)
	lp.SetSize(0)
	lp.SetNextPageId(types.InvalidPageID)
}

// GetMinSize is the underflow bound. A leaf keeps at most maxSize-1 entries,
// so the minimum is the ceiling of half of that.
func (lp *BTreeLeafPage) GetMinSize() int32 {
	return lp.GetMaxSize() / 2
}

func (lp *BTreeLeafPage) GetNextPageId() types.PageID {
	return types.NewPageIDFromBytes(lp.Data()[offsetNextPageId:])
}

func (lp *BTreeLeafPage) SetNextPageId(nextPageId types.PageID) {
	lp.Copy(offsetNextPageId, nextPageId.Serialize())
}

func (lp *BTreeLeafPage) entryOffset(index int32) uint32 {
	return sizeLeafHeader + uint32(index)*sizeLeafEntry
}

// KeyAt returns the key stored at the given array offset
func (lp *BTreeLeafPage) KeyAt(index int32) index_common.GenericKey {
	offset := lp.entryOffset(index)
	return index_common.NewGenericKeyFromBytes(lp.Data()[offset:])
}

// ValueAt returns the record id stored at the given array offset
func (lp *BTreeLeafPage) ValueAt(index int32) page.RID {
	offset := lp.entryOffset(index) + index_common.KeySize
	return page.NewRIDFromBytes(lp.Data()[offset:])
}

// GetItem returns the pair stored at the given array offset
func (lp *BTreeLeafPage) GetItem(index int32) LeafEntry {
	return LeafEntry{lp.KeyAt(index), lp.ValueAt(index)}
}

func (lp *BTreeLeafPage) setEntryAt(index int32, entry LeafEntry) {
	offset := lp.entryOffset(index)
	lp.Copy(offset, entry.Key.Serialize())
	lp.Copy(offset+index_common.KeySize, entry.Rid.Serialize())
}

// KeyIndex finds the first index whose key is greater or equal to the given
// key. Returns GetSize() when all keys are smaller.
func (lp *BTreeLeafPage) KeyIndex(key index_common.GenericKey, comparator index_common.KeyComparator) int32 {
	left := int32(0)
	right := lp.GetSize()
	for left < right {
		mid := left + (right-left)/2
		if comparator(lp.KeyAt(mid), key) < 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// Lookup returns the record id of the key and whether the key is present
func (lp *BTreeLeafPage) Lookup(key index_common.GenericKey, comparator index_common.KeyComparator) (page.RID, bool) {
	index := lp.KeyIndex(key, comparator)
	if index < lp.GetSize() && comparator(lp.KeyAt(index), key) == 0 {
		return lp.ValueAt(index), true
	}
	return page.RID{}, false
}

// Insert puts the pair at its sorted position. A duplicate key leaves the
// node untouched. Returns the size after the insert.
func (lp *BTreeLeafPage) Insert(key index_common.GenericKey, rid page.RID, comparator index_common.KeyComparator) int32 {
	size := lp.GetSize()
	index := lp.KeyIndex(key, comparator)
	if index < size && comparator(lp.KeyAt(index), key) == 0 {
		return size
	}
	// move pairs backward
	for i := size - 1; i >= index; i-- {
		lp.setEntryAt(i+1, lp.GetItem(i))
	}
	lp.setEntryAt(index, LeafEntry{key, rid})
	lp.SetSize(size + 1)
	return lp.GetSize()
}

// RemoveAndDeleteRecord deletes the pair of the key, keeping the remaining
// entries contiguous. Returns the size after the delete.
func (lp *BTreeLeafPage) RemoveAndDeleteRecord(key index_common.GenericKey, comparator index_common.KeyComparator) int32 {
	size := lp.GetSize()
	index := lp.KeyIndex(key, comparator)
	if index >= size || comparator(lp.KeyAt(index), key) != 0 {
		return size
	}
	for i := index; i < size-1; i++ {
		lp.setEntryAt(i, lp.GetItem(i+1))
	}
	lp.SetSize(size - 1)
	return lp.GetSize()
}

// MoveHalfTo moves the upper half of the entries to the freshly split
// recipient on the right
func (lp *BTreeLeafPage) MoveHalfTo(recipient *BTreeLeafPage) {
	common.SH_Assert(recipient.GetSize() == 0, "split recipient must be empty")
	size := lp.GetSize()
	midIdx := size / 2

	items := make([]LeafEntry, 0, size-midIdx)
	for i := midIdx; i < size; i++ {
		items = append(items, lp.GetItem(i))
	}
	recipient.CopyNFrom(items)
	lp.SetSize(midIdx)
}

// CopyNFrom fills an empty node with the given entries
func (lp *BTreeLeafPage) CopyNFrom(items []LeafEntry) {
	for i, item := range items {
		lp.setEntryAt(int32(i), item)
	}
	lp.SetSize(int32(len(items)))
}

// MoveAllTo appends every entry to the recipient on the left and hands over
// the sibling link
func (lp *BTreeLeafPage) MoveAllTo(recipient *BTreeLeafPage) {
	size := lp.GetSize()
	recSize := recipient.GetSize()
	for i := int32(0); i < size; i++ {
		recipient.setEntryAt(recSize+i, lp.GetItem(i))
	}
	lp.SetSize(0)
	recipient.SetSize(recSize + size)
	recipient.SetNextPageId(lp.GetNextPageId())
}

// MoveFirstToEndOf shifts this node's first entry to the tail of the left
// sibling
func (lp *BTreeLeafPage) MoveFirstToEndOf(recipient *BTreeLeafPage) {
	size := lp.GetSize()
	firstItem := lp.GetItem(0)
	for i := int32(1); i < size; i++ {
		lp.setEntryAt(i-1, lp.GetItem(i))
	}
	lp.SetSize(size - 1)
	recipient.CopyLastFrom(firstItem)
}

// CopyLastFrom appends the entry to this node
func (lp *BTreeLeafPage) CopyLastFrom(item LeafEntry) {
	size := lp.GetSize()
	lp.setEntryAt(size, item)
	lp.SetSize(size + 1)
}

// MoveLastToFrontOf shifts this node's last entry to the head of the right
// sibling
func (lp *BTreeLeafPage) MoveLastToFrontOf(recipient *BTreeLeafPage) {
	size := lp.GetSize()
	lastItem := lp.GetItem(size - 1)
	lp.SetSize(size - 1)
	recipient.CopyFirstFrom(lastItem)
}

// CopyFirstFrom prepends the entry to this node
func (lp *BTreeLeafPage) CopyFirstFrom(item LeafEntry) {
	size := lp.GetSize()
	for i := size - 1; i >= 0; i-- {
		lp.setEntryAt(i+1, lp.GetItem(i))
	}
	lp.setEntryAt(0, item)
	lp.SetSize(size + 1)
}
