package btree_page

import (
	"unsafe"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/storage/buffer"
	"github.com/minatodb/minatodb/lib/storage/index/index_common"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

// Internal page format, after the shared node header:
//
//	----------------------------------------------------------------------------
//	| NodeHeader (24) | Entry_1 | Entry_2 | ... |
//	----------------------------------------------------------------------------
//	Entry format:
//	----------------------------------------------------------------------------
//	| Key (8) | ChildPageId (4) |
//	----------------------------------------------------------------------------
//
// The key of Entry_1 is a dummy and never compared. Entry_i's child covers
// the key range [Entry_i.Key, Entry_i+1.Key).
const sizeInternalHeader = sizeBTreePageHeader
const sizeInternalEntry = uint32(index_common.KeySize + 4)

// InternalPageMaxSize is the entry capacity when no smaller max size is requested
const InternalPageMaxSize = int32((common.PageSize-sizeInternalHeader)/sizeInternalEntry) - 1

// InternalEntry is one (key, child page id) pair of an internal node
type InternalEntry struct {
	Key   index_common.GenericKey
	Child types.PageID
}

type BTreeInternalPage struct {
	BTreePage
}

// CastPageAsBTreeInternalPage casts the abstract Page struct into BTreeInternalPage
func CastPageAsBTreeInternalPage(page *page.Page) *BTreeInternalPage {
	if page == nil {
		return nil
	}
	return (*BTreeInternalPage)(unsafe.Pointer(page))
}

// CastBTreePageAsInternalPage narrows a header view into the internal variant
func CastBTreePageAsInternalPage(bp *BTreePage) *BTreeInternalPage {
	return (*BTreeInternalPage)(unsafe.Pointer(bp))
}

// Init sets up a freshly allocated internal node
func (ip *BTreeInternalPage) Init(pageId types.PageID, parentId types.PageID, maxSize int32) {
	ip.SetPageType(INTERNAL_PAGE)
	ip.SetTreePageId(pageId)
	ip.SetParentPageId(parentId)
	if maxSize == 0 {
		maxSize = InternalPageMaxSize
	}
	ip.SetMaxSize(maxSize)
	ip.SetSize(0)
}

// GetMinSize is the underflow bound, the ceiling of half the max size
func (ip *BTreeInternalPage) GetMinSize() int32 {
	return (ip.GetMaxSize() + 1) / 2
}

func (ip *BTreeInternalPage) entryOffset(index int32) uint32 {
	return sizeInternalHeader + uint32(index)*sizeInternalEntry
}

// KeyAt returns the key stored at the given array offset
func (ip *BTreeInternalPage) KeyAt(index int32) index_common.GenericKey {
	offset := ip.entryOffset(index)
	return index_common.NewGenericKeyFromBytes(ip.Data()[offset:])
}

func (ip *BTreeInternalPage) SetKeyAt(index int32, key index_common.GenericKey) {
	ip.Copy(ip.entryOffset(index), key.Serialize())
}

// ValueAt returns the child page id stored at the given array offset
func (ip *BTreeInternalPage) ValueAt(index int32) types.PageID {
	offset := ip.entryOffset(index) + index_common.KeySize
	return types.NewPageIDFromBytes(ip.Data()[offset:])
}

func (ip *BTreeInternalPage) SetValueAt(index int32, value types.PageID) {
	ip.Copy(ip.entryOffset(index)+index_common.KeySize, value.Serialize())
}

func (ip *BTreeInternalPage) getEntryAt(index int32) InternalEntry {
	return InternalEntry{ip.KeyAt(index), ip.ValueAt(index)}
}

func (ip *BTreeInternalPage) setEntryAt(index int32, entry InternalEntry) {
	offset := ip.entryOffset(index)
	ip.Copy(offset, entry.Key.Serialize())
	ip.Copy(offset+index_common.KeySize, entry.Child.Serialize())
}

// ValueIndex returns the array offset whose child equals value, -1 when absent
func (ip *BTreeInternalPage) ValueIndex(value types.PageID) int32 {
	size := ip.GetSize()
	for i := int32(0); i < size; i++ {
		if ip.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// keyIndexFirstGreater finds the first index whose key is strictly greater
// than the given key. The dummy key at index 0 is skipped. Returns GetSize()
// when all keys are less or equal.
func (ip *BTreeInternalPage) keyIndexFirstGreater(key index_common.GenericKey, comparator index_common.KeyComparator) int32 {
	left := int32(1)
	right := ip.GetSize()
	for left < right {
		mid := left + (right-left)/2
		if comparator(ip.KeyAt(mid), key) <= 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// Lookup returns the child page id whose range contains the key
func (ip *BTreeInternalPage) Lookup(key index_common.GenericKey, comparator index_common.KeyComparator) types.PageID {
	index := ip.keyIndexFirstGreater(key, comparator)
	return ip.ValueAt(index - 1)
}

// PopulateNewRoot installs the two children of a freshly created root
func (ip *BTreeInternalPage) PopulateNewRoot(oldValue types.PageID, newKey index_common.GenericKey, newValue types.PageID) {
	ip.setEntryAt(0, InternalEntry{index_common.GenericKey{}, oldValue})
	ip.setEntryAt(1, InternalEntry{newKey, newValue})
	ip.SetSize(2)
}

// InsertNodeAfter inserts the pair right after the entry whose child equals
// oldValue. Returns the size after the insert.
func (ip *BTreeInternalPage) InsertNodeAfter(oldValue types.PageID, newKey index_common.GenericKey, newValue types.PageID) int32 {
	size := ip.GetSize()
	index := ip.ValueIndex(oldValue)
	if index == -1 {
		return size
	}
	// move the pairs backward
	for i := size - 1; i > index; i-- {
		ip.setEntryAt(i+1, ip.getEntryAt(i))
	}
	ip.setEntryAt(index+1, InternalEntry{newKey, newValue})
	ip.SetSize(size + 1)
	return ip.GetSize()
}

// MoveHalfTo moves the upper half of the entries to the freshly split
// recipient, re-parenting the moved children
func (ip *BTreeInternalPage) MoveHalfTo(recipient *BTreeInternalPage, bpm buffer.BufferPoolManager) {
	common.SH_Assert(recipient.GetSize() == 0, "split recipient must be empty")
	size := ip.GetSize()
	midIdx := size / 2

	items := make([]InternalEntry, 0, size-midIdx)
	for i := midIdx; i < size; i++ {
		items = append(items, ip.getEntryAt(i))
	}
	recipient.CopyNFrom(items, bpm)
	ip.SetSize(midIdx)
}

// CopyNFrom fills an empty node with the given entries. The moved children
// are adopted by rewriting their parent page id.
func (ip *BTreeInternalPage) CopyNFrom(items []InternalEntry, bpm buffer.BufferPoolManager) {
	for i, item := range items {
		ip.setEntryAt(int32(i), item)
		childPage := bpm.FetchPage(item.Child)
		common.SH_Assert(childPage != nil, "child page of moved entry must be fetchable")
		childNode := CastPageAsBTreePage(childPage)
		childNode.SetParentPageId(ip.GetTreePageId())
		bpm.UnpinPage(item.Child, true)
	}
	ip.SetSize(int32(len(items)))
}

// Remove deletes the entry at the given array offset
func (ip *BTreeInternalPage) Remove(index int32) {
	size := ip.GetSize()
	for i := index; i < size-1; i++ {
		ip.setEntryAt(i, ip.getEntryAt(i+1))
	}
	ip.SetSize(size - 1)
}

// RemoveAndReturnOnlyChild empties a single-child root and hands back the child
func (ip *BTreeInternalPage) RemoveAndReturnOnlyChild() types.PageID {
	childPageId := ip.ValueAt(0)
	ip.SetSize(0)
	return childPageId
}

// MoveAllTo merges every entry into the recipient on the left. The parent's
// separator key of this node comes down as the first moved key.
func (ip *BTreeInternalPage) MoveAllTo(recipient *BTreeInternalPage, middleKey index_common.GenericKey, bpm buffer.BufferPoolManager) {
	ip.SetKeyAt(0, middleKey)
	size := ip.GetSize()
	recSize := recipient.GetSize()
	for i := int32(0); i < size; i++ {
		recipient.setEntryAt(recSize+i, ip.getEntryAt(i))
	}
	ip.SetSize(0)
	recipient.SetSize(recSize + size)
	// adopt the moved children
	for i := recSize; i < recSize+size; i++ {
		childPageId := recipient.ValueAt(i)
		childPage := bpm.FetchPage(childPageId)
		common.SH_Assert(childPage != nil, "child page of merged entry must be fetchable")
		childNode := CastPageAsBTreePage(childPage)
		childNode.SetParentPageId(recipient.GetTreePageId())
		bpm.UnpinPage(childPageId, true)
	}
}

// MoveFirstToEndOf shifts this node's first entry to the tail of the left
// sibling. The separator key comes down into the moved entry and the new
// first key becomes the dummy.
func (ip *BTreeInternalPage) MoveFirstToEndOf(recipient *BTreeInternalPage, middleKey index_common.GenericKey, bpm buffer.BufferPoolManager) {
	size := ip.GetSize()
	ip.SetKeyAt(0, middleKey)
	recipient.CopyLastFrom(ip.getEntryAt(0), bpm)
	for i := int32(1); i < size; i++ {
		ip.setEntryAt(i-1, ip.getEntryAt(i))
	}
	ip.SetKeyAt(0, index_common.GenericKey{})
	ip.SetSize(size - 1)
}

// CopyLastFrom appends the entry and adopts its child
func (ip *BTreeInternalPage) CopyLastFrom(entry InternalEntry, bpm buffer.BufferPoolManager) {
	size := ip.GetSize()
	ip.setEntryAt(size, entry)
	ip.SetSize(size + 1)
	childPage := bpm.FetchPage(entry.Child)
	common.SH_Assert(childPage != nil, "child page of moved entry must be fetchable")
	childNode := CastPageAsBTreePage(childPage)
	childNode.SetParentPageId(ip.GetTreePageId())
	bpm.UnpinPage(entry.Child, true)
}

// MoveLastToFrontOf shifts this node's last entry to the head of the right
// sibling. The separator key comes down as the sibling's former dummy key.
func (ip *BTreeInternalPage) MoveLastToFrontOf(recipient *BTreeInternalPage, middleKey index_common.GenericKey, bpm buffer.BufferPoolManager) {
	recipient.SetKeyAt(0, middleKey)
	size := ip.GetSize()
	lastItem := ip.getEntryAt(size - 1)
	ip.SetSize(size - 1)
	recipient.CopyFirstFrom(lastItem, bpm)
}

// CopyFirstFrom prepends the entry, blanks its key into the dummy slot and
// adopts its child
func (ip *BTreeInternalPage) CopyFirstFrom(entry InternalEntry, bpm buffer.BufferPoolManager) {
	size := ip.GetSize()
	for i := size - 1; i >= 0; i-- {
		ip.setEntryAt(i+1, ip.getEntryAt(i))
	}
	ip.setEntryAt(0, InternalEntry{index_common.GenericKey{}, entry.Child})
	ip.SetSize(size + 1)
	childPage := bpm.FetchPage(entry.Child)
	common.SH_Assert(childPage != nil, "child page of moved entry must be fetchable")
	childNode := CastPageAsBTreePage(childPage)
	childNode.SetParentPageId(ip.GetTreePageId())
	bpm.UnpinPage(entry.Child, true)
}
