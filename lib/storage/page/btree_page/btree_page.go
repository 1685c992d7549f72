package btree_page

import (
	"unsafe"

	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/types"
)

// IndexPageType is the persisted tag that tells the two node variants apart.
type IndexPageType int32

const (
	INVALID_INDEX_PAGE IndexPageType = iota
	LEAF_PAGE
	INTERNAL_PAGE
)

// Both node variants share this header at the head of the page bytes:
//
//	----------------------------------------------------------------------------
//	| PageType (4) | LSN (4) | CurrentSize (4) | MaxSize (4) |
//	----------------------------------------------------------------------------
//	| ParentPageId (4) | PageId (4) |
//	----------------------------------------------------------------------------
const offsetPageType = uint32(0)
const offsetSize = uint32(8)
const offsetMaxSize = uint32(12)
const offsetParentPageId = uint32(16)
const offsetPageId = uint32(20)

const sizeBTreePageHeader = uint32(24)

// BTreePage is the header view shared by leaf and internal pages
type BTreePage struct {
	page.Page
}

// CastPageAsBTreePage casts the abstract Page struct into BTreePage
func CastPageAsBTreePage(page *page.Page) *BTreePage {
	if page == nil {
		return nil
	}
	return (*BTreePage)(unsafe.Pointer(page))
}

func (bp *BTreePage) GetPageType() IndexPageType {
	return IndexPageType(types.NewInt32FromBytes(bp.Data()[offsetPageType:]))
}

func (bp *BTreePage) SetPageType(pageType IndexPageType) {
	bp.Copy(offsetPageType, types.Int32(pageType).Serialize())
}

func (bp *BTreePage) IsLeafPage() bool {
	return bp.GetPageType() == LEAF_PAGE
}

func (bp *BTreePage) IsRootPage() bool {
	return bp.GetParentPageId() == types.InvalidPageID
}

func (bp *BTreePage) GetSize() int32 {
	return int32(types.NewInt32FromBytes(bp.Data()[offsetSize:]))
}

func (bp *BTreePage) SetSize(size int32) {
	bp.Copy(offsetSize, types.Int32(size).Serialize())
}

func (bp *BTreePage) IncreaseSize(amount int32) {
	bp.SetSize(bp.GetSize() + amount)
}

func (bp *BTreePage) GetMaxSize() int32 {
	return int32(types.NewInt32FromBytes(bp.Data()[offsetMaxSize:]))
}

func (bp *BTreePage) SetMaxSize(maxSize int32) {
	bp.Copy(offsetMaxSize, types.Int32(maxSize).Serialize())
}

func (bp *BTreePage) GetParentPageId() types.PageID {
	return types.NewPageIDFromBytes(bp.Data()[offsetParentPageId:])
}

func (bp *BTreePage) SetParentPageId(parentPageId types.PageID) {
	bp.Copy(offsetParentPageId, parentPageId.Serialize())
}

// GetTreePageId reads the page id persisted in the node header
func (bp *BTreePage) GetTreePageId() types.PageID {
	return types.NewPageIDFromBytes(bp.Data()[offsetPageId:])
}

func (bp *BTreePage) SetTreePageId(pageId types.PageID) {
	bp.Copy(offsetPageId, pageId.Serialize())
}
