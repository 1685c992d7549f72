// this code is based on https://github.com/brunocalza/go-bustub

package page

import (
	"fmt"

	"github.com/minatodb/minatodb/lib/types"
)

// RID is the record identifier for the given page identifier and slot number
type RID struct {
	PageId  types.PageID
	SlotNum uint32
}

// NewRID creates a record identifier
func NewRID(pageId types.PageID, slot uint32) *RID {
	return &RID{pageId, slot}
}

// Set sets the record identifier
func (r *RID) Set(pageId types.PageID, slot uint32) {
	r.PageId = pageId
	r.SlotNum = slot
}

// GetPageId gets the page id
func (r *RID) GetPageId() types.PageID {
	return r.PageId
}

// GetSlotNum gets the slot number
func (r *RID) GetSlotNum() uint32 {
	return r.SlotNum
}

func (r *RID) ToString() string {
	return fmt.Sprintf("{%d %d}", r.PageId, r.SlotNum)
}

// Serialize casts the RID to []byte
func (r *RID) Serialize() []byte {
	ret := make([]byte, 0, 8)
	ret = append(ret, r.PageId.Serialize()...)
	ret = append(ret, types.UInt32(r.SlotNum).Serialize()...)
	return ret
}

// NewRIDFromBytes creates a RID from []byte
func NewRIDFromBytes(data []byte) (ret RID) {
	ret.PageId = types.NewPageIDFromBytes(data[0:4])
	ret.SlotNum = uint32(types.NewUInt32FromBytes(data[4:8]))
	return ret
}
