package index

import (
	"github.com/minatodb/minatodb/lib/storage/index/index_common"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/storage/page/btree_page"
	"github.com/minatodb/minatodb/lib/types"
)

/**
 * BPlusTreeIterator walks the leaf chain forward. It holds one pinned, read
 * latched leaf at a time; the latch and pin move over on advancement across
 * leaves and are dropped when the iterator reaches the end or is closed.
 */
type BPlusTreeIterator struct {
	bpm      bufferPoolManagerIF
	leafPage *page.Page
	index    int32
}

// bufferPoolManagerIF is the slice of the buffer pool the iterator needs
type bufferPoolManagerIF interface {
	FetchPage(pageID types.PageID) *page.Page
	UnpinPage(pageID types.PageID, isDirty bool) error
}

// Begin returns an iterator positioned at the first entry of the tree
func (b *BPlusTree) Begin() *BPlusTreeIterator {
	leafRawPage := b.findLeafPageForRead(index_common.GenericKey{}, true)
	return newIterator(b, leafRawPage, 0)
}

// BeginWithKey returns an iterator positioned at the first entry whose key is
// greater or equal to the given key
func (b *BPlusTree) BeginWithKey(key index_common.GenericKey) *BPlusTreeIterator {
	leafRawPage := b.findLeafPageForRead(key, false)
	if leafRawPage == nil {
		return newIterator(b, nil, 0)
	}
	leaf := btree_page.CastPageAsBTreeLeafPage(leafRawPage)
	return newIterator(b, leafRawPage, leaf.KeyIndex(key, b.comparator))
}

func newIterator(b *BPlusTree, leafRawPage *page.Page, index int32) *BPlusTreeIterator {
	itr := &BPlusTreeIterator{bpm: b.bpm, leafPage: leafRawPage, index: index}
	itr.skipExhaustedLeaves()
	return itr
}

// Next returns the entry at the current position and advances. done is true
// when the chain is exhausted; the iterator has released its leaf then.
func (itr *BPlusTreeIterator) Next() (done bool, key *index_common.GenericKey, rid *page.RID) {
	if itr.leafPage == nil {
		return true, nil, nil
	}

	leaf := btree_page.CastPageAsBTreeLeafPage(itr.leafPage)
	curKey := leaf.KeyAt(itr.index)
	curRid := leaf.ValueAt(itr.index)

	itr.index++
	itr.skipExhaustedLeaves()

	return false, &curKey, &curRid
}

// IsEnd reports whether the iterator is at the sentinel position
func (itr *BPlusTreeIterator) IsEnd() bool {
	return itr.leafPage == nil
}

// Close releases the held leaf early, for abandoning an unfinished scan
func (itr *BPlusTreeIterator) Close() {
	if itr.leafPage == nil {
		return
	}
	itr.leafPage.RUnlatch()
	itr.bpm.UnpinPage(itr.leafPage.GetPageId(), false)
	itr.leafPage = nil
}

// skipExhaustedLeaves hops over the leaf chain until the position lands on an
// entry or the chain ends. The current latch is dropped before the next leaf
// is latched so the iterator never holds two leaves.
func (itr *BPlusTreeIterator) skipExhaustedLeaves() {
	for itr.leafPage != nil {
		leaf := btree_page.CastPageAsBTreeLeafPage(itr.leafPage)
		if itr.index < leaf.GetSize() {
			return
		}

		nextPageId := leaf.GetNextPageId()
		itr.leafPage.RUnlatch()
		itr.bpm.UnpinPage(itr.leafPage.GetPageId(), false)
		itr.leafPage = nil
		itr.index = 0

		if nextPageId == types.InvalidPageID {
			return
		}
		nextRawPage := itr.bpm.FetchPage(nextPageId)
		if nextRawPage == nil {
			return
		}
		nextRawPage.RLatch()
		itr.leafPage = nextRawPage
	}
}
