package index

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/storage/buffer"
	"github.com/minatodb/minatodb/lib/storage/index/index_common"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/storage/page/btree_page"
	"github.com/minatodb/minatodb/lib/types"
)

type opType int32

const (
	opRead opType = iota
	opInsert
	opDelete
)

/**
 * BPlusTree is an ordered unique-key index over fixed size keys, built from
 * buffer pool pages. Lookups descend with read latch crabbing, mutators with
 * write latch crabbing: ancestor latches are dropped as soon as the current
 * node cannot split (insert) or underflow (delete).
 *
 * The current root page id is persisted in the header page under the index
 * name and cached in rootPageId guarded by rootLatch.
 */
type BPlusTree struct {
	indexName       string
	rootPageId      types.PageID
	bpm             buffer.BufferPoolManager
	comparator      index_common.KeyComparator
	leafMaxSize     int32
	internalMaxSize int32
	rootLatch       common.ReaderWriterLatch
}

// NewBPlusTree opens the index of the given name, taking its root page id
// from the header page when a record exists. The record itself is written
// when the tree first gets a root. Zero max sizes select the page-capacity
// defaults.
func NewBPlusTree(name string, bpm buffer.BufferPoolManager, comparator index_common.KeyComparator, leafMaxSize int32, internalMaxSize int32) *BPlusTree {
	if leafMaxSize == 0 {
		leafMaxSize = btree_page.LeafPageMaxSize
	}
	if internalMaxSize == 0 {
		internalMaxSize = btree_page.InternalPageMaxSize
	}

	tree := &BPlusTree{
		indexName:       name,
		rootPageId:      types.InvalidPageID,
		bpm:             bpm,
		comparator:      comparator,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootLatch:       common.NewRWLatch(),
	}

	headerRawPage := bpm.FetchPage(common.HeaderPageID)
	if headerRawPage == nil {
		// fresh storage, the header page does not exist yet
		headerRawPage = bpm.NewPage()
		common.SH_Assert(headerRawPage != nil, "failed to allocate the header page")
		common.SH_Assert(headerRawPage.GetPageId() == common.HeaderPageID,
			"the first allocated page must be the header page")
		headerPage := page.CastPageAsHeaderPage(headerRawPage)
		headerPage.Init()
		bpm.UnpinPage(common.HeaderPageID, true)
	} else {
		headerRawPage.RLatch()
		headerPage := page.CastPageAsHeaderPage(headerRawPage)
		if rootId, ok := headerPage.GetRootId(name); ok {
			tree.rootPageId = rootId
		}
		headerRawPage.RUnlatch()
		bpm.UnpinPage(common.HeaderPageID, false)
	}

	return tree
}

// IsEmpty reports whether the tree has no root
func (b *BPlusTree) IsEmpty() bool {
	b.rootLatch.RLock()
	defer b.rootLatch.RUnlock()
	return b.rootPageId == types.InvalidPageID
}

/*****************************************************************************
 * SEARCH
 *****************************************************************************/

// GetValue returns the record ids stored under the key. Unique keys make the
// result at most one entry long.
func (b *BPlusTree) GetValue(key index_common.GenericKey) ([]page.RID, bool) {
	leafRawPage := b.findLeafPageForRead(key, false)
	if leafRawPage == nil {
		return nil, false
	}
	leaf := btree_page.CastPageAsBTreeLeafPage(leafRawPage)
	rid, found := leaf.Lookup(key, b.comparator)
	leafRawPage.RUnlatch()
	b.bpm.UnpinPage(leafRawPage.GetPageId(), false)
	if !found {
		return nil, false
	}
	return []page.RID{rid}, true
}

// findLeafPageForRead descends with read latch crabbing and returns the leaf
// page pinned and read latched. Returns nil when the tree is empty.
func (b *BPlusTree) findLeafPageForRead(key index_common.GenericKey, leftMost bool) *page.Page {
	rawPage := b.latchRootPage(opRead)
	if rawPage == nil {
		return nil
	}

	node := btree_page.CastPageAsBTreePage(rawPage)
	for !node.IsLeafPage() {
		internal := btree_page.CastPageAsBTreeInternalPage(rawPage)
		var childId types.PageID
		if leftMost {
			childId = internal.ValueAt(0)
		} else {
			childId = internal.Lookup(key, b.comparator)
		}

		childRawPage := b.bpm.FetchPage(childId)
		common.SH_Assert(childRawPage != nil, "child page of a latched internal node must be fetchable")
		childRawPage.RLatch()
		rawPage.RUnlatch()
		b.bpm.UnpinPage(rawPage.GetPageId(), false)

		rawPage = childRawPage
		node = btree_page.CastPageAsBTreePage(rawPage)
	}
	return rawPage
}

// latchRootPage fetches and latches the current root, re-validating the root
// page id under the tree latch afterwards. Retries until the fetched page is
// still the root. Returns nil when the tree is empty.
func (b *BPlusTree) latchRootPage(op opType) *page.Page {
	for {
		b.rootLatch.RLock()
		rootId := b.rootPageId
		b.rootLatch.RUnlock()
		if rootId == types.InvalidPageID {
			return nil
		}

		rawPage := b.bpm.FetchPage(rootId)
		if rawPage == nil {
			// the root moved away and its page is gone, take a fresh look
			continue
		}
		if op == opRead {
			rawPage.RLatch()
		} else {
			rawPage.WLatch()
		}

		b.rootLatch.RLock()
		stillRoot := b.rootPageId == rootId
		b.rootLatch.RUnlock()
		if stillRoot {
			return rawPage
		}

		if op == opRead {
			rawPage.RUnlatch()
		} else {
			rawPage.WUnlatch()
		}
		b.bpm.UnpinPage(rootId, false)
	}
}

// findLeafPageForWrite descends with write latch crabbing. All still-latched
// pages (unsafe ancestors plus the leaf) are collected into latchedPages in
// root-to-leaf order. Returns nil when the tree is empty.
func (b *BPlusTree) findLeafPageForWrite(key index_common.GenericKey, op opType, latchedPages *[]*page.Page) *page.Page {
	rawPage := b.latchRootPage(op)
	if rawPage == nil {
		return nil
	}
	*latchedPages = append(*latchedPages, rawPage)

	node := btree_page.CastPageAsBTreePage(rawPage)
	for !node.IsLeafPage() {
		internal := btree_page.CastPageAsBTreeInternalPage(rawPage)
		childId := internal.Lookup(key, b.comparator)

		childRawPage := b.bpm.FetchPage(childId)
		common.SH_Assert(childRawPage != nil, "child page of a latched internal node must be fetchable")
		childRawPage.WLatch()

		childNode := btree_page.CastPageAsBTreePage(childRawPage)
		if b.isSafeNode(childNode, op) {
			b.releaseLatchedPages(latchedPages, false)
		}
		*latchedPages = append(*latchedPages, childRawPage)

		rawPage = childRawPage
		node = childNode
	}
	return rawPage
}

// isSafeNode decides whether the ancestors of the node can be released: for
// insert the node will not split, for delete it will not underflow.
func (b *BPlusTree) isSafeNode(node *btree_page.BTreePage, op opType) bool {
	if op == opInsert {
		if node.IsLeafPage() {
			return node.GetSize() < node.GetMaxSize()-1
		}
		return node.GetSize() < node.GetMaxSize()
	}

	// delete
	if node.IsRootPage() {
		if node.IsLeafPage() {
			return true
		}
		return node.GetSize() > 2
	}
	if node.IsLeafPage() {
		leaf := btree_page.CastBTreePageAsLeafPage(node)
		return node.GetSize() > leaf.GetMinSize()
	}
	internal := btree_page.CastBTreePageAsInternalPage(node)
	return node.GetSize() > internal.GetMinSize()
}

// releaseLatchedPages unlatches and unpins the collected pages bottom-up
func (b *BPlusTree) releaseLatchedPages(latchedPages *[]*page.Page, dirty bool) {
	pages := *latchedPages
	for i := len(pages) - 1; i >= 0; i-- {
		pages[i].WUnlatch()
		b.bpm.UnpinPage(pages[i].GetPageId(), dirty)
	}
	*latchedPages = pages[:0]
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

// Insert adds the pair to the tree. Returns false on a duplicate key.
func (b *BPlusTree) Insert(key index_common.GenericKey, rid page.RID) bool {
	for {
		b.rootLatch.WLock()
		if b.rootPageId == types.InvalidPageID {
			b.startNewTree(key, rid)
			b.rootLatch.WUnlock()
			return true
		}
		b.rootLatch.WUnlock()

		inserted, retry := b.insertIntoLeaf(key, rid)
		if !retry {
			return inserted
		}
	}
}

// startNewTree allocates the first leaf and registers it as root.
// Caller holds the tree latch exclusively.
func (b *BPlusTree) startNewTree(key index_common.GenericKey, rid page.RID) {
	rootRawPage := b.bpm.NewPage()
	if rootRawPage == nil {
		panic("out of memory: failed to allocate the first leaf page")
	}
	rootLeaf := btree_page.CastPageAsBTreeLeafPage(rootRawPage)
	rootLeaf.Init(rootRawPage.GetPageId(), types.InvalidPageID, b.leafMaxSize)
	rootLeaf.Insert(key, rid, b.comparator)

	b.rootPageId = rootRawPage.GetPageId()
	b.updateRootPageId()
	b.bpm.UnpinPage(rootRawPage.GetPageId(), true)
}

// insertIntoLeaf descends to the target leaf and inserts, splitting upward as
// needed. The retry result is true when the tree emptied out underneath us.
func (b *BPlusTree) insertIntoLeaf(key index_common.GenericKey, rid page.RID) (inserted bool, retry bool) {
	latchedPages := make([]*page.Page, 0, 8)
	leafRawPage := b.findLeafPageForWrite(key, opInsert, &latchedPages)
	if leafRawPage == nil {
		return false, true
	}

	leaf := btree_page.CastPageAsBTreeLeafPage(leafRawPage)
	size := leaf.GetSize()
	newSize := leaf.Insert(key, rid, b.comparator)
	if newSize == size {
		// duplicate key
		b.releaseLatchedPages(&latchedPages, false)
		return false, false
	}

	if newSize == leaf.GetMaxSize() {
		newLeaf := b.splitLeaf(leaf)
		popupKey := newLeaf.KeyAt(0)
		b.insertIntoParent(&leaf.BTreePage, popupKey, &newLeaf.BTreePage)
		b.bpm.UnpinPage(newLeaf.GetTreePageId(), true)
	}

	b.releaseLatchedPages(&latchedPages, true)
	return true, false
}

// splitLeaf moves the upper half of the leaf into a fresh right sibling and
// splices it into the leaf chain. The new page comes back pinned; it is not
// reachable by other workers until insertIntoParent links it.
func (b *BPlusTree) splitLeaf(leaf *btree_page.BTreeLeafPage) *btree_page.BTreeLeafPage {
	newRawPage := b.bpm.NewPage()
	if newRawPage == nil {
		panic("out of memory: failed to allocate a leaf page for split")
	}
	newLeaf := btree_page.CastPageAsBTreeLeafPage(newRawPage)
	newLeaf.Init(newRawPage.GetPageId(), leaf.GetParentPageId(), b.leafMaxSize)
	leaf.MoveHalfTo(newLeaf)
	newLeaf.SetNextPageId(leaf.GetNextPageId())
	leaf.SetNextPageId(newLeaf.GetTreePageId())
	return newLeaf
}

// splitInternal moves the upper half of an overflowing internal node into a
// fresh sibling. The first key of the new node is blanked into the dummy slot.
func (b *BPlusTree) splitInternal(internal *btree_page.BTreeInternalPage) *btree_page.BTreeInternalPage {
	newRawPage := b.bpm.NewPage()
	if newRawPage == nil {
		panic("out of memory: failed to allocate an internal page for split")
	}
	newInternal := btree_page.CastPageAsBTreeInternalPage(newRawPage)
	newInternal.Init(newRawPage.GetPageId(), internal.GetParentPageId(), b.internalMaxSize)
	internal.MoveHalfTo(newInternal, b.bpm)
	newInternal.SetKeyAt(0, index_common.GenericKey{})
	return newInternal
}

// insertIntoParent links a freshly split node into the tree. The ancestors of
// oldNode that can still change are write latched by the running operation.
func (b *BPlusTree) insertIntoParent(oldNode *btree_page.BTreePage, key index_common.GenericKey, newNode *btree_page.BTreePage) {
	if oldNode.IsRootPage() {
		newRootRawPage := b.bpm.NewPage()
		if newRootRawPage == nil {
			panic("out of memory: failed to allocate a new root page")
		}
		newRoot := btree_page.CastPageAsBTreeInternalPage(newRootRawPage)
		newRoot.Init(newRootRawPage.GetPageId(), types.InvalidPageID, b.internalMaxSize)
		newRoot.PopulateNewRoot(oldNode.GetTreePageId(), key, newNode.GetTreePageId())
		oldNode.SetParentPageId(newRoot.GetTreePageId())
		newNode.SetParentPageId(newRoot.GetTreePageId())

		b.rootLatch.WLock()
		b.rootPageId = newRoot.GetTreePageId()
		b.updateRootPageId()
		b.rootLatch.WUnlock()

		b.bpm.UnpinPage(newRoot.GetTreePageId(), true)
		return
	}

	parentRawPage := b.bpm.FetchPage(oldNode.GetParentPageId())
	common.SH_Assert(parentRawPage != nil, "parent of a splitting node must be fetchable")
	parent := btree_page.CastPageAsBTreeInternalPage(parentRawPage)
	parent.InsertNodeAfter(oldNode.GetTreePageId(), key, newNode.GetTreePageId())
	newNode.SetParentPageId(parent.GetTreePageId())

	if parent.GetSize() > b.internalMaxSize {
		midIdx := parent.GetSize() / 2
		popupKey := parent.KeyAt(midIdx)
		newInternal := b.splitInternal(parent)
		b.insertIntoParent(&parent.BTreePage, popupKey, &newInternal.BTreePage)
		b.bpm.UnpinPage(newInternal.GetTreePageId(), true)
	}

	b.bpm.UnpinPage(parent.GetTreePageId(), true)
}

/*****************************************************************************
 * REMOVE
 *****************************************************************************/

// Remove deletes the pair of the key, rebalancing underflowing nodes by
// redistribution or merge.
func (b *BPlusTree) Remove(key index_common.GenericKey) {
	latchedPages := make([]*page.Page, 0, 8)
	leafRawPage := b.findLeafPageForWrite(key, opDelete, &latchedPages)
	if leafRawPage == nil {
		return
	}

	deletedPageIds := make([]types.PageID, 0)

	leaf := btree_page.CastPageAsBTreeLeafPage(leafRawPage)
	size := leaf.GetSize()
	newSize := leaf.RemoveAndDeleteRecord(key, b.comparator)
	if newSize == size {
		// key was not present
		b.releaseLatchedPages(&latchedPages, false)
		return
	}

	if leaf.IsRootPage() {
		b.adjustRoot(&leaf.BTreePage, &deletedPageIds)
	} else if newSize < leaf.GetMinSize() {
		b.coalesceOrRedistributeLeaf(leaf, &deletedPageIds)
	}

	b.releaseLatchedPages(&latchedPages, true)

	// pins are gone, the merged-away pages can leave the pool
	for _, pageId := range deletedPageIds {
		if err := b.bpm.DeletePage(pageId); err != nil {
			common.Logger.Warnf("delete of merged page %d failed: %v", pageId, err)
		}
	}
}

// coalesceOrRedistributeLeaf rebalances an underflowing leaf against a
// sibling. The parent is write latched by the running operation because the
// leaf was not safe for delete.
func (b *BPlusTree) coalesceOrRedistributeLeaf(leaf *btree_page.BTreeLeafPage, deletedPageIds *[]types.PageID) {
	parentRawPage := b.bpm.FetchPage(leaf.GetParentPageId())
	common.SH_Assert(parentRawPage != nil, "parent of an underflowing node must be fetchable")
	parent := btree_page.CastPageAsBTreeInternalPage(parentRawPage)
	nodeIdx := parent.ValueIndex(leaf.GetTreePageId())
	common.SH_Assert(nodeIdx != -1, "underflowing leaf must be linked from its parent")

	// prefer the right sibling through the leaf chain, provided it hangs off
	// the same parent
	siblingOnRight := nodeIdx+1 < parent.GetSize() && parent.ValueAt(nodeIdx+1) == leaf.GetNextPageId()
	var siblingIdx int32
	if siblingOnRight {
		siblingIdx = nodeIdx + 1
	} else {
		siblingIdx = nodeIdx - 1
	}
	siblingRawPage := b.bpm.FetchPage(parent.ValueAt(siblingIdx))
	common.SH_Assert(siblingRawPage != nil, "sibling of an underflowing node must be fetchable")
	siblingRawPage.WLatch()
	sibling := btree_page.CastPageAsBTreeLeafPage(siblingRawPage)

	if leaf.GetSize()+sibling.GetSize() >= leaf.GetMaxSize() {
		// redistribute one boundary entry and patch the parent separator
		if siblingOnRight {
			sibling.MoveFirstToEndOf(leaf)
			parent.SetKeyAt(siblingIdx, sibling.KeyAt(0))
		} else {
			sibling.MoveLastToFrontOf(leaf)
			parent.SetKeyAt(nodeIdx, leaf.KeyAt(0))
		}
	} else {
		// coalesce: merge the right node into the left one
		var leftLeaf, rightLeaf *btree_page.BTreeLeafPage
		var removeIdx int32
		if siblingOnRight {
			leftLeaf, rightLeaf = leaf, sibling
			removeIdx = siblingIdx
		} else {
			leftLeaf, rightLeaf = sibling, leaf
			removeIdx = nodeIdx
		}
		rightLeaf.MoveAllTo(leftLeaf)
		parent.Remove(removeIdx)
		*deletedPageIds = append(*deletedPageIds, rightLeaf.GetTreePageId())

		if parent.IsRootPage() {
			if parent.GetSize() == 1 {
				b.adjustRoot(&parent.BTreePage, deletedPageIds)
			}
		} else if parent.GetSize() < parent.GetMinSize() {
			b.coalesceOrRedistributeInternal(parent, deletedPageIds)
		}
	}

	siblingRawPage.WUnlatch()
	b.bpm.UnpinPage(siblingRawPage.GetPageId(), true)
	b.bpm.UnpinPage(parentRawPage.GetPageId(), true)
}

// coalesceOrRedistributeInternal rebalances an underflowing internal node.
// The separator key travels down on merge and rotates on redistribution.
func (b *BPlusTree) coalesceOrRedistributeInternal(node *btree_page.BTreeInternalPage, deletedPageIds *[]types.PageID) {
	parentRawPage := b.bpm.FetchPage(node.GetParentPageId())
	common.SH_Assert(parentRawPage != nil, "parent of an underflowing node must be fetchable")
	parent := btree_page.CastPageAsBTreeInternalPage(parentRawPage)
	nodeIdx := parent.ValueIndex(node.GetTreePageId())
	common.SH_Assert(nodeIdx != -1, "underflowing node must be linked from its parent")

	siblingOnRight := nodeIdx+1 < parent.GetSize()
	var siblingIdx int32
	if siblingOnRight {
		siblingIdx = nodeIdx + 1
	} else {
		siblingIdx = nodeIdx - 1
	}
	siblingRawPage := b.bpm.FetchPage(parent.ValueAt(siblingIdx))
	common.SH_Assert(siblingRawPage != nil, "sibling of an underflowing node must be fetchable")
	siblingRawPage.WLatch()
	sibling := btree_page.CastPageAsBTreeInternalPage(siblingRawPage)

	if node.GetSize()+sibling.GetSize() > node.GetMaxSize() {
		if siblingOnRight {
			newSeparator := sibling.KeyAt(1)
			sibling.MoveFirstToEndOf(node, parent.KeyAt(siblingIdx), b.bpm)
			parent.SetKeyAt(siblingIdx, newSeparator)
		} else {
			newSeparator := sibling.KeyAt(sibling.GetSize() - 1)
			sibling.MoveLastToFrontOf(node, parent.KeyAt(nodeIdx), b.bpm)
			parent.SetKeyAt(nodeIdx, newSeparator)
		}
	} else {
		var leftNode, rightNode *btree_page.BTreeInternalPage
		var removeIdx int32
		if siblingOnRight {
			leftNode, rightNode = node, sibling
			removeIdx = siblingIdx
		} else {
			leftNode, rightNode = sibling, node
			removeIdx = nodeIdx
		}
		rightNode.MoveAllTo(leftNode, parent.KeyAt(removeIdx), b.bpm)
		parent.Remove(removeIdx)
		*deletedPageIds = append(*deletedPageIds, rightNode.GetTreePageId())

		if parent.IsRootPage() {
			if parent.GetSize() == 1 {
				b.adjustRoot(&parent.BTreePage, deletedPageIds)
			}
		} else if parent.GetSize() < parent.GetMinSize() {
			b.coalesceOrRedistributeInternal(parent, deletedPageIds)
		}
	}

	siblingRawPage.WUnlatch()
	b.bpm.UnpinPage(siblingRawPage.GetPageId(), true)
	b.bpm.UnpinPage(parentRawPage.GetPageId(), true)
}

// adjustRoot handles the two shrink cases of the root: an internal root left
// with a single child promotes that child, an emptied leaf root clears the
// tree.
func (b *BPlusTree) adjustRoot(oldRoot *btree_page.BTreePage, deletedPageIds *[]types.PageID) {
	if !oldRoot.IsLeafPage() && oldRoot.GetSize() == 1 {
		oldRootInternal := btree_page.CastBTreePageAsInternalPage(oldRoot)
		childPageId := oldRootInternal.RemoveAndReturnOnlyChild()

		childRawPage := b.bpm.FetchPage(childPageId)
		common.SH_Assert(childRawPage != nil, "the promoted child must be fetchable")
		childNode := btree_page.CastPageAsBTreePage(childRawPage)
		childNode.SetParentPageId(types.InvalidPageID)
		b.bpm.UnpinPage(childPageId, true)

		b.rootLatch.WLock()
		b.rootPageId = childPageId
		b.updateRootPageId()
		b.rootLatch.WUnlock()

		*deletedPageIds = append(*deletedPageIds, oldRoot.GetTreePageId())
		return
	}

	if oldRoot.IsLeafPage() && oldRoot.GetSize() == 0 {
		b.rootLatch.WLock()
		b.rootPageId = types.InvalidPageID
		b.updateRootPageId()
		b.rootLatch.WUnlock()

		*deletedPageIds = append(*deletedPageIds, oldRoot.GetTreePageId())
	}
}

/*****************************************************************************
 * UTILITIES AND DEBUG
 *****************************************************************************/

// updateRootPageId persists the cached root page id into the header page.
// Caller holds the tree latch.
func (b *BPlusTree) updateRootPageId() {
	headerRawPage := b.bpm.FetchPage(common.HeaderPageID)
	common.SH_Assert(headerRawPage != nil, "the header page must be fetchable")
	headerRawPage.WLatch()
	headerPage := page.CastPageAsHeaderPage(headerRawPage)
	if !headerPage.UpdateRecord(b.indexName, b.rootPageId) {
		headerPage.InsertRecord(b.indexName, b.rootPageId)
	}
	headerRawPage.WUnlatch()
	b.bpm.UnpinPage(common.HeaderPageID, true)
}

// FindLeafPage descends to the leaf containing the key (or the leftmost leaf)
// and returns it pinned. Test helper.
func (b *BPlusTree) FindLeafPage(key index_common.GenericKey, leftMost bool) *page.Page {
	leafRawPage := b.findLeafPageForRead(key, leftMost)
	if leafRawPage == nil {
		return nil
	}
	leafRawPage.RUnlatch()
	return leafRawPage
}

// GetRootPageId exposes the cached root page id. Test helper.
func (b *BPlusTree) GetRootPageId() types.PageID {
	b.rootLatch.RLock()
	defer b.rootLatch.RUnlock()
	return b.rootPageId
}

// ToGraph writes a GraphViz dot rendering of the whole tree. Debug helper,
// single threaded use only.
func (b *BPlusTree) ToGraph(out io.Writer) {
	fmt.Fprintf(out, "digraph G {\n")
	b.rootLatch.RLock()
	rootId := b.rootPageId
	b.rootLatch.RUnlock()
	if rootId != types.InvalidPageID {
		b.toGraphPage(rootId, out)
	}
	fmt.Fprintf(out, "}\n")
}

func (b *BPlusTree) toGraphPage(pageId types.PageID, out io.Writer) {
	rawPage := b.bpm.FetchPage(pageId)
	common.SH_Assert(rawPage != nil, "page of a linked node must be fetchable")
	node := btree_page.CastPageAsBTreePage(rawPage)
	if node.IsLeafPage() {
		leaf := btree_page.CastPageAsBTreeLeafPage(rawPage)
		fmt.Fprintf(out, "LEAF_%d [shape=record label=\"", pageId)
		for i := int32(0); i < leaf.GetSize(); i++ {
			if i > 0 {
				fmt.Fprintf(out, "|")
			}
			fmt.Fprintf(out, "%d", leaf.KeyAt(i).ToInteger())
		}
		fmt.Fprintf(out, "\"];\n")
		if leaf.GetNextPageId() != types.InvalidPageID {
			fmt.Fprintf(out, "LEAF_%d -> LEAF_%d;\n", pageId, leaf.GetNextPageId())
		}
	} else {
		internal := btree_page.CastPageAsBTreeInternalPage(rawPage)
		fmt.Fprintf(out, "INT_%d [shape=record label=\"", pageId)
		for i := int32(0); i < internal.GetSize(); i++ {
			if i > 0 {
				fmt.Fprintf(out, "|")
			}
			if i == 0 {
				fmt.Fprintf(out, "*")
			} else {
				fmt.Fprintf(out, "%d", internal.KeyAt(i).ToInteger())
			}
		}
		fmt.Fprintf(out, "\"];\n")
		for i := int32(0); i < internal.GetSize(); i++ {
			childId := internal.ValueAt(i)
			prefix := "INT"
			childRawPage := b.bpm.FetchPage(childId)
			if btree_page.CastPageAsBTreePage(childRawPage).IsLeafPage() {
				prefix = "LEAF"
			}
			b.bpm.UnpinPage(childId, false)
			fmt.Fprintf(out, "INT_%d -> %s_%d;\n", pageId, prefix, childId)
			b.toGraphPage(childId, out)
		}
	}
	b.bpm.UnpinPage(pageId, false)
}

// InsertFromFile bulk loads integer keys, one per line. Test helper.
func (b *BPlusTree) InsertFromFile(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		keyVal, err := strconv.ParseInt(scanner.Text(), 10, 64)
		if err != nil {
			continue
		}
		key := index_common.NewIntegerKey(keyVal)
		rid := page.RID{PageId: types.PageID(int32(keyVal)), SlotNum: uint32(keyVal)}
		b.Insert(key, rid)
	}
	return scanner.Err()
}

// RemoveFromFile bulk removes integer keys, one per line. Test helper.
func (b *BPlusTree) RemoveFromFile(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		keyVal, err := strconv.ParseInt(scanner.Text(), 10, 64)
		if err != nil {
			continue
		}
		b.Remove(index_common.NewIntegerKey(keyVal))
	}
	return scanner.Err()
}
