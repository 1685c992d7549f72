package index

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minatodb/minatodb/lib/recovery"
	"github.com/minatodb/minatodb/lib/storage/buffer"
	"github.com/minatodb/minatodb/lib/storage/disk"
	"github.com/minatodb/minatodb/lib/storage/index/index_common"
	"github.com/minatodb/minatodb/lib/storage/page"
	"github.com/minatodb/minatodb/lib/storage/page/btree_page"
	"github.com/minatodb/minatodb/lib/types"
)

func newTestTree(t *testing.T, poolSize uint32, leafMaxSize int32, internalMaxSize int32) (*BPlusTree, buffer.BufferPoolManager) {
	t.Helper()
	dm := disk.NewDiskManagerTest()
	bpm := buffer.NewBufferPoolManager(poolSize, dm, recovery.NewLogManager(dm))
	tree := NewBPlusTree("test_index", bpm, index_common.IntegerKeyComparator, leafMaxSize, internalMaxSize)
	return tree, bpm
}

func ridForKey(key int64) page.RID {
	return page.RID{PageId: types.PageID(int32(key)), SlotNum: uint32(key)}
}

func TestBPlusTreeEmpty(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	assert.True(t, tree.IsEmpty())
	_, found := tree.GetValue(index_common.NewIntegerKey(1))
	assert.False(t, found)

	// removing from an empty tree is a no-op
	tree.Remove(index_common.NewIntegerKey(1))

	itr := tree.Begin()
	assert.True(t, itr.IsEnd())
}

func TestBPlusTreeInsertAndGet(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	for i := int64(1); i <= 5; i++ {
		assert.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}
	assert.False(t, tree.IsEmpty())

	for i := int64(1); i <= 5; i++ {
		rids, found := tree.GetValue(index_common.NewIntegerKey(i))
		require.True(t, found, "key %d must be found", i)
		require.Len(t, rids, 1)
		assert.Equal(t, ridForKey(i), rids[0])
	}

	_, found := tree.GetValue(index_common.NewIntegerKey(42))
	assert.False(t, found)
}

func TestBPlusTreeDuplicateInsert(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)

	first := page.RID{PageId: 7, SlotNum: 3}
	second := page.RID{PageId: 9, SlotNum: 9}

	assert.True(t, tree.Insert(index_common.NewIntegerKey(42), first))
	assert.False(t, tree.Insert(index_common.NewIntegerKey(42), second))

	rids, found := tree.GetValue(index_common.NewIntegerKey(42))
	require.True(t, found)
	require.Len(t, rids, 1)
	// the first inserted value wins
	assert.Equal(t, first, rids[0])
}

func TestBPlusTreeSplitAndScan(t *testing.T) {
	tree, bpm := newTestTree(t, 32, 4, 4)

	for i := int64(1); i <= 10; i++ {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}

	// the tree must have grown beyond a single leaf, with a root of at least
	// two children
	rootPageId := tree.GetRootPageId()
	rootRawPage := bpm.FetchPage(rootPageId)
	require.NotNil(t, rootRawPage)
	rootNode := btree_page.CastPageAsBTreePage(rootRawPage)
	assert.False(t, rootNode.IsLeafPage())
	assert.GreaterOrEqual(t, rootNode.GetSize(), int32(2))
	require.NoError(t, bpm.UnpinPage(rootPageId, false))

	// a full range scan yields 1..10 in order
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, collectKeys(t, tree.Begin()))

	for i := int64(1); i <= 10; i++ {
		rids, found := tree.GetValue(index_common.NewIntegerKey(i))
		require.True(t, found, "key %d must survive the splits", i)
		assert.Equal(t, ridForKey(i), rids[0])
	}
}

func TestBPlusTreeDeleteWithMerges(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)

	for i := int64(1); i <= 10; i++ {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}
	for i := int64(1); i <= 7; i++ {
		tree.Remove(index_common.NewIntegerKey(i))
	}

	for i := int64(1); i <= 7; i++ {
		_, found := tree.GetValue(index_common.NewIntegerKey(i))
		assert.False(t, found, "key %d must be gone", i)
	}
	assert.Equal(t, []int64{8, 9, 10}, collectKeys(t, tree.Begin()))

	// removing the rest empties the tree
	for i := int64(8); i <= 10; i++ {
		tree.Remove(index_common.NewIntegerKey(i))
	}
	assert.True(t, tree.IsEmpty())
}

func TestBPlusTreeInsertRemoveInsert(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)

	for i := int64(1); i <= 20; i++ {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}
	// remove the even keys, then reinsert them
	for i := int64(2); i <= 20; i += 2 {
		tree.Remove(index_common.NewIntegerKey(i))
	}
	for i := int64(2); i <= 20; i += 2 {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}

	expected := make([]int64, 0, 20)
	for i := int64(1); i <= 20; i++ {
		expected = append(expected, i)
	}
	assert.Equal(t, expected, collectKeys(t, tree.Begin()))
}

func TestBPlusTreeReverseInsert(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)

	for i := int64(30); i >= 1; i-- {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}

	expected := make([]int64, 0, 30)
	for i := int64(1); i <= 30; i++ {
		expected = append(expected, i)
	}
	assert.Equal(t, expected, collectKeys(t, tree.Begin()))
}

func TestBPlusTreeIteratorFromKey(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)

	for i := int64(1); i <= 10; i++ {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i*2), ridForKey(i*2)))
	}

	// positioned at the first entry >= 7, which is 8
	assert.Equal(t, []int64{8, 10, 12, 14, 16, 18, 20},
		collectKeys(t, tree.BeginWithKey(index_common.NewIntegerKey(7))))

	// positioned exactly on a stored key
	assert.Equal(t, []int64{12, 14, 16, 18, 20},
		collectKeys(t, tree.BeginWithKey(index_common.NewIntegerKey(12))))

	// past the last key the iterator is exhausted immediately
	itr := tree.BeginWithKey(index_common.NewIntegerKey(100))
	assert.True(t, itr.IsEnd())
}

func TestBPlusTreeRootPersistedInHeaderPage(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	bpm := buffer.NewBufferPoolManager(16, dm, recovery.NewLogManager(dm))

	tree := NewBPlusTree("orders_pk", bpm, index_common.IntegerKeyComparator, 4, 4)
	for i := int64(1); i <= 10; i++ {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}

	// a second handle over the same pool finds the root through the header page
	reopened := NewBPlusTree("orders_pk", bpm, index_common.IntegerKeyComparator, 4, 4)
	assert.Equal(t, tree.GetRootPageId(), reopened.GetRootPageId())
	rids, found := reopened.GetValue(index_common.NewIntegerKey(5))
	require.True(t, found)
	assert.Equal(t, ridForKey(5), rids[0])

	// a different index name starts empty
	other := NewBPlusTree("orders_by_date", bpm, index_common.IntegerKeyComparator, 4, 4)
	assert.True(t, other.IsEmpty())
}

func TestBPlusTreeVarcharKeys(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	bpm := buffer.NewBufferPoolManager(16, dm, recovery.NewLogManager(dm))
	tree := NewBPlusTree("users_by_name", bpm, index_common.BytesKeyComparator, 0, 0)

	names := []string{"frank", "grace", "heidi", "ivan", "judy"}
	for i, name := range names {
		require.True(t, tree.Insert(index_common.NewVarcharKey(name), ridForKey(int64(i))))
	}
	for i, name := range names {
		rids, found := tree.GetValue(index_common.NewVarcharKey(name))
		require.True(t, found, "name %s must be found", name)
		assert.Equal(t, ridForKey(int64(i)), rids[0])
	}
	_, found := tree.GetValue(index_common.NewVarcharKey("mallory"))
	assert.False(t, found)
}

func TestBPlusTreeConcurrentInsert(t *testing.T) {
	tree, _ := newTestTree(t, 64, 0, 0)

	numWorkers := 8
	keysPerWorker := int64(100)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int64) {
			defer wg.Done()
			base := worker * keysPerWorker
			for i := int64(0); i < keysPerWorker; i++ {
				key := base + i
				assert.True(t, tree.Insert(index_common.NewIntegerKey(key), ridForKey(key)))
			}
		}(int64(w))
	}
	wg.Wait()

	total := int64(numWorkers) * keysPerWorker
	for i := int64(0); i < total; i++ {
		rids, found := tree.GetValue(index_common.NewIntegerKey(i))
		require.True(t, found, "key %d must be found after concurrent inserts", i)
		assert.Equal(t, ridForKey(i), rids[0])
	}

	keys := collectKeys(t, tree.Begin())
	require.Len(t, keys, int(total))
	for i, key := range keys {
		assert.Equal(t, int64(i), key)
	}
}

func TestBPlusTreeConcurrentReadWrite(t *testing.T) {
	tree, _ := newTestTree(t, 64, 0, 0)

	for i := int64(0); i < 200; i++ {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}

	var wg sync.WaitGroup
	// writers extend the key space while readers hammer the stable prefix
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker int64) {
			defer wg.Done()
			base := 200 + worker*50
			for i := int64(0); i < 50; i++ {
				key := base + i
				assert.True(t, tree.Insert(index_common.NewIntegerKey(key), ridForKey(key)))
			}
		}(int64(w))
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				for i := int64(0); i < 200; i++ {
					rids, found := tree.GetValue(index_common.NewIntegerKey(i))
					if assert.True(t, found) {
						assert.Equal(t, ridForKey(i), rids[0])
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, collectKeys(t, tree.Begin()), 400)
}

func TestBPlusTreeToGraph(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)
	for i := int64(1); i <= 10; i++ {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}

	var builder strings.Builder
	tree.ToGraph(&builder)
	dot := builder.String()
	assert.Contains(t, dot, "digraph G {")
	assert.Contains(t, dot, "LEAF_")
	assert.Contains(t, dot, "INT_")
}

func TestBPlusTreeInsertFromFile(t *testing.T) {
	tree, _ := newTestTree(t, 32, 4, 4)

	path := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte("3\n1\n2\n5\n4\n"), 0644))
	require.NoError(t, tree.InsertFromFile(path))

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, collectKeys(t, tree.Begin()))

	removePath := filepath.Join(t.TempDir(), "removals.txt")
	require.NoError(t, os.WriteFile(removePath, []byte("2\n4\n"), 0644))
	require.NoError(t, tree.RemoveFromFile(removePath))

	assert.Equal(t, []int64{1, 3, 5}, collectKeys(t, tree.Begin()))
}

func TestBPlusTreeIteratorClose(t *testing.T) {
	tree, _ := newTestTree(t, 16, 4, 4)
	for i := int64(1); i <= 5; i++ {
		require.True(t, tree.Insert(index_common.NewIntegerKey(i), ridForKey(i)))
	}

	itr := tree.Begin()
	done, key, _ := itr.Next()
	require.False(t, done)
	assert.Equal(t, int64(1), key.ToInteger())
	itr.Close()

	// the abandoned scan released its pin, the leaf can be fetched and
	// write latched again
	require.True(t, tree.Insert(index_common.NewIntegerKey(0), ridForKey(0)))
}

func collectKeys(t *testing.T, itr *BPlusTreeIterator) []int64 {
	t.Helper()
	keys := make([]int64, 0)
	for {
		done, key, _ := itr.Next()
		if done {
			break
		}
		keys = append(keys, key.ToInteger())
	}
	return keys
}
