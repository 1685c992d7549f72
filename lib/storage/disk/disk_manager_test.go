package disk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minatodb/minatodb/lib/common"
	"github.com/minatodb/minatodb/lib/types"
)

func TestVirtualDiskManagerReadWrite(t *testing.T) {
	dm := NewDiskManagerTest()
	defer dm.ShutDown()

	data := bytes.Repeat([]byte{0x5A}, common.PageSize)
	buf := make([]byte, common.PageSize)

	pageId := dm.AllocatePage()
	assert.Equal(t, types.PageID(0), pageId)

	require.NoError(t, dm.WritePage(pageId, data))
	require.NoError(t, dm.ReadPage(pageId, buf))
	assert.Equal(t, data, buf)

	assert.Equal(t, uint64(1), dm.GetNumWrites())
	assert.Equal(t, int64(common.PageSize), dm.Size())
}

func TestVirtualDiskManagerReadPastEnd(t *testing.T) {
	dm := NewDiskManagerTest()
	defer dm.ShutDown()

	buf := make([]byte, common.PageSize)
	assert.Error(t, dm.ReadPage(types.PageID(4), buf))
}

func TestVirtualDiskManagerDeallocate(t *testing.T) {
	dm := NewDiskManagerTest()
	defer dm.ShutDown()

	data := make([]byte, common.PageSize)
	pageId := dm.AllocatePage()
	require.NoError(t, dm.WritePage(pageId, data))

	dm.DeallocatePage(pageId)
	buf := make([]byte, common.PageSize)
	assert.Equal(t, types.DeallocatedPageErr, dm.ReadPage(pageId, buf))
}

func TestVirtualDiskManagerLog(t *testing.T) {
	dm := NewDiskManagerTest()
	defer dm.ShutDown()

	require.NoError(t, dm.WriteLog([]byte("record-1")))
	require.NoError(t, dm.WriteLog([]byte("record-2")))
}
