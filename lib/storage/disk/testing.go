// this code is based on https://github.com/brunocalza/go-bustub

package disk

// DiskManagerTest is the DiskManager implementation used by tests. It rides
// on the in-memory virtual disk manager so tests leave no files behind.
type DiskManagerTest struct {
	DiskManager
}

// NewDiskManagerTest returns a DiskManager instance for testing purposes
func NewDiskManagerTest() DiskManager {
	return &DiskManagerTest{NewVirtualDiskManagerImpl("test.db")}
}
