package buffer

import (
	"container/list"

	"github.com/sasha-s/go-deadlock"
)

// FrameID is the type for frame id
type FrameID uint32

/**
 * LRUReplacer tracks the frames whose pin count dropped to zero and elects the
 * least recently unpinned one as the eviction victim.
 */
type LRUReplacer struct {
	// front is most recently unpinned, back is the victim end
	lruList  *list.List
	frameMap map[FrameID]*list.Element
	capacity uint32
	mutex    *deadlock.Mutex
}

// NewLRUReplacer instantiates a new LRU replacer
func NewLRUReplacer(poolSize uint32) *LRUReplacer {
	return &LRUReplacer{
		lruList:  list.New(),
		frameMap: make(map[FrameID]*list.Element),
		capacity: poolSize,
		mutex:    new(deadlock.Mutex),
	}
}

// Victim removes and returns the least recently unpinned frame.
// Returns nil when no frame is evictable.
func (l *LRUReplacer) Victim() *FrameID {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	elem := l.lruList.Back()
	if elem == nil {
		return nil
	}

	frameID := l.lruList.Remove(elem).(FrameID)
	delete(l.frameMap, frameID)
	return &frameID
}

// Pin removes a frame from eviction candidacy. No-op when absent.
func (l *LRUReplacer) Pin(id FrameID) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if elem, ok := l.frameMap[id]; ok {
		l.lruList.Remove(elem)
		delete(l.frameMap, id)
	}
}

// Unpin marks a frame as evictable, placing it at the most recent end.
// No-op when already present; dropped when the replacer is at capacity.
func (l *LRUReplacer) Unpin(id FrameID) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, ok := l.frameMap[id]; ok {
		return
	}
	if uint32(l.lruList.Len()) >= l.capacity {
		return
	}
	l.frameMap[id] = l.lruList.PushFront(id)
}

// Size returns the number of evictable frames
func (l *LRUReplacer) Size() uint32 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return uint32(l.lruList.Len())
}

func (l *LRUReplacer) isContain(id FrameID) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	_, ok := l.frameMap[id]
	return ok
}
