package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUReplacerVictimOrder(t *testing.T) {
	replacer := NewLRUReplacer(7)

	replacer.Unpin(1)
	replacer.Unpin(2)
	replacer.Unpin(3)
	replacer.Unpin(4)
	replacer.Unpin(5)
	replacer.Unpin(6)
	// unpin of a present frame is dropped
	replacer.Unpin(1)
	assert.Equal(t, uint32(6), replacer.Size())

	// victims come least recently unpinned first
	victim := replacer.Victim()
	require.NotNil(t, victim)
	assert.Equal(t, FrameID(1), *victim)
	victim = replacer.Victim()
	require.NotNil(t, victim)
	assert.Equal(t, FrameID(2), *victim)
	victim = replacer.Victim()
	require.NotNil(t, victim)
	assert.Equal(t, FrameID(3), *victim)

	// pin removes eligibility, pinning an absent frame is a no-op
	replacer.Pin(3)
	replacer.Pin(4)
	assert.Equal(t, uint32(2), replacer.Size())

	replacer.Unpin(4)

	victim = replacer.Victim()
	require.NotNil(t, victim)
	assert.Equal(t, FrameID(5), *victim)
	victim = replacer.Victim()
	require.NotNil(t, victim)
	assert.Equal(t, FrameID(6), *victim)
	victim = replacer.Victim()
	require.NotNil(t, victim)
	assert.Equal(t, FrameID(4), *victim)

	// empty replacer has no victim
	assert.Nil(t, replacer.Victim())
	assert.Equal(t, uint32(0), replacer.Size())
}

func TestLRUReplacerCapacity(t *testing.T) {
	replacer := NewLRUReplacer(2)

	replacer.Unpin(0)
	replacer.Unpin(1)
	// beyond the pool size, unpins are dropped
	replacer.Unpin(2)
	assert.Equal(t, uint32(2), replacer.Size())

	victim := replacer.Victim()
	require.NotNil(t, victim)
	assert.Equal(t, FrameID(0), *victim)
}
