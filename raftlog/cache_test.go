package raftlog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeu5/redisraft/raftlog"
)

func entryWithID(id uint64) *raftlog.LogEntry {
	return &raftlog.LogEntry{Term: 1, ID: id, Kind: 0, Data: []byte{byte(id)}}
}

// S4 — Cache wraparound: append past physical capacity repeatedly, evicting
// from the head as we go, and confirm logical order survives.
func TestScenarioCacheWraparound(t *testing.T) {
	held := map[uint64]int{}
	released := map[uint64]int{}
	hold := func(e *raftlog.LogEntry) { held[e.ID]++ }
	release := func(e *raftlog.LogEntry) { released[e.ID]++ }

	c := raftlog.NewEntryCache(4, hold, release)

	for i := uint64(1); i <= 4; i++ {
		c.Append(entryWithID(i), raftlog.LogIndex(i))
	}
	assert.Equal(t, 4, c.Len())

	// Evict the first two, then append two more — physical slots wrap.
	n := c.DeleteHead(3)
	assert.Equal(t, 2, n)
	assert.Equal(t, raftlog.LogIndex(3), c.StartIdx())

	c.Append(entryWithID(5), raftlog.LogIndex(5))
	c.Append(entryWithID(6), raftlog.LogIndex(6))
	assert.Equal(t, 4, c.Len())

	for i := uint64(3); i <= 6; i++ {
		e := c.Get(raftlog.LogIndex(i))
		require.NotNil(t, e)
		assert.Equal(t, i, e.ID)
	}

	assert.Equal(t, 1, released[1])
	assert.Equal(t, 1, released[2])
	assert.Zero(t, released[3])
}

// S5 — Cache growth preserves order across a doubling resize, including when
// the logical window straddles the wrap point at resize time.
func TestScenarioCacheGrowthPreservesOrder(t *testing.T) {
	c := raftlog.NewEntryCache(4, nil, nil)

	for i := uint64(1); i <= 3; i++ {
		c.Append(entryWithID(i), raftlog.LogIndex(i))
	}
	c.DeleteHead(3) // start now at physical slot 2, startIdx=3, length=1
	c.Append(entryWithID(4), raftlog.LogIndex(4))
	c.Append(entryWithID(5), raftlog.LogIndex(5)) // wraps to physical slot 0
	c.Append(entryWithID(6), raftlog.LogIndex(6)) // fills the ring exactly full

	// One more append forces a grow() while the ring is wrapped.
	c.Append(entryWithID(7), raftlog.LogIndex(7))

	for i := uint64(3); i <= 7; i++ {
		e := c.Get(raftlog.LogIndex(i))
		require.NotNil(t, e)
		assert.Equal(t, i, e.ID)
	}
	assert.Equal(t, 5, c.Len())
}

func TestCacheAppendNonContiguousPanics(t *testing.T) {
	c := raftlog.NewEntryCache(4, nil, nil)
	c.Append(entryWithID(1), raftlog.LogIndex(1))
	assert.Panics(t, func() {
		c.Append(entryWithID(3), raftlog.LogIndex(3))
	})
}

func TestCacheGetBeforeStartOrBeyondEndIsMiss(t *testing.T) {
	c := raftlog.NewEntryCache(4, nil, nil)
	c.Append(entryWithID(1), raftlog.LogIndex(1))
	c.Append(entryWithID(2), raftlog.LogIndex(2))

	assert.Nil(t, c.Get(0))
	assert.Nil(t, c.Get(3))
}

func TestCacheDeleteHeadBeforeStartIsError(t *testing.T) {
	c := raftlog.NewEntryCache(4, nil, nil)
	c.Append(entryWithID(5), raftlog.LogIndex(5))
	assert.Equal(t, -1, c.DeleteHead(4))
}

func TestCacheDeleteTailOutOfRangeIsError(t *testing.T) {
	c := raftlog.NewEntryCache(4, nil, nil)
	c.Append(entryWithID(1), raftlog.LogIndex(1))
	assert.Equal(t, -1, c.DeleteTail(5))
	assert.Equal(t, -1, c.DeleteTail(0))
}

func TestCacheDeleteTailReleasesRemovedEntries(t *testing.T) {
	released := map[uint64]int{}
	release := func(e *raftlog.LogEntry) { released[e.ID]++ }
	c := raftlog.NewEntryCache(4, nil, release)

	for i := uint64(1); i <= 3; i++ {
		c.Append(entryWithID(i), raftlog.LogIndex(i))
	}
	n := c.DeleteTail(2)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, released[2])
	assert.Equal(t, 1, released[3])
	assert.Nil(t, c.Get(2))
}

func TestCacheFreeReleasesEverything(t *testing.T) {
	released := 0
	release := func(*raftlog.LogEntry) { released++ }
	c := raftlog.NewEntryCache(4, nil, release)

	for i := uint64(1); i <= 3; i++ {
		c.Append(entryWithID(i), raftlog.LogIndex(i))
	}
	c.Free()
	assert.Equal(t, 3, released)
	assert.Equal(t, 0, c.Len())
}
