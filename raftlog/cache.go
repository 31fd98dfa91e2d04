package raftlog

// cacheInitSize is the ring buffer's starting physical capacity. Doubling
// from here keeps growth O(log n) in the number of resizes.
const cacheInitSize = 512

// EntryCache is a ring buffer of strong references to the most recently
// appended entries, indexed by the same LogIndex the durable log uses. It
// is never the sole owner of an entry: the consensus engine holds its own
// reference, and this cache contributes exactly one hold per cached slot.
type EntryCache struct {
	ptrs     []*LogEntry
	size     int
	start    int
	length   int
	startIdx LogIndex

	hold    Holder
	release Releaser
}

// NewEntryCache returns an empty cache with the given initial physical
// capacity. hold/release may be nil, in which case they are no-ops (useful
// for tests that don't track external refcounts).
func NewEntryCache(initSize int, hold Holder, release Releaser) *EntryCache {
	if initSize <= 0 {
		initSize = cacheInitSize
	}
	if hold == nil {
		hold = noopHold
	}
	if release == nil {
		release = noopRelease
	}
	return &EntryCache{
		ptrs:    make([]*LogEntry, initSize),
		size:    initSize,
		hold:    hold,
		release: release,
	}
}

// Append adds e as the entry at idx, which must equal the cache's current
// start_idx + len (the caller is responsible for contiguous indices). The
// cache grows (doubling) when full, preserving logical order across the
// resize.
func (c *EntryCache) Append(e *LogEntry, idx LogIndex) {
	if c.length == 0 {
		c.startIdx = idx
	}
	if c.startIdx+LogIndex(c.length) != idx {
		panic("raftlog: EntryCache.Append called with non-contiguous index")
	}

	if c.length == c.size {
		c.grow()
	}

	c.ptrs[(c.start+c.length)%c.size] = e
	c.length++
	c.hold(e)
}

// grow doubles the ring's physical capacity, relocating the wrapped prefix
// so the logical ring stays contiguous in the new, larger backing array.
func (c *EntryCache) grow() {
	newSize := c.size * 2
	newPtrs := make([]*LogEntry, newSize)
	copy(newPtrs, c.ptrs)
	if c.start > 0 {
		copy(newPtrs[c.size:c.size+c.start], newPtrs[:c.start])
		for i := 0; i < c.start; i++ {
			newPtrs[i] = nil
		}
	}
	c.ptrs = newPtrs
	c.size = newSize
}

// Get returns a freshly held reference to the entry at idx, or nil if idx
// isn't currently cached.
func (c *EntryCache) Get(idx LogIndex) *LogEntry {
	if idx < c.startIdx {
		return nil
	}
	relIdx := idx - c.startIdx
	if int(relIdx) >= c.length {
		return nil
	}
	e := c.ptrs[(c.start+int(relIdx))%c.size]
	c.hold(e)
	return e
}

// DeleteHead evicts entries from the front of the cache until start_idx
// equals firstIdx or the cache is empty, releasing each evicted entry. It
// returns the count removed, or -1 if firstIdx predates the cache's current
// start.
func (c *EntryCache) DeleteHead(firstIdx LogIndex) int {
	if firstIdx < c.startIdx {
		return -1
	}

	deleted := 0
	for firstIdx > c.startIdx && c.length > 0 {
		c.startIdx++
		c.release(c.ptrs[c.start])
		c.ptrs[c.start] = nil
		c.start++
		if c.start >= c.size {
			c.start = 0
		}
		c.length--
		deleted++
	}

	if c.length == 0 {
		c.startIdx = 0
	}
	return deleted
}

// DeleteTail releases and removes every entry at logical position
// [fromIdx, start_idx+len), returning the count removed, or -1 if fromIdx
// is outside the cache's current range.
func (c *EntryCache) DeleteTail(fromIdx LogIndex) int {
	end := c.startIdx + LogIndex(c.length)
	if fromIdx >= end || fromIdx < c.startIdx {
		return -1
	}

	deleted := 0
	for i := fromIdx; i < end; i++ {
		relIdx := int(i - c.startIdx)
		slot := (c.start + relIdx) % c.size
		c.release(c.ptrs[slot])
		c.ptrs[slot] = nil
		deleted++
	}

	c.length -= deleted
	if c.length == 0 {
		c.startIdx = 0
	}
	return deleted
}

// Len reports the number of entries currently cached.
func (c *EntryCache) Len() int { return c.length }

// StartIdx reports the LogIndex of the logical first cached entry, or 0
// when the cache is empty.
func (c *EntryCache) StartIdx() LogIndex { return c.startIdx }

// Free releases every held entry. The cache is left empty but reusable.
func (c *EntryCache) Free() {
	for i := 0; i < c.length; i++ {
		slot := (c.start + i) % c.size
		c.release(c.ptrs[slot])
		c.ptrs[slot] = nil
	}
	c.length = 0
	c.startIdx = 0
}
