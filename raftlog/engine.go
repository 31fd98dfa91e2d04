package raftlog

// Engine presents the operation table an external consensus engine binds to
// once, at construction, and calls for the lifetime of a log path. It is
// the only polymorphic surface of this package — no dispatch happens inside
// the hot paths of DurableLog or EntryCache themselves.
type Engine struct {
	log   *DurableLog
	cache *EntryCache
}

// EngineConfig bundles the entry-lifecycle primitives and cache sizing the
// engine needs. It has no opinion on how the durable log itself was opened
// or created — that decision belongs to the host, exactly as logImplInit's
// host-context argument in the reference engine is a log the host already
// prepared.
type EngineConfig struct {
	Hold    Holder
	Release Releaser
	// CacheInitSize overrides the cache's starting physical capacity
	// (0 means cacheInitSize). Exposed for tests that need to exercise
	// growth/wraparound without appending hundreds of entries.
	CacheInitSize int
}

// Init allocates the cache bound to an already-open log and returns the
// opaque engine handle the host uses for every subsequent call.
func Init(log *DurableLog, cfg EngineConfig) *Engine {
	return &Engine{
		log:   log,
		cache: NewEntryCache(cfg.CacheInitSize, cfg.Hold, cfg.Release),
	}
}

// Free releases the cache's held entries and closes the durable log's file
// handles.
func (e *Engine) Free() error {
	e.cache.Free()
	return e.log.Close()
}

// Reset durably resets the log to a new snapshot boundary, then drops and
// re-creates the cache.
func (e *Engine) Reset(idx LogIndex, term uint64) error {
	if err := e.log.Reset(idx, term); err != nil {
		return err
	}
	hold, release := e.cache.hold, e.cache.release
	initSize := e.cache.startCapacity()
	e.cache.Free()
	e.cache = NewEntryCache(initSize, hold, release)
	return nil
}

// startCapacity reports the cache's current physical capacity, which Reset
// uses as the new cache's starting capacity. Once the cache has grown, this
// is larger than the configured initial size.
func (c *EntryCache) startCapacity() int { return c.size }

// Append durably appends e, then caches it at the log's new current index.
// A failure of either half is caller-visible; the cache is only updated
// after the durable append succeeds, so in-memory state never runs ahead
// of disk.
func (e *Engine) Append(entry *LogEntry) error {
	if err := e.log.Append(entry); err != nil {
		return err
	}
	e.cache.Append(entry, e.log.CurrentIdx())
	return nil
}

// Poll head-evicts the cache up to firstIdx. It never touches the durable
// log: the durable log's first index changes only through Reset.
func (e *Engine) Poll(firstIdx LogIndex) {
	e.cache.DeleteHead(firstIdx)
}

// Pop tail-truncates the cache before truncating the durable log, so a
// partial failure can never leave stale cache references to entries that
// were removed from disk.
func (e *Engine) Pop(fromIdx LogIndex, cb func(entry *LogEntry, idx LogIndex)) error {
	e.cache.DeleteTail(fromIdx)
	return e.log.DeleteSuffix(fromIdx, cb)
}

// Get returns the entry at idx, checking the cache first and falling back
// to the durable log on a miss.
func (e *Engine) Get(idx LogIndex) *LogEntry {
	if entry := e.cache.Get(idx); entry != nil {
		return entry
	}
	return e.log.Get(idx)
}

// GetBatch fills out[0:k] with up to n consecutive entries starting at idx,
// stopping at the first miss, and returns k.
func (e *Engine) GetBatch(idx LogIndex, n int, out []*LogEntry) int {
	k := 0
	i := idx
	for k < n {
		entry := e.cache.Get(i)
		if entry == nil {
			entry = e.log.Get(i)
		}
		if entry == nil {
			break
		}
		out[k] = entry
		k++
		i++
	}
	return k
}

// FirstIdx, CurrentIdx, and Count forward to the durable log — the cache is
// not the source of truth for log extent.
func (e *Engine) FirstIdx() LogIndex   { return e.log.FirstIdx() }
func (e *Engine) CurrentIdx() LogIndex { return e.log.CurrentIdx() }
func (e *Engine) Count() uint64        { return e.log.Count() }

// SetVote and SetTerm forward directly to the durable log: header mutation
// has no cache-side effect.
func (e *Engine) SetVote(vote int64) error              { return e.log.SetVote(vote) }
func (e *Engine) SetTerm(term uint64, vote int64) error { return e.log.SetTerm(term, vote) }

// Header returns the durable log's current header.
func (e *Engine) Header() LogHeader { return e.log.Header() }
