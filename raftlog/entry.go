package raftlog

// LogIndex is a 1-based monotonic position of an entry in the log. Index 0
// means "no entry."
type LogIndex uint64

// LogEntry is an opaque payload plus the metadata the durable log and cache
// need to store and retrieve it. Kind and Data are never interpreted by this
// package; they are a contract between the application and the consensus
// engine above it.
type LogEntry struct {
	Term uint64
	ID   uint64
	Kind uint64
	Data []byte
}

// Equal reports whether e and other carry the same term/id/kind/data.
func (e *LogEntry) Equal(other *LogEntry) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Term != other.Term || e.ID != other.ID || e.Kind != other.Kind {
		return false
	}
	if len(e.Data) != len(other.Data) {
		return false
	}
	for i := range e.Data {
		if e.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// DBIDLen is the maximum byte length of a LogHeader.DBID value.
const DBIDLen = 32

// LogHeader is the persistent log's prelude: identity, snapshot boundary,
// and the highest term/vote this node has durably observed.
type LogHeader struct {
	DBID             string
	SnapshotLastTerm uint64
	SnapshotLastIdx  LogIndex
	Term             uint64
	Vote             int64 // -1 means "none"
}

// NoVote is the sentinel Vote value meaning "voted for no one in Term."
const NoVote int64 = -1

// Holder and releaser are the external entry-lifecycle primitives: the
// consensus engine supplies them, and this package calls them at the points
// the spec requires (one hold per cached entry, one release per eviction).
type (
	Holder   func(e *LogEntry)
	Releaser func(e *LogEntry)
)

// noopHold/noopRelease let callers that don't track refcounts (tests, the
// demo) opt out without special-casing nil checks everywhere.
func noopHold(*LogEntry)   {}
func noopRelease(*LogEntry) {}

// AuditSink observes successful header rewrites (set_vote/set_term). It is
// a best-effort, write-only observability hook: its failures must never be
// surfaced as a DurableLog error.
type AuditSink interface {
	RecordHeader(h LogHeader)
}
