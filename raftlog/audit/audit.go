// Package audit provides a best-effort, write-only observability trail of
// header mutations (vote/term changes) on a raftlog.DurableLog. It is not
// part of the durability contract: a DurableLog that has no AuditSink
// configured, or whose sink fails, behaves identically to one that never
// had observability at all.
package audit

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zeu5/redisraft/raftlog"
)

// HeaderEvent is one row of the audit trail: the header fields as they
// stood immediately after a successful set_vote/set_term rewrite.
type HeaderEvent struct {
	gorm.Model
	DBID             string
	SnapshotLastTerm uint64
	SnapshotLastIdx  uint64
	Term             uint64
	Vote             int64
	ObservedAt       time.Time
}

// TableNameSuffix matches the teacher's convention of one table per node,
// scoped by a caller-supplied prefix (e.g. node id).
const TableNameSuffix = "_header_audit"

// PostgresSink records header events to Postgres via gorm, the way
// node.PersistentState records term/vote state — but here strictly as a
// secondary, non-authoritative trail.
type PostgresSink struct {
	db     *gorm.DB
	table  string
	logger *log.Logger
}

var _ raftlog.AuditSink = (*PostgresSink)(nil)

// NewPostgresSink opens a connection using the same host/user/password/
// dbname/port environment variables the teacher's PersistentState reads,
// and migrates its table if absent.
func NewPostgresSink(nodePrefix string) (*PostgresSink, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("PG_HOST"),
		os.Getenv("PG_USER"),
		os.Getenv("PG_PASS"),
		os.Getenv("PG_DB"),
		os.Getenv("PG_PORT"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}

	table := nodePrefix + TableNameSuffix
	sink := &PostgresSink{
		db:     db,
		table:  table,
		logger: log.New(os.Stderr, "audit: ", log.Lmicroseconds|log.Lshortfile),
	}

	if !db.Migrator().HasTable(table) {
		if err := db.Table(table).AutoMigrate(&HeaderEvent{}); err != nil {
			return nil, fmt.Errorf("audit: migrate: %w", err)
		}
	}

	return sink, nil
}

// RecordHeader writes one HeaderEvent row. A write failure is logged and
// swallowed: the audit trail is observability, not durability, and must
// never turn a successful header rewrite into a caller-visible error.
func (s *PostgresSink) RecordHeader(h raftlog.LogHeader) {
	event := HeaderEvent{
		DBID:             h.DBID,
		SnapshotLastTerm: h.SnapshotLastTerm,
		SnapshotLastIdx:  uint64(h.SnapshotLastIdx),
		Term:             h.Term,
		Vote:             h.Vote,
		ObservedAt:       observedAt(),
	}
	if result := s.db.Table(s.table).Create(&event); result.Error != nil {
		s.logger.Printf("failed to record header event: %v", result.Error)
	}
}

// observedAt is split out so tests can stub it; production always uses
// the wall clock.
var observedAt = time.Now
