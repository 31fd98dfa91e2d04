package audit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeu5/redisraft/raftlog/audit"
)

func TestTableNameSuffixConvention(t *testing.T) {
	assert.Equal(t, "_header_audit", audit.TableNameSuffix)
}

// NewPostgresSink requires a live Postgres instance to succeed; without one
// configured via PG_HOST/PG_USER/PG_PASS/PG_DB/PG_PORT it must fail to
// connect rather than panic or hang, confirming RecordHeader's "never block
// a durable write on the audit trail" contract starts at construction time.
func TestNewPostgresSinkFailsClosedWithoutDatabase(t *testing.T) {
	t.Setenv("PG_HOST", "127.0.0.1")
	t.Setenv("PG_USER", "nope")
	t.Setenv("PG_PASS", "nope")
	t.Setenv("PG_DB", "nope")
	t.Setenv("PG_PORT", "1")

	_, err := audit.NewPostgresSink("node-test")
	assert.Error(t, err)
}
