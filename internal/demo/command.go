// Package demo is a toy consumer of the raftlog engine adapter: a command
// catalog and an in-memory key/value state machine that applies fetched
// entries. cmd/raftlogdemo uses it to exercise raftlog.Engine's append and
// get_batch operations the way a real consensus engine would, without
// implementing consensus itself — leader election, commitment, and RPC are
// all out of raftlog's scope and stay out of this package too.
package demo

import "encoding/json"

// Kind tags a Command's operation. It is carried as raftlog.LogEntry.Kind,
// which raftlog itself never interprets.
type Kind uint64

const (
	CommandPut Kind = iota
	CommandDelete
	CommandCAS
)

// Command is the payload a demo entry's Data holds, JSON-encoded.
type Command struct {
	Key      string `json:"key"`
	Value    int64  `json:"value,omitempty"`
	Expected int64  `json:"expected,omitempty"` // CommandCAS only
}

// Encode serializes a command to the bytes a raftlog.LogEntry.Data carries.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCommand parses bytes previously produced by Command.Encode.
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	err := json.Unmarshal(data, &c)
	return c, err
}
