// Command raftlogdemo drives a raftlog.Engine through a scripted sequence
// of appends followed by one batch read, applying every fetched entry to
// a toy key/value state machine. It does not call Poll, Pop or Get. It stands in for the external consensus
// engine that spec.md places out of scope: no leader election, no
// commitment protocol, just the operation table's contract exercised
// end to end, the way raft/cmd/raft.go and node/cmd/main.go wired the
// teacher's own Raft instance to a runnable main.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/zeu5/redisraft/internal/demo"
	"github.com/zeu5/redisraft/internal/eventloop"
	"github.com/zeu5/redisraft/raftlog"
)

func main() {
	path := flag.String("log", "raftlogdemo.log", "path to the raft log file")
	dbid := flag.String("dbid", "demo-node", "database identity stamped into the log header")
	noFsync := flag.Bool("no-fsync", false, "flush but do not fsync on append (testing only)")
	flag.Parse()

	logger := log.New(os.Stdout, "raftlogdemo: ", log.Lmicroseconds|log.Lshortfile)

	refs := demo.NewRefs()
	durable, err := openOrCreate(*path, raftlog.Options{DBID: *dbid, NoFsync: *noFsync}, 1, 0)
	if err != nil {
		logger.Fatalf("open/create log: %v", err)
	}
	defer durable.Close()

	if _, err := durable.LoadEntries(nil); err != nil {
		logger.Fatalf("load entries: %v", err)
	}

	engine := raftlog.Init(durable, raftlog.EngineConfig{
		Hold:    refs.Hold,
		Release: refs.Release,
	})
	defer engine.Free()

	machine := demo.NewMachine()
	loop := eventloop.New()

	commands := []demo.Command{
		{Key: "a", Value: 1},
		{Key: "b", Value: 2},
		{Key: "a", Value: 3},
	}

	for i, cmd := range commands {
		cmd := cmd
		i := i
		loop.Submit(func() {
			data, err := cmd.Encode()
			if err != nil {
				logger.Printf("encode command %d: %v", i, err)
				return
			}
			entry := &raftlog.LogEntry{
				Term: engine.Header().Term,
				ID:   uint64(i + 1),
				Kind: uint64(demo.CommandPut),
				Data: data,
			}
			if err := engine.Append(entry); err != nil {
				logger.Printf("append %d: %v", i, err)
				return
			}
			logger.Printf("appended index=%d key=%s value=%d", engine.CurrentIdx(), cmd.Key, cmd.Value)
		})
	}
	loop.Wait()

	batch := make([]*raftlog.LogEntry, engine.Count())
	n := engine.GetBatch(engine.FirstIdx()+1, len(batch), batch)
	for _, entry := range batch[:n] {
		if _, err := machine.Apply(entry); err != nil {
			logger.Printf("apply: %v", err)
		}
		refs.Release(entry)
	}

	if v, ok := machine.Get("a"); ok {
		logger.Printf("final value of %q = %d", "a", v)
	}
}

// openOrCreate opens an existing log at path, or bootstraps a fresh one at
// the given term/index if it doesn't exist yet. This decision belongs to
// the host, not to raftlog.Engine (see raftlog.Init's doc comment).
func openOrCreate(path string, opts raftlog.Options, bootstrapTerm uint64, bootstrapIdx raftlog.LogIndex) (*raftlog.DurableLog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return raftlog.Create(path, opts, bootstrapTerm, bootstrapIdx)
	}
	return raftlog.Open(path, opts)
}
