package demo_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeu5/redisraft/internal/demo"
	"github.com/zeu5/redisraft/raftlog"
)

func TestRefsHoldRelease(t *testing.T) {
	r := demo.NewRefs()
	e := &raftlog.LogEntry{ID: 1}

	r.Hold(e)
	r.Hold(e)
	assert.Equal(t, 2, r.Count(e))

	r.Release(e)
	assert.Equal(t, 1, r.Count(e))

	r.Release(e)
	assert.Equal(t, 0, r.Count(e))
}

func TestRefsReleaseBelowZeroStaysAtZero(t *testing.T) {
	r := demo.NewRefs()
	e := &raftlog.LogEntry{ID: 1}

	r.Release(e)
	assert.Equal(t, 0, r.Count(e))
}

func TestRefsConcurrentHold(t *testing.T) {
	r := demo.NewRefs()
	e := &raftlog.LogEntry{ID: 1}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Hold(e)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, r.Count(e))
}
