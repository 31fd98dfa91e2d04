package eventloop_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/zeu5/redisraft/internal/eventloop"
)

const (
	goroutineGroups = 50
	tasksPerGroup   = 2048
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoopRunsInOrder(t *testing.T) {
	l := eventloop.New()
	var got []int
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		i := i
		l.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	l.Wait()

	want := make([]int, 10)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestLoopConcurrentSubmitters(t *testing.T) {
	l := eventloop.New()
	var count atomic.Int64
	var wg sync.WaitGroup

	for g := 0; g < goroutineGroups; g++ {
		wg.Add(tasksPerGroup)
		for i := 0; i < tasksPerGroup; i++ {
			go func() {
				defer wg.Done()
				l.Submit(func() {
					count.Add(1)
				})
			}()
		}
	}
	wg.Wait()
	l.Wait()

	assert.Equal(t, int64(goroutineGroups*tasksPerGroup), count.Load())
}
