package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ExecutesTasksFIFO(t *testing.T) {
	t.Parallel()

	pool := NewWorkerPool(1, nil)
	defer pool.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		i := i
		pool.Submit(NewFuncTask(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
			return nil
		}))
	}

	wg.Wait()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestWorkerPool_MultithreadedTaskReentersQueueUntilComplete(t *testing.T) {
	t.Parallel()

	pool := NewWorkerPool(2, nil)
	defer pool.Stop()

	task := &shardingTask{target: 3}
	done := make(chan struct{})
	task.onDone = func() { close(done) }

	pool.Submit(task)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sharding task never completed")
	}

	require.Equal(t, 3, task.Progress())
}

// shardingTask simulates a task that reports Multithreaded()==true and
// shards its own work across re-dispatches until target calls complete.
type shardingTask struct {
	mu       sync.Mutex
	progress int
	target   int
	onDone   func()
	fired    bool
}

func (s *shardingTask) Execute() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress < s.target {
		s.progress++
	}
	if s.progress >= s.target && !s.fired {
		s.fired = true
		if s.onDone != nil {
			s.onDone()
		}
	}
	return nil
}

func (s *shardingTask) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress >= s.target
}

func (s *shardingTask) Multithreaded() bool { return true }

func (s *shardingTask) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func TestWorkerPool_DropPendingTasksClearsQueueOnly(t *testing.T) {
	t.Parallel()

	pool := NewWorkerPool(0, nil) // no workers drain the queue

	block := make(chan struct{})
	pool.Submit(NewFuncTask(func() error { <-block; return nil }))
	pool.Submit(NewFuncTask(func() error { return nil }))

	require.Equal(t, 2, pool.QueueLen())
	pool.DropPendingTasks()
	require.Equal(t, 0, pool.QueueLen())
	close(block)
}

func TestWorkerPool_StopLetsInFlightTaskFinish(t *testing.T) {
	t.Parallel()

	pool := NewWorkerPool(1, nil)
	started := make(chan struct{})
	finished := make(chan struct{})

	pool.Submit(NewFuncTask(func() error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return nil
	}))

	<-started
	pool.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before in-flight task finished")
	}
}
