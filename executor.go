package strata

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/golang/glog"
)

func DefaultBatchSettings() *BatchSettings {
	return &BatchSettings{
		ChunkSize: 10,
		// bounded fan-out per chunk
		WorkerCount:    runtime.NumCPU() + 2,
		PacingInterval: 250 * time.Millisecond,
	}
}

type BatchSettings struct {
	// maximum calls issued concurrently as one chunk
	ChunkSize int
	// maximum workers per chunk. Effective pool size is
	// min(WorkerCount, len(chunk))
	WorkerCount int
	// delay between chunks. Skipped after the final chunk
	PacingInterval time.Duration
}

// test instrumentation
type BatchTesting interface {
	// replaces the inter-chunk pacing sleep
	Pace(interval time.Duration)
}

// BatchExecutor drains one queue key at a time and executes its deferred
// calls in fixed-size chunks. Calls within a chunk run fully in parallel;
// chunk i+1 is never issued before every call of chunk i has completed.
// Results come back in strict enqueue order regardless of completion order.
type BatchExecutor struct {
	ctx    context.Context
	cancel context.CancelFunc

	queue    *TaskQueue
	settings *BatchSettings
	testing  BatchTesting

	stateLock    sync.Mutex
	reservedKeys map[string]bool
}

func NewBatchExecutorWithDefaults(ctx context.Context, queue *TaskQueue) *BatchExecutor {
	return NewBatchExecutor(ctx, queue, DefaultBatchSettings())
}

func NewBatchExecutor(
	ctx context.Context,
	queue *TaskQueue,
	settings *BatchSettings,
) *BatchExecutor {
	return NewBatchExecutorWithTesting(ctx, queue, settings, nil)
}

func NewBatchExecutorWithTesting(
	ctx context.Context,
	queue *TaskQueue,
	settings *BatchSettings,
	testing BatchTesting,
) *BatchExecutor {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &BatchExecutor{
		ctx:          cancelCtx,
		cancel:       cancel,
		queue:        queue,
		settings:     settings,
		testing:      testing,
		reservedKeys: map[string]bool{},
	}
}

func (self *BatchExecutor) Queue() *TaskQueue {
	return self.queue
}

// Stage appends a deferred call under `key` unless the key is owned by an
// in-flight run. The reservation check and the enqueue happen under one lock
// so a concurrent run cannot reserve-and-drain the key in between.
func (self *BatchExecutor) Stage(key string, fn TaskFunction, args ...any) error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.reservedKeys[key] {
		return &ReservedKeyError{Key: key}
	}
	self.queue.Enqueue(key, fn, args...)
	return nil
}

// Available reports whether `key` is free for a new batch: neither populated
// in the queue nor reserved by an in-flight run.
func (self *BatchExecutor) Available(key string) bool {
	self.stateLock.Lock()
	reserved := self.reservedKeys[key]
	self.stateLock.Unlock()

	return !reserved && !self.queue.Contains(key)
}

// Run drains `key` and executes every staged call. The returned slice always
// has one slot per staged call, in enqueue order; chunk partitioning is
// invisible in the output. A failing call does not abort its chunk siblings.
// After every call has been attempted, the first captured failure in enqueue
// order is returned alongside the complete result slice.
func (self *BatchExecutor) Run(key string) ([]any, error) {
	tasks, err := self.reserve(key)
	if err != nil {
		return nil, err
	}
	defer self.release(key)

	chunkSize := self.settings.ChunkSize
	if chunkSize < 1 {
		chunkSize = 1
	}
	chunkCount := (len(tasks) + chunkSize - 1) / chunkSize
	runLog := LogFn(1, fmt.Sprintf("[batch]%s", key))
	runLog("run start tasks=%d chunks=%d", len(tasks), chunkCount)

	results := make([]any, len(tasks))
	errs := make([]error, len(tasks))

	for start := 0; start < len(tasks); start += chunkSize {
		end := min(start+chunkSize, len(tasks))
		self.runChunk(runLog, tasks, results, errs, start, end)
		if end < len(tasks) {
			self.pace()
		}
	}

	for i, err := range errs {
		if err != nil {
			glog.Infof("[batch]%s call %d failed: %s\n", key, i, err)
			return results, err
		}
	}
	runLog("run end tasks=%d", len(tasks))
	return results, nil
}

func (self *BatchExecutor) reserve(key string) ([]*Task, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.reservedKeys[key] {
		return nil, &ReservedKeyError{Key: key}
	}
	tasks, err := self.queue.Drain(key)
	if err != nil {
		return nil, err
	}
	self.reservedKeys[key] = true
	return tasks, nil
}

func (self *BatchExecutor) release(key string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	delete(self.reservedKeys, key)
}

// runChunk issues tasks[start:end] to a bounded worker pool and blocks until
// every call in the chunk has completed. The chunk barrier is the only
// synchronization the result slices need: slot i is written by exactly one
// worker.
func (self *BatchExecutor) runChunk(
	runLog LogFunction,
	tasks []*Task,
	results []any,
	errs []error,
	start int,
	end int,
) {
	workerCount := min(self.settings.WorkerCount, end-start)
	chunkLog := SubLogFn(2, runLog, fmt.Sprintf("chunk[%d:%d]", start, end))
	chunkLog("workers=%d", workerCount)

	taskIndexes := make(chan int, end-start)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w += 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range taskIndexes {
				results[i], errs[i] = self.invoke(tasks[i])
			}
		}()
	}

	for i := start; i < end; i += 1 {
		taskIndexes <- i
	}
	close(taskIndexes)
	wg.Wait()
}

func (self *BatchExecutor) invoke(task *Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			glog.Warningf("Unexpected panic in deferred call: %v\n%s\n", r, debug.Stack())
			err = fmt.Errorf("deferred call panic: %v", r)
		}
	}()
	return task.Invoke(self.ctx)
}

func (self *BatchExecutor) pace() {
	if self.testing != nil {
		self.testing.Pace(self.settings.PacingInterval)
		return
	}
	if self.settings.PacingInterval <= 0 {
		return
	}
	select {
	case <-self.ctx.Done():
	case <-time.After(self.settings.PacingInterval):
	}
}

func (self *BatchExecutor) Close() {
	self.cancel()
}
