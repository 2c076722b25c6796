package strata

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/exp/maps"
)

// TaskFunction is one deferred call. The arguments it was staged with are
// passed back on invocation.
type TaskFunction func(ctx context.Context, args ...any) (any, error)

type Task struct {
	fn   TaskFunction
	args []any
}

func (self *Task) Invoke(ctx context.Context) (any, error) {
	return self.fn(ctx, self.args...)
}

// TaskQueue stages deferred calls under caller-chosen keys before execution.
// Multiple independent keys may be live at once. A key is consumed once
// drained and cannot be drained again without being re-staged.
type TaskQueue struct {
	stateLock sync.Mutex
	tasks     map[string][]*Task
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks: map[string][]*Task{},
	}
}

// Enqueue appends a deferred call under `key`, creating the key if absent.
func (self *TaskQueue) Enqueue(key string, fn TaskFunction, args ...any) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.tasks[key] = append(self.tasks[key], &Task{
		fn:   fn,
		args: args,
	})
}

// Drain returns and removes the full ordered list for `key`.
func (self *TaskQueue) Drain(key string) ([]*Task, error) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	tasks, ok := self.tasks[key]
	if !ok {
		return nil, &QueueNotFoundError{Key: key}
	}
	delete(self.tasks, key)
	return tasks, nil
}

func (self *TaskQueue) Contains(key string) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	_, ok := self.tasks[key]
	return ok
}

func (self *TaskQueue) Size(key string) int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.tasks[key])
}

func (self *TaskQueue) Keys() []string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	keys := maps.Keys(self.tasks)
	slices.Sort(keys)
	return keys
}
