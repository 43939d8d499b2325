package kafka

import (
	"sync"
	"sync/atomic"
	"time"
)

// A task is one in-flight processing operation
type task struct {
	id      uint64
	topic   string
	offset  int64
	started time.Time
	done    chan struct{}
}

// A TaskRegistry tracks in-flight operations so shutdown can wait for them
type TaskRegistry struct {
	nextID atomic.Uint64
	tasks  sync.Map // uint64 -> *task
	count  atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewTaskRegistry creates an empty registry
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{}
}

// Register records a new in-flight operation and returns the func that marks it finished.
// Once Drain has started no operation is accepted and ok is false
func (r *TaskRegistry) Register(topic string, offset int64) (done func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}

	t := &task{
		id:      r.nextID.Add(1),
		topic:   topic,
		offset:  offset,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	r.tasks.Store(t.id, t)
	r.count.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.tasks.Delete(t.id)
			r.count.Add(-1)
			close(t.done)
		})
	}, true
}

// Len returns the number of in-flight operations
func (r *TaskRegistry) Len() int {
	return int(r.count.Load())
}

// snapshot returns the operations in flight at the time of the call
func (r *TaskRegistry) snapshot() []*task {
	var tasks []*task
	r.tasks.Range(func(_, value any) bool {
		tasks = append(tasks, value.(*task))
		return true
	})
	return tasks
}

// Drain closes the registry to new operations, then waits for every operation in flight,
// giving each at most perTask. It returns the number of operations it stopped waiting for
func (r *TaskRegistry) Drain(perTask time.Duration) int {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	abandoned := 0
	for _, t := range r.snapshot() {
		timer := time.NewTimer(perTask)
		select {
		case <-t.done:
		case <-timer.C:
			abandoned++
		}
		timer.Stop()
	}
	return abandoned
}
