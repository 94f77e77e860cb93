package crawler

import "sync"

// task is one unit of crawl work. full tasks hit the tracker; the rest
// are served from the local cache.
type task struct {
	key  string
	full bool
}

// workQueue feeds tasks to the worker pool. Workers both consume tasks
// and push the children they discover, so the queue tracks in-flight
// work: done closes only when every pushed task has been marked done,
// not merely when the slice runs empty.
type workQueue struct {
	mu      sync.Mutex
	items   []task
	pending int
	closed  bool

	signal chan struct{}
	done   chan struct{}
}

func newWorkQueue(workers int) *workQueue {
	return &workQueue{
		signal: make(chan struct{}, workers),
		done:   make(chan struct{}),
	}
}

// push adds tasks and wakes a waiting worker.
func (q *workQueue) push(tasks ...task) {
	if len(tasks) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, tasks...)
	q.pending += len(tasks)
	q.mu.Unlock()

	for range tasks {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
}

// tryPop returns the next task without blocking.
func (q *workQueue) tryPop() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return task{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

// taskDone marks one popped task as fully processed, including any
// children it pushed. The last task closes done.
func (q *workQueue) taskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending == 0 && !q.closed {
		q.closed = true
		close(q.done)
	}
}

// waitCh is closed once all work is processed.
func (q *workQueue) waitCh() <-chan struct{} { return q.done }

// wakeCh receives a token when new work arrives.
func (q *workQueue) wakeCh() <-chan struct{} { return q.signal }
