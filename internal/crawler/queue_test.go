package crawler

import (
	"testing"
	"time"
)

func TestWorkQueueDrainsOnlyWhenAllWorkIsDone(t *testing.T) {
	q := newWorkQueue(1)
	q.push(task{key: "A-1", full: true})

	got, ok := q.tryPop()
	if !ok || got.key != "A-1" {
		t.Fatalf("tryPop = %+v, %v", got, ok)
	}

	// The queue is empty but the popped task is still in flight: done
	// must not fire yet, because the task may push children.
	select {
	case <-q.waitCh():
		t.Fatal("queue reported done with work in flight")
	default:
	}

	q.push(task{key: "B-2", full: true})
	q.taskDone() // A-1 done, B-2 still pending

	select {
	case <-q.waitCh():
		t.Fatal("queue reported done with a queued task")
	default:
	}

	if _, ok := q.tryPop(); !ok {
		t.Fatal("expected B-2 in the queue")
	}
	q.taskDone()

	select {
	case <-q.waitCh():
	case <-time.After(time.Second):
		t.Fatal("queue never reported done")
	}
}

func TestWorkQueueWakesWaiters(t *testing.T) {
	q := newWorkQueue(2)
	q.push(task{key: "A-1", full: true})

	select {
	case <-q.wakeCh():
	case <-time.After(time.Second):
		t.Fatal("push did not signal waiting workers")
	}
}
