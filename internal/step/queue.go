package step

import "sync"

// Queue is an ordered FIFO of steps.
//
// Steps are consumed front to back with [Queue.PopFront]. Pushing while a run
// is draining the queue is allowed; the new step is seen when it reaches the
// front. There is no way to remove or reorder an enqueued step.
type Queue struct {
	mu    sync.Mutex
	steps []Step
}

// NewQueue creates a queue pre-populated with steps, in order.
func NewQueue(steps ...Step) *Queue {
	q := &Queue{}
	for _, s := range steps {
		q.Push(s)
	}
	return q
}

// Push appends s to the back of the queue.
func (q *Queue) Push(s Step) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.steps = append(q.steps, s)
}

// PopFront removes and returns the earliest step. It returns (nil, false)
// when the queue is empty; calling it again on an empty queue is harmless.
//
// PopFront must not be called concurrently with itself.
func (q *Queue) PopFront() (Step, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.steps) == 0 {
		return nil, false
	}
	s := q.steps[0]
	q.steps[0] = nil
	q.steps = q.steps[1:]
	return s, true
}

// Len returns the number of pending steps.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.steps)
}

// Pending returns a copy of the pending steps in execution order.
func (q *Queue) Pending() []Step {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Step, len(q.steps))
	copy(out, q.steps)
	return out
}
