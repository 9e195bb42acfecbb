package platform

import (
	"sync"
)

// Queue is a serial execution context. Work dispatched to one queue runs in
// submission order, one item at a time.
type Queue interface {
	Dispatch(fn func())
}

// Immediate runs work inline on the caller's goroutine
type Immediate struct{}

// Dispatch calls fn synchronously
func (Immediate) Dispatch(fn func()) { fn() }

// SerialQueue runs dispatched work on a single dedicated goroutine. Dispatch
// never blocks, so work running on the queue may dispatch onto it again.
type SerialQueue struct {
	label   string
	wake    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	pending []func()
	closed  bool
}

// NewSerialQueue starts a queue. backlog sizes the initial pending buffer.
func NewSerialQueue(label string, backlog int) *SerialQueue {
	if backlog < 1 {
		backlog = 1
	}
	q := &SerialQueue{
		label:   label,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		pending: make([]func(), 0, backlog),
	}
	go q.run()
	return q
}

func (q *SerialQueue) run() {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			batch := q.pending
			q.pending = nil
			closed := q.closed
			q.mu.Unlock()

			for _, fn := range batch {
				fn()
			}
			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
		}
	}
}

// Label returns the queue name used in logs
func (q *SerialQueue) Label() string {
	return q.label
}

// Dispatch enqueues fn. Work dispatched after Close is dropped.
func (q *SerialQueue) Dispatch(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	q.signal()
}

func (q *SerialQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting work and waits for the pending work to drain. It
// must not be called from work running on the queue.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}
