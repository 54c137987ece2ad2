package mailbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coregx/mailbus/model"
)

// PartitionQueue is an unbounded FIFO of messages for one partition.
//
// Any number of goroutines may Enqueue; exactly one consumer at a time may
// claim the queue and Dequeue from it. Dequeue blocks without polling.
type PartitionQueue struct {
	id      string
	mu      sync.Mutex
	items   []queued
	notify  chan struct{}
	closed  bool
	claimed atomic.Bool
}

// NewPartitionQueue creates an empty queue.
func NewPartitionQueue(id string) *PartitionQueue {
	return &PartitionQueue{
		id:     id,
		notify: make(chan struct{}, 1),
	}
}

// ID returns the queue identifier.
func (q *PartitionQueue) ID() string {
	return q.id
}

// queued is one queue entry.
type queued struct {
	msg model.Message

	// shadowed marks a copy delivered through the catch-all binding while the
	// routing key also had an exact binding when it was routed.
	shadowed bool

	// settle, when set, is called once the consumer is done with the message.
	settle func(error)
}

func (it queued) done(err error) {
	if it.settle != nil {
		it.settle(err)
	}
}

// Enqueue appends msg. Returns ErrQueueClosed after Close.
func (q *PartitionQueue) Enqueue(msg model.Message) error {
	return q.push(queued{msg: msg})
}

// EnqueueWithSettle appends msg and registers settle to be called by the
// consuming Consumer once it is done with the message: with the write error
// (nil on success) after the backend returns, or with nil when the message is
// skipped. Messages taken with Dequeue are never settled.
func (q *PartitionQueue) EnqueueWithSettle(msg model.Message, settle func(error)) error {
	return q.push(queued{msg: msg, settle: settle})
}

func (q *PartitionQueue) push(it queued) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, it)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Dequeue removes and returns the oldest message, blocking until one is
// available, the queue is closed and drained (ErrQueueClosed), or ctx is done.
func (q *PartitionQueue) Dequeue(ctx context.Context) (model.Message, error) {
	it, err := q.next(ctx)
	return it.msg, err
}

func (q *PartitionQueue) next(ctx context.Context) (queued, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items[0] = queued{}
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				q.signal()
			}
			return it, nil
		}
		if q.closed {
			q.mu.Unlock()
			return queued{}, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return queued{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of queued messages.
func (q *PartitionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting messages. Already queued messages can still be
// dequeued. Idempotent.
func (q *PartitionQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// claim marks the queue as owned by a consumer.
func (q *PartitionQueue) claim() error {
	if !q.claimed.CompareAndSwap(false, true) {
		return ErrQueueClaimed
	}
	return nil
}

// release gives up the claim so a replacement consumer can take the queue.
func (q *PartitionQueue) release() {
	q.claimed.Store(false)
}

func (q *PartitionQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
