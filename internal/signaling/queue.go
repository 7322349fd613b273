package signaling

import (
	"sync"
	"sync/atomic"
)

type frame struct {
	msgType int
	data    []byte
}

// closeRequest is the close frame the writer sends once the queue is drained.
// A zero code means the connection is torn down without a close frame.
type closeRequest struct {
	code   int
	reason string
}

// sendQueue is a byte-bounded FIFO of outbound frames.
//
// Enqueue never blocks so the matching service can deliver under its lock.
// A single writer goroutine drains it with Dequeue.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool
	closing  closeRequest

	maxBytes int
	curBytes int
	frames   []frame

	drops atomic.Uint64
}

func newSendQueue(maxBytes int) *sendQueue {
	q := &sendQueue{maxBytes: maxBytes}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *sendQueue) DropCount() uint64 {
	return q.drops.Load()
}

// Enqueue appends f if it fits within the byte budget.
func (q *sendQueue) Enqueue(f frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.curBytes+len(f.data) > q.maxBytes {
		q.drops.Add(1)
		return false
	}

	q.frames = append(q.frames, f)
	q.curBytes += len(f.data)
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until a frame is available or the queue is closed and empty.
func (q *sendQueue) Dequeue() (frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return frame{}, false
	}
	f := q.frames[0]
	q.frames[0] = frame{}
	q.frames = q.frames[1:]
	q.curBytes -= len(f.data)
	return f, true
}

// CloseWith stops accepting frames. Frames already queued are still written,
// followed by the close frame. Only the first close request wins.
func (q *sendQueue) CloseWith(code int, reason string) {
	q.mu.Lock()
	q.closeLocked(code, reason)
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Abort is CloseWith that discards queued frames and returns their size.
func (q *sendQueue) Abort(code int, reason string) int {
	q.mu.Lock()
	dropped := q.curBytes
	q.frames = nil
	q.curBytes = 0
	q.closeLocked(code, reason)
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	return dropped
}

func (q *sendQueue) closeLocked(code int, reason string) {
	if q.closed {
		return
	}
	q.closed = true
	q.closing = closeRequest{code: code, reason: reason}
}

func (q *sendQueue) pendingClose() closeRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closing
}

func (q *sendQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
