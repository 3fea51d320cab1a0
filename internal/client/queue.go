package client

import "errors"

var ErrQueueFull = errors.New("client: outbound queue full")

// queue is the bounded FIFO of frames sent while the transport is not open.
// It is guarded by the transport mutex.
type queue struct {
	frames [][]byte
	limit  int
}

func newQueue(limit int) *queue {
	return &queue{limit: limit}
}

func (q *queue) push(frame []byte) error {
	if len(q.frames) >= q.limit {
		return ErrQueueFull
	}
	q.frames = append(q.frames, frame)
	return nil
}

func (q *queue) peek() ([]byte, bool) {
	if len(q.frames) == 0 {
		return nil, false
	}
	return q.frames[0], true
}

func (q *queue) pop() {
	if len(q.frames) == 0 {
		return
	}
	q.frames[0] = nil
	q.frames = q.frames[1:]
}

func (q *queue) len() int { return len(q.frames) }

func (q *queue) reset() { q.frames = nil }
