package ws

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/realtime"
)

var (
	ErrConnClosed = errors.New("ws: connection closed")
	ErrQueueFull  = errors.New("ws: outbound queue full")
)

// Conn is the server side of one authenticated client connection. Frames are
// queued on a bounded channel drained by the connection's writer goroutine;
// enqueueing never blocks so a slow client cannot stall a broadcast.
type Conn struct {
	id        uuid.UUID
	principal auth.Principal

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn creates a connection for an authenticated principal.
func NewConn(principal auth.Principal, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Conn{
		id:        uuid.New(),
		principal: principal,
		out:       make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
}

func (c *Conn) ID() uuid.UUID             { return c.id }
func (c *Conn) Principal() auth.Principal { return c.principal }

// Outbound is drained by the writer goroutine.
func (c *Conn) Outbound() <-chan []byte { return c.out }

// Done is closed once the connection is torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close marks the connection as torn down. It is idempotent. The outbound
// channel is never closed so concurrent publishers cannot panic.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue queues one frame without blocking.
func (c *Conn) enqueue(frame []byte) error {
	if c.Closed() {
		return ErrConnClosed
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrQueueFull
	}
}

// Send encodes and queues a single envelope for this connection only.
func (c *Conn) Send(env realtime.Envelope) error {
	frame, err := realtime.Encode(env)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}
