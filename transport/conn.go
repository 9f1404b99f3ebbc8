// Package transport implements the server side of a connection.
//
// Writes are asynchronous: Write queues the frame and returns a WriteFuture.
// A single writer goroutine per connection drains the queue, so frames written by
// concurrent tasks never interleave on the wire.
//
//	task-1 ──Write(frame)──┐
//	task-2 ──Write(frame)──┼──→ outbound queue ──→ writeLoop ──→ net.Conn
//	task-3 ──Write(frame)──┘
package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
)

// ErrConnClosed is reported by writes issued after the connection was closed.
var ErrConnClosed = errors.New("transport: connection closed")

// Conn is the handle the execution core sees for a client connection.
type Conn interface {
	Write(b []byte) *WriteFuture
	RemoteAddr() net.Addr
}

type outbound struct {
	buf    []byte
	future *WriteFuture
}

// NetConn adapts a net.Conn to Conn.
type NetConn struct {
	id      string
	conn    net.Conn
	queue   chan outbound
	closed  chan struct{}
	once    sync.Once
	onClose []func(*NetConn)
	mu      sync.Mutex
}

// NewNetConn wraps conn and starts its writer goroutine.
// queueSize bounds the frames waiting to be flushed; a full queue blocks Write.
func NewNetConn(conn net.Conn, queueSize int) *NetConn {
	if queueSize <= 0 {
		queueSize = 64
	}
	c := &NetConn{
		id:     uuid.NewString(),
		conn:   conn,
		queue:  make(chan outbound, queueSize),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// ID uniquely identifies the connection for logging.
func (c *NetConn) ID() string { return c.id }

func (c *NetConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Read reads from the underlying connection. Only the connection's reader
// goroutine may call it.
func (c *NetConn) Read(p []byte) (int, error) { return c.conn.Read(p) }

// Write queues b for sending and returns without waiting for the flush.
func (c *NetConn) Write(b []byte) *WriteFuture {
	f := NewWriteFuture()
	select {
	case <-c.closed:
		f.Complete(0, ErrConnClosed)
		return f
	default:
	}
	select {
	case c.queue <- outbound{buf: b, future: f}:
		// Close may have won the race and writeLoop may already have drained
		// and exited, leaving b in a queue nobody reads.
		select {
		case <-c.closed:
			f.Complete(0, ErrConnClosed)
		default:
		}
	case <-c.closed:
		f.Complete(0, ErrConnClosed)
	}
	return f
}

// Flush waits until every write queued before it has been issued.
func (c *NetConn) Flush(ctx context.Context) error {
	f := c.Write(nil)
	select {
	case <-f.Done():
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnClose registers fn to run once when the connection closes.
func (c *NetConn) OnClose(fn func(*NetConn)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Closed is closed once Close has been called.
func (c *NetConn) Closed() <-chan struct{} { return c.closed }

// Close shuts the connection. Queued writes fail with ErrConnClosed.
func (c *NetConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.mu.Lock()
		callbacks := c.onClose
		c.onClose = nil
		c.mu.Unlock()
		for _, fn := range callbacks {
			fn(c)
		}
	})
	return err
}

func (c *NetConn) writeLoop() {
	for {
		select {
		case out := <-c.queue:
			n, err := c.conn.Write(out.buf)
			out.future.Complete(n, err)
			if err != nil {
				c.Close()
			}
		case <-c.closed:
			c.drain()
			return
		}
	}
}

func (c *NetConn) drain() {
	for {
		select {
		case out := <-c.queue:
			out.future.Complete(0, ErrConnClosed)
		default:
			return
		}
	}
}
