// Package server manages individual client connections, pairing each line
// stream with a bounded outbound queue and a write pump.
package server

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Client is the writable side of one connection as seen by the registries
// and the broadcaster. Messages are enqueued without blocking; a full queue
// marks the peer as too slow and the enqueue fails, which callers treat as a
// disconnect signal so one stalled reader cannot hold up a broadcast.
type Client struct {
	conn      Conn
	send      chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a Client around the given connection with a bounded
// outbound queue of queueSize messages.
func NewClient(conn Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		conn: conn,
		send: make(chan string, queueSize),
		done: make(chan struct{}),
	}
}

// Enqueue queues a message for delivery to this client. It never blocks and
// reports false when the client is closed or its queue is full.
func (c *Client) Enqueue(msg string) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// WritePump drains the outbound queue onto the connection until the client
// is closed or a write fails. On close it flushes whatever is already
// queued (so a farewell message still reaches the peer) and then closes the
// connection, which also unblocks the session's read loop. It must run in
// its own goroutine, one per client, so registry operations never perform
// network I/O themselves.
func (c *Client) WritePump() {
	defer func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Str("addr", c.conn.RemoteAddr()).Err(err).Msg("connection close failed")
		}
	}()

	for {
		select {
		case msg := <-c.send:
			if !c.write(msg) {
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

func (c *Client) write(msg string) bool {
	if err := c.conn.WriteString(msg); err != nil {
		if !isExpectedCloseError(err) {
			log.Warn().Str("addr", c.conn.RemoteAddr()).Err(err).Msg("outbound write failed")
		}
		c.Close()
		return false
	}
	return true
}

func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if !c.write(msg) {
				return
			}
		default:
			return
		}
	}
}

// Close stops accepting new messages and tells the write pump to flush and
// close the connection. It is safe to call from any goroutine and is
// idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Addr returns the remote address of the underlying connection.
func (c *Client) Addr() string {
	return c.conn.RemoteAddr()
}
