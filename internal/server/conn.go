// Package server abstracts the stream transports (TCP, WebSocket) behind a
// single line-oriented connection interface consumed by sessions.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one client connection viewed as a stream of text lines. ReadLine
// blocks for the next line with the terminator already stripped and returns
// io.EOF when the stream ends. Implementations are safe for one concurrent
// reader and one concurrent writer.
type Conn interface {
	ReadLine() (string, error)
	WriteString(s string) error
	Close() error
	RemoteAddr() string
}

// tcpConn adapts a raw TCP connection to the Conn interface using a
// line scanner bounded by the configured maximum message size.
type tcpConn struct {
	conn        net.Conn
	scanner     *bufio.Scanner
	idleTimeout time.Duration
}

// NewTCPConn wraps a network connection in a line-oriented Conn. maxLine
// bounds the accepted line length and idleTimeout, when positive, bounds the
// wait for each line.
func NewTCPConn(conn net.Conn, maxLine int64, idleTimeout time.Duration) Conn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), int(maxLine))
	return &tcpConn{
		conn:        conn,
		scanner:     scanner,
		idleTimeout: idleTimeout,
	}
}

func (c *tcpConn) ReadLine() (string, error) {
	if c.idleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return "", err
		}
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(c.scanner.Text(), "\r"), nil
}

func (c *tcpConn) WriteString(s string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(s))
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wsConn adapts a WebSocket connection to the Conn interface, carrying one
// protocol line per text frame.
type wsConn struct {
	conn        *websocket.Conn
	idleTimeout time.Duration
}

// NewWSConn wraps an upgraded WebSocket connection in a line-oriented Conn.
func NewWSConn(conn *websocket.Conn, maxLine int64, idleTimeout time.Duration) Conn {
	conn.SetReadLimit(maxLine)
	return &wsConn{conn: conn, idleTimeout: idleTimeout}
}

func (c *wsConn) ReadLine() (string, error) {
	if c.idleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
			return "", err
		}
	}

	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseAbnormalClosure) || isExpectedCloseError(err) {
			return "", io.EOF
		}
		return "", err
	}
	return strings.TrimRight(string(payload), "\r\n"), nil
}

func (c *wsConn) WriteString(s string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
