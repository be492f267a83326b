// Package testhelpers provides common utilities for testing the Nexus chat
// server.
//
// It contains reusable helpers shared across unit and integration tests:
// starting a server on an ephemeral port, driving scripted TCP clients, and
// asserting on protocol output, to reduce duplication in test files.
package testhelpers

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/nexus-chat-server/internal/server"
)

// DefaultWait bounds how long helpers wait for an expected protocol line.
const DefaultWait = 2 * time.Second

// StartTestServer starts a chat server on an ephemeral localhost port and
// registers its shutdown with the test cleanup. It returns the server and
// the address clients should dial.
func StartTestServer(t *testing.T) (*server.Server, string) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.Port = "127.0.0.1:0"
	cfg.RateLimit.Burst = 1000
	cfg.LogLevel = "error"

	server.SetupLogging(cfg.LogLevel)

	srv := server.NewServer(cfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(5 * time.Second)
	})

	return srv, srv.Addr()
}

// ChatClient is a scripted TCP client for the line protocol.
type ChatClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects a ChatClient to the given server address and registers its
// close with the test cleanup.
func Dial(t *testing.T, addr string) *ChatClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &ChatClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

// SendLine writes one protocol line.
func (c *ChatClient) SendLine(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("failed to send %q: %v", line, err)
	}
}

// WaitFor reads lines until one contains substr and returns it. It fails
// the test if the wait budget elapses or the stream ends first.
func (c *ChatClient) WaitFor(substr string) string {
	c.t.Helper()

	deadline := time.Now().Add(DefaultWait)
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.t.Fatalf("failed to set read deadline: %v", err)
		}
		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.t.Fatalf("waiting for %q: %v", substr, err)
		}
		if strings.Contains(line, substr) {
			return strings.TrimRight(line, "\r\n")
		}
	}
}

// AssertSilent reads for the given duration and fails the test if any line
// containing substr arrives. Unrelated lines are ignored.
func (c *ChatClient) AssertSilent(substr string, d time.Duration) {
	c.t.Helper()

	deadline := time.Now().Add(d)
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.t.Fatalf("failed to set read deadline: %v", err)
		}
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return
		}
		if strings.Contains(line, substr) {
			c.t.Fatalf("expected silence but received %q", strings.TrimRight(line, "\r\n"))
		}
	}
}

// ExpectClosed fails the test unless the server closes the connection
// within the wait budget.
func (c *ChatClient) ExpectClosed() {
	c.t.Helper()

	deadline := time.Now().Add(DefaultWait)
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.t.Fatalf("failed to set read deadline: %v", err)
		}
		if _, err := c.reader.ReadString('\n'); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.t.Fatal("expected connection to be closed but it stayed open")
			}
			return
		}
	}
}

// Close closes the client side of the connection.
func (c *ChatClient) Close() {
	_ = c.conn.Close()
}

// Login completes the username negotiation for name.
func (c *ChatClient) Login(name string) {
	c.t.Helper()
	c.WaitFor("What would you like your username to be?")
	c.SendLine(name)
	c.WaitFor("Welcome " + name + "!")
	c.WaitFor("End of list.")
}

// JoinRoom joins the named room and consumes the join banner up to the
// member list terminator and the in-room help text.
func (c *ChatClient) JoinRoom(room string) {
	c.t.Helper()
	c.SendLine("/join " + room)
	c.WaitFor("Welcome to " + room + "!")
	c.WaitFor("End of list.")
	c.WaitFor("End of list.")
}
