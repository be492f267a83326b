package unit

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/nexus-chat-server/internal/server"
)

// testClient pairs a registry-facing Client with the reader side of an
// in-memory pipe, so unit tests can observe exactly what a peer would
// receive without touching a real socket.
type testClient struct {
	client *server.Client
	reader *bufio.Reader
	peer   net.Conn
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()

	local, remote := net.Pipe()
	client := server.NewClient(server.NewTCPConn(local, 2048, 0), 16)
	go client.WritePump()
	t.Cleanup(func() {
		client.Close()
		_ = remote.Close()
	})

	return &testClient{client: client, reader: bufio.NewReader(remote), peer: remote}
}

// readLine returns the next delivered line, failing the test if none
// arrives within timeout.
func (tc *testClient) readLine(t *testing.T, timeout time.Duration) string {
	t.Helper()

	if err := tc.peer.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	line, err := tc.reader.ReadString('\n')
	if err != nil {
		t.Fatalf("expected a line but got error: %v", err)
	}
	return strings.TrimRight(line, "\n")
}

// assertNoLine fails the test if any line is delivered within timeout.
func (tc *testClient) assertNoLine(t *testing.T, timeout time.Duration) {
	t.Helper()

	if err := tc.peer.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	line, err := tc.reader.ReadString('\n')
	if err == nil {
		t.Fatalf("expected no delivery but received %q", strings.TrimRight(line, "\n"))
	}
}
