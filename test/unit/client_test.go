package unit

import (
	"net"
	"testing"

	"github.com/Tyrowin/nexus-chat-server/internal/server"
)

// TestClientEnqueueDropsWhenFull verifies a stalled consumer cannot block a
// sender: once the bounded queue is full, enqueues fail instead of blocking.
func TestClientEnqueueDropsWhenFull(t *testing.T) {
	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	// No write pump: the queue fills up as a slow reader's would.
	client := server.NewClient(server.NewTCPConn(local, 2048, 0), 4)

	for i := 0; i < 4; i++ {
		if !client.Enqueue("line\n") {
			t.Fatalf("enqueue %d failed with space remaining", i)
		}
	}
	if client.Enqueue("overflow\n") {
		t.Fatal("enqueue succeeded on a full queue")
	}
}

// TestClientEnqueueAfterClose verifies enqueues fail once the client is
// closed and that Close is idempotent.
func TestClientEnqueueAfterClose(t *testing.T) {
	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	client := server.NewClient(server.NewTCPConn(local, 2048, 0), 4)
	client.Close()
	client.Close()

	if !client.Closed() {
		t.Fatal("client does not report closed after Close")
	}
	if client.Enqueue("late\n") {
		t.Fatal("enqueue succeeded on a closed client")
	}
}

// TestClientWritePumpDelivers verifies queued messages reach the peer in
// the order enqueued.
func TestClientWritePumpDelivers(t *testing.T) {
	tc := newTestClient(t)

	if !tc.client.Enqueue("first\n") || !tc.client.Enqueue("second\n") {
		t.Fatal("enqueue failed")
	}

	if got := tc.readLine(t, readWait); got != "first" {
		t.Fatalf("first delivery = %q", got)
	}
	if got := tc.readLine(t, readWait); got != "second" {
		t.Fatalf("second delivery = %q", got)
	}
}
