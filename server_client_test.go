package nnet

import (
	"sync/atomic"
	"testing"
	"time"
)

func freeAddr(t testing.TB) Addr {
	t.Helper()
	s := newNonblockingSocket()
	s.setReuseAddr(true)
	s.bindAddress(NewAddr("127.0.0.1", 0))
	addr := s.localAddr()
	s.Close()
	return addr
}

// TestEchoServerClient wires an echo Server and a Client on the same base
// loop and checks that a message sent by the client round-trips, exercising
// the single-threaded echo scenario end to end.
func TestEchoServerClient(t *testing.T) {
	addr := freeAddr(t)
	loop := NewEventLoop()
	defer loop.Close()

	server := NewServer(loop, addr, "echo-test", false)
	server.SetMessageCallback(func(conn *Connection, buf *Buffer, recvTime Timestamp) {
		conn.SendString(buf.RetrieveAllAsString())
	})
	server.Start()

	client := NewClient(loop, addr, "echo-client")

	var received atomic.Value
	done := make(chan struct{})

	client.SetConnectionCallback(func(conn *Connection) {
		if conn.Connected() {
			conn.SendString("ping")
		}
	})
	client.SetMessageCallback(func(conn *Connection, buf *Buffer, recvTime Timestamp) {
		received.Store(buf.RetrieveAllAsString())
		close(done)
	})
	client.Connect()

	go func() {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		loop.Quit()
	}()

	loop.Loop()

	got, _ := received.Load().(string)
	if got != "ping" {
		t.Fatalf("expected echoed 'ping', got %q", got)
	}
}

// TestEchoServerWithWorkerPool repeats the echo scenario with the Server
// dispatching onto a worker LoopThreadPool instead of the base loop, the
// multi-threaded variant of the same scenario.
func TestEchoServerWithWorkerPool(t *testing.T) {
	addr := freeAddr(t)
	loop := NewEventLoop()
	defer loop.Close()

	server := NewServer(loop, addr, "echo-pool-test", false)
	server.SetThreadNum(2)
	server.SetMessageCallback(func(conn *Connection, buf *Buffer, recvTime Timestamp) {
		conn.SendString(buf.RetrieveAllAsString())
	})
	server.Start()

	client := NewClient(loop, addr, "echo-pool-client")

	var received atomic.Value
	done := make(chan struct{})

	client.SetConnectionCallback(func(conn *Connection) {
		if conn.Connected() {
			conn.SendString("pooled-ping")
		}
	})
	client.SetMessageCallback(func(conn *Connection, buf *Buffer, recvTime Timestamp) {
		received.Store(buf.RetrieveAllAsString())
		close(done)
	})
	client.Connect()

	go func() {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		loop.Quit()
	}()

	loop.Loop()

	got, _ := received.Load().(string)
	if got != "pooled-ping" {
		t.Fatalf("expected echoed 'pooled-ping', got %q", got)
	}
}

// TestHighWaterMarkCallbackFires writes enough unread data to cross a low
// high-water mark and checks the callback fires at least once for the
// upward crossing, matching the spec's back-pressure scenario.
func TestHighWaterMarkCallbackFires(t *testing.T) {
	addr := freeAddr(t)
	loop := NewEventLoop()
	defer loop.Close()

	const mark = 1024
	var crossings atomic.Int32
	crossedCh := make(chan struct{}, 1)

	server := NewServer(loop, addr, "hwm-test", false)
	server.SetConnectionCallback(func(conn *Connection) {
		if conn.Connected() {
			conn.SetHighWaterMarkCallback(func(c *Connection, bytes int) {
				if crossings.Add(1) == 1 {
					crossedCh <- struct{}{}
				}
			}, mark)
			// 1MiB in one call, per spec scenario 3: large enough that the
			// kernel send buffer can't absorb it in the direct-write fast
			// path, so the remainder genuinely backs up into outputBuffer
			// and crosses the high-water mark.
			conn.Send(make([]byte, 1<<20))
		}
	})
	server.Start()

	client := NewClient(loop, addr, "hwm-client")
	// The client shares the server's loop, so it cannot read while the
	// server's connection callback issues the 1MiB Send: whatever the direct
	// write leaves over lands in the output buffer at once and crosses the
	// high-water mark. Bytes that arrive later are simply discarded.
	client.SetConnectionCallback(func(conn *Connection) {})
	client.SetMessageCallback(func(conn *Connection, buf *Buffer, recvTime Timestamp) {
		buf.RetrieveAll()
	})
	client.Connect()

	go func() {
		select {
		case <-crossedCh:
		case <-time.After(2 * time.Second):
		}
		loop.Quit()
	}()

	loop.Loop()

	if crossings.Load() == 0 {
		t.Fatalf("expected high-water-mark callback to fire at least once")
	}
}

// TestHalfCloseShutdown checks that Shutdown() half-closes the write side:
// the peer sees EOF on read while the connection can still have been
// written to beforehand, the daytime-style scenario.
func TestHalfCloseShutdown(t *testing.T) {
	addr := freeAddr(t)
	loop := NewEventLoop()
	defer loop.Close()

	server := NewServer(loop, addr, "halfclose-test", false)
	server.SetConnectionCallback(func(conn *Connection) {
		if conn.Connected() {
			conn.SendString("bye")
			conn.Shutdown()
		}
	})
	server.Start()

	client := NewClient(loop, addr, "halfclose-client")
	var gotMessage atomic.Value
	closedCh := make(chan struct{})

	client.SetConnectionCallback(func(conn *Connection) {
		if !conn.Connected() {
			select {
			case <-closedCh:
			default:
				close(closedCh)
			}
		}
	})
	client.SetMessageCallback(func(conn *Connection, buf *Buffer, recvTime Timestamp) {
		gotMessage.Store(buf.RetrieveAllAsString())
	})
	client.Connect()

	go func() {
		select {
		case <-closedCh:
		case <-time.After(2 * time.Second):
		}
		loop.Quit()
	}()

	loop.Loop()

	got, _ := gotMessage.Load().(string)
	if got != "bye" {
		t.Fatalf("expected to receive 'bye' before half-close, got %q", got)
	}
}
