package nnet

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/nnetreact/nnet/internal/xlog"
)

type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

const defaultHighWaterMark = 64 * 1024 * 1024 // 64MiB, matching TcpConnection's default

// Connection is an established TCP connection: read/write buffers, state
// machine, and the user-supplied callbacks. All mutation happens on its
// owning EventLoop's goroutine; user code may hold a *Connection across
// calls, so its lifetime is governed by Go's GC rather than by any explicit
// teardown order, with destroyed gating callbacks the way the original's
// weak_ptr tie did.
type Connection struct {
	loop *EventLoop
	name string

	state     atomic.Int32
	destroyed atomic.Bool

	sock    sock
	channel *Channel

	localAddr Addr
	peerAddr  Addr

	connectionCallback   func(*Connection)
	messageCallback      func(*Connection, *Buffer, Timestamp)
	writeCompleteCallback func(*Connection)
	highWaterMarkCallback func(*Connection, int)
	closeCallback         func(*Connection)

	highWaterMark int

	inputBuffer  *Buffer
	outputBuffer *Buffer

	faultError bool
}

// NewConnection wraps an already-accepted or already-connected fd. It starts
// in the connecting state; call ConnectEstablished once it should begin
// taking traffic.
func NewConnection(loop *EventLoop, name string, fd int, localAddr, peerAddr Addr) *Connection {
	c := &Connection{
		loop:          loop,
		name:          name,
		sock:          sock{fd: fd},
		channel:       newChannel(loop, fd),
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		highWaterMark: defaultHighWaterMark,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
	}
	c.state.Store(int32(stateConnecting))

	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)

	c.sock.setKeepAlive(true)
	return c
}

func (c *Connection) Loop() *EventLoop     { return c.loop }
func (c *Connection) Name() string         { return c.name }
func (c *Connection) LocalAddress() Addr   { return c.localAddr }
func (c *Connection) PeerAddress() Addr    { return c.peerAddr }

func (c *Connection) state() connState { return connState(c.state.Load()) }
func (c *Connection) setState(s connState) { c.state.Store(int32(s)) }

func (c *Connection) Connected() bool    { return c.state() == stateConnected }
func (c *Connection) Disconnected() bool { return c.state() == stateDisconnected }

func (c *Connection) SetConnectionCallback(cb func(*Connection))             { c.connectionCallback = cb }
func (c *Connection) SetMessageCallback(cb func(*Connection, *Buffer, Timestamp)) { c.messageCallback = cb }
func (c *Connection) SetWriteCompleteCallback(cb func(*Connection))          { c.writeCompleteCallback = cb }
func (c *Connection) SetHighWaterMarkCallback(cb func(*Connection, int), mark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = mark
}
func (c *Connection) SetCloseCallback(cb func(*Connection)) { c.closeCallback = cb }

func (c *Connection) SetTCPNoDelay(on bool) { c.sock.setTCPNoDelay(on) }

// ConnectEstablished transitions connecting -> connected, ties the Channel's
// liveness check to this Connection, enables reading, and fires the
// connection callback.
func (c *Connection) ConnectEstablished() {
	c.loop.assertInLoopGoroutine()
	c.setState(stateConnected)
	c.channel.Tie(func() bool { return !c.destroyed.Load() })
	c.channel.EnableReading()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// ConnectDestroyed is the terminal step, run on the connection's own loop:
// if still connected it transitions to disconnected and fires the
// connection callback one last time, then removes the Channel from the
// demultiplexer and closes the socket. Safe to call more than once.
func (c *Connection) ConnectDestroyed() {
	c.loop.assertInLoopGoroutine()
	if c.destroyed.Load() {
		return
	}

	if c.state() == stateConnected {
		c.setState(stateDisconnected)
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.channel.Remove()
	c.destroyed.Store(true)
	_ = c.sock.Close()
}

func (c *Connection) handleRead(receiveTime Timestamp) {
	n, err := c.inputBuffer.ReadFromFd(c.sock.Fd())
	switch {
	case err == nil && n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case err == nil && n == 0:
		c.handleClose()
	default:
		xlog.Errorf("Connection %s read error: %v", c.name, err)
		c.handleError()
	}
}

// Send queues bytes for delivery. Dropped (with a log line) if the
// connection is not connected. Accepts a caller-owned slice; it is copied
// into the output buffer if it cannot be written immediately.
func (c *Connection) Send(data []byte) {
	if c.state() != stateConnected {
		xlog.Errorf("Connection %s: not connected, give up sending", c.name)
		return
	}
	if c.loop.IsInLoopGoroutine() {
		c.sendInLoop(data)
	} else {
		owned := append([]byte(nil), data...)
		c.loop.RunInLoop(func() { c.sendInLoop(owned) })
	}
}

// SendString is a convenience wrapper, since the length-prefixed codec and
// the example servers mostly deal in text.
func (c *Connection) SendString(s string) {
	c.Send([]byte(s))
}

func (c *Connection) sendInLoop(data []byte) {
	if c.state() == stateDisconnected {
		xlog.Errorf("Connection %s: disconnected, give up writing", c.name)
		return
	}

	var nwrote int
	remaining := len(data)
	faultError := false

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.sock.Fd(), data)
		if err == nil {
			nwrote = n
			remaining = len(data) - nwrote
			if remaining == 0 && c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
			}
		} else {
			nwrote = 0
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				xlog.Errorf("Connection %s sendInLoop error: %v", c.name, err)
				if err == unix.EPIPE || err == unix.ECONNRESET {
					faultError = true
				}
			}
		}
	}

	if !faultError && remaining > 0 {
		oldLen := c.outputBuffer.ReadableBytes()
		if oldLen+remaining >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
			total := oldLen + remaining
			c.loop.QueueInLoop(func() { c.highWaterMarkCallback(c, total) })
		}
		c.outputBuffer.Append(data[nwrote:])
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

func (c *Connection) handleWrite() {
	if !c.channel.IsWriting() {
		xlog.Errorf("Connection %s fd=%d is down, no more writing", c.name, c.sock.Fd())
		return
	}

	n, err := c.outputBuffer.WriteToFd(c.sock.Fd())
	if err != nil {
		xlog.Errorf("Connection %s handleWrite error: %v", c.name, err)
		return
	}

	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
		}
		if c.state() == stateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

// Shutdown half-closes the write side once the output buffer drains.
func (c *Connection) Shutdown() {
	if c.state() == stateConnected {
		c.setState(stateDisconnecting)
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *Connection) shutdownInLoop() {
	if !c.channel.IsWriting() {
		_ = c.sock.shutdownWrite()
	}
}

// ForceClose closes the connection immediately regardless of pending
// output, supporting Client's destructor-equivalent cleanup path (Open
// Question (g)).
func (c *Connection) ForceClose() {
	if c.state() == stateConnected || c.state() == stateDisconnecting {
		c.setState(stateDisconnecting)
		c.loop.QueueInLoop(c.forceCloseInLoop)
	}
}

func (c *Connection) forceCloseInLoop() {
	if c.state() == stateConnected || c.state() == stateDisconnecting {
		c.handleClose()
	}
}

func (c *Connection) handleClose() {
	c.setState(stateDisconnected)
	c.channel.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *Connection) handleError() {
	err := c.sock.socketError()
	xlog.Errorf("Connection %s SO_ERROR: %v", c.name, err)
}
