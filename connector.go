package nnet

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/nnetreact/nnet/internal/xlog"
)

type connectorState int

const (
	connectorDisconnected connectorState = iota
	connectorConnecting
	connectorConnected
)

const (
	initRetryDelayMs = 500
	maxRetryDelayMs  = 30 * 1000
)

// Connector drives a non-blocking connect with exponential-backoff retry on
// behalf of Client.
type Connector struct {
	loop       *EventLoop
	serverAddr Addr

	channel *Channel
	sock    sock

	connect atomic.Bool
	state   connectorState

	newConnCb func(fd int)

	retryDelayMs int
}

// NewConnector builds a Connector targeting serverAddr. Call Start to begin.
func NewConnector(loop *EventLoop, serverAddr Addr) *Connector {
	return &Connector{
		loop:         loop,
		serverAddr:   serverAddr,
		state:        connectorDisconnected,
		retryDelayMs: initRetryDelayMs,
	}
}

func (c *Connector) SetNewConnectionCallback(cb func(fd int)) {
	c.newConnCb = cb
}

func (c *Connector) ServerAddress() Addr { return c.serverAddr }

// Start may be called from any goroutine.
func (c *Connector) Start() {
	c.connect.Store(true)
	c.loop.RunInLoop(c.startInLoop)
}

func (c *Connector) startInLoop() {
	if c.connect.Load() {
		c.doConnect()
	} else {
		xlog.Debugf("Connector: not connecting, start suppressed")
	}
}

func (c *Connector) doConnect() {
	c.sock = newNonblockingSocket()
	err := c.sock.connect(c.serverAddr)

	switch err {
	case nil, unix.EINPROGRESS, unix.EINTR, unix.EISCONN:
		c.connecting(c.sock.Fd())
	case unix.EAGAIN, unix.EADDRINUSE, unix.EADDRNOTAVAIL, unix.ECONNREFUSED, unix.ENETUNREACH:
		c.retry(c.sock.Fd())
	case unix.EACCES, unix.EPERM, unix.EAFNOSUPPORT, unix.EALREADY, unix.EBADF, unix.EFAULT, unix.ENOTSOCK:
		xlog.Errorf("Connector: fatal connect error: %v", err)
		_ = c.sock.Close()
	default:
		xlog.Errorf("Connector: unexpected connect error: %v", err)
		_ = c.sock.Close()
	}
}

func (c *Connector) connecting(fd int) {
	c.state = connectorConnecting

	ch := newChannel(c.loop, fd)
	ch.SetWriteCallback(c.handleWrite)
	ch.SetErrorCallback(c.handleError)
	c.channel = ch
	ch.EnableWriting()
}

func (c *Connector) retry(fd int) {
	_ = unix.Close(fd)
	c.state = connectorDisconnected

	if c.connect.Load() {
		xlog.Infof("Connector: retrying %s in %dms", c.serverAddr, c.retryDelayMs)
		c.loop.RunAfter(float64(c.retryDelayMs)/1000.0, c.startInLoop)
		c.retryDelayMs *= 2
		if c.retryDelayMs > maxRetryDelayMs {
			c.retryDelayMs = maxRetryDelayMs
		}
	} else {
		xlog.Debugf("Connector: not connecting, retry suppressed")
	}
}

// Restart resets connect state and delay, then reconnects. Must run on the
// loop's goroutine.
func (c *Connector) Restart() {
	c.state = connectorDisconnected
	c.retryDelayMs = initRetryDelayMs
	c.connect.Store(true)
	c.startInLoop()
}

// Stop may be called from any goroutine.
func (c *Connector) Stop() {
	c.connect.Store(false)
	c.loop.QueueInLoop(c.stopInLoop)
}

func (c *Connector) stopInLoop() {
	if c.state == connectorConnecting {
		c.state = connectorDisconnected
		fd := c.removeAndResetChannel()
		c.retry(fd)
	}
}

func (c *Connector) handleWrite() {
	if c.state != connectorConnecting {
		return
	}

	fd := c.removeAndResetChannel()

	if err := c.sock.socketError(); err != nil {
		xlog.Errorf("Connector: SO_ERROR = %v", err)
		c.retry(fd)
		return
	}
	if c.isSelfConnect(fd) {
		xlog.Errorf("Connector: self connect")
		c.retry(fd)
		return
	}

	c.state = connectorConnected
	if c.connect.Load() {
		if c.newConnCb != nil {
			c.newConnCb(fd)
		}
	} else {
		_ = unix.Close(fd)
	}
}

func (c *Connector) handleError() {
	if c.state != connectorConnecting {
		return
	}
	fd := c.removeAndResetChannel()
	if err := c.sock.socketError(); err != nil {
		xlog.Infof("Connector: SO_ERROR = %v", err)
	}
	c.retry(fd)
}

// removeAndResetChannel detaches the connect-phase Channel. The Channel
// itself is freed on the next loop pass (queued, not immediate) so we never
// destroy it from inside its own callback.
func (c *Connector) removeAndResetChannel() int {
	c.channel.DisableAll()
	c.channel.Remove()
	fd := c.channel.Fd()
	ch := c.channel
	c.loop.QueueInLoop(func() { _ = ch })
	c.channel = nil
	return fd
}

// isSelfConnect detects the TCP anomaly where a non-blocking connect lands
// on the local endpoint equalling the peer endpoint.
func (c *Connector) isSelfConnect(fd int) bool {
	s := sock{fd: fd}
	return s.localAddr().equal(s.peerAddr())
}
