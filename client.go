package nnet

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nnetreact/nnet/internal/xlog"
)

// Client assembles a Connector-driven outbound connection with optional
// auto-reconnect.
type Client struct {
	loop      *EventLoop
	connector *Connector
	name      string

	connectionCallback    func(*Connection)
	messageCallback       func(*Connection, *Buffer, Timestamp)
	writeCompleteCallback func(*Connection)

	retry   atomic.Bool
	connect atomic.Bool

	nextConnID int

	mu         sync.Mutex
	connection *Connection
}

// NewClient builds a Client that will dial serverAddr.
func NewClient(loop *EventLoop, serverAddr Addr, name string) *Client {
	c := &Client{
		loop:       loop,
		connector:  NewConnector(loop, serverAddr),
		name:       name,
		nextConnID: 1,
	}
	c.connect.Store(true)
	c.connector.SetNewConnectionCallback(c.newConnection)
	return c
}

func (c *Client) SetConnectionCallback(cb func(*Connection))                 { c.connectionCallback = cb }
func (c *Client) SetMessageCallback(cb func(*Connection, *Buffer, Timestamp)) { c.messageCallback = cb }
func (c *Client) SetWriteCompleteCallback(cb func(*Connection))              { c.writeCompleteCallback = cb }

func (c *Client) EnableRetry() { c.retry.Store(true) }
func (c *Client) Loop() *EventLoop { return c.loop }
func (c *Client) Name() string     { return c.name }

// Connection returns the current Connection, or nil if none is established.
func (c *Client) Connection() *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection
}

// Connect starts (or restarts) the underlying Connector.
func (c *Client) Connect() {
	xlog.Infof("Client %s: connecting to %s", c.name, c.connector.ServerAddress())
	c.connect.Store(true)
	c.connector.Start()
}

// Disconnect half-closes the current connection, if any.
func (c *Client) Disconnect() {
	c.connect.Store(false)
	c.mu.Lock()
	conn := c.connection
	c.mu.Unlock()
	if conn != nil {
		conn.Shutdown()
	}
}

// Stop halts the Connector's retry loop.
func (c *Client) Stop() {
	c.connect.Store(false)
	c.connector.Stop()
}

// ForceClose is the Go rendition of TcpClient's destructor: always
// force-close an existing connection (it is the only owner Client ever
// hands out), otherwise just stop the Connector (Open Question (g)).
func (c *Client) ForceClose() {
	c.mu.Lock()
	conn := c.connection
	c.mu.Unlock()

	if conn != nil {
		conn.ForceClose()
	} else {
		c.connector.Stop()
	}
}

func (c *Client) newConnection(fd int) {
	peerAddr := sock{fd: fd}.peerAddr()
	localAddr := sock{fd: fd}.localAddr()

	connName := fmt.Sprintf("%s:%s#%d", c.name, peerAddr, c.nextConnID)
	c.nextConnID++

	conn := NewConnection(c.loop, connName, fd, localAddr, peerAddr)
	conn.SetConnectionCallback(c.connectionCallback)
	conn.SetMessageCallback(c.messageCallback)
	conn.SetWriteCompleteCallback(c.writeCompleteCallback)
	conn.SetCloseCallback(c.removeConnection)

	c.mu.Lock()
	c.connection = conn
	c.mu.Unlock()

	conn.ConnectEstablished()
}

func (c *Client) removeConnection(conn *Connection) {
	c.mu.Lock()
	c.connection = nil
	c.mu.Unlock()

	conn.Loop().QueueInLoop(conn.ConnectDestroyed)

	if c.retry.Load() && c.connect.Load() {
		xlog.Infof("Client %s: reconnecting to %s", c.name, c.connector.ServerAddress())
		c.connector.Restart()
	}
}
