package nnet

import (
	"fmt"
	"sync/atomic"

	"github.com/nnetreact/nnet/internal/xlog"
)

// Server assembles an Acceptor and a LoopThreadPool: accepted connections
// are dispatched round-robin to worker loops, each owning its Connection for
// the rest of that connection's life.
type Server struct {
	loop     *EventLoop
	ipPort   string
	name     string
	acceptor *Acceptor
	pool     *LoopThreadPool

	connectionCallback    func(*Connection)
	messageCallback       func(*Connection, *Buffer, Timestamp)
	writeCompleteCallback func(*Connection)
	threadInitCallback    func(*EventLoop)

	started atomic.Int32

	nextConnID  int
	connections map[string]*Connection
}

// NewServer builds a Server bound to listenAddr, running its Acceptor on
// loop (the base loop). reusePort toggles SO_REUSEPORT on the listening
// socket.
func NewServer(loop *EventLoop, listenAddr Addr, name string, reusePort bool) *Server {
	s := &Server{
		loop:        loop,
		ipPort:      listenAddr.String(),
		name:        name,
		acceptor:    NewAcceptor(loop, listenAddr, reusePort),
		nextConnID:  1,
		connections: make(map[string]*Connection),
	}
	s.pool = NewLoopThreadPool(loop, name)
	s.acceptor.SetNewConnectionCallback(s.newConnection)
	return s
}

func (s *Server) SetThreadNum(n int) { s.pool.SetThreadNum(n) }

func (s *Server) SetConnectionCallback(cb func(*Connection))                    { s.connectionCallback = cb }
func (s *Server) SetMessageCallback(cb func(*Connection, *Buffer, Timestamp))    { s.messageCallback = cb }
func (s *Server) SetWriteCompleteCallback(cb func(*Connection))                 { s.writeCompleteCallback = cb }
func (s *Server) SetThreadInitCallback(cb func(*EventLoop))                     { s.threadInitCallback = cb }

func (s *Server) IPPort() string   { return s.ipPort }
func (s *Server) Name() string     { return s.name }
func (s *Server) Loop() *EventLoop { return s.loop }

// Start is idempotent: the first call starts the worker pool and posts
// Acceptor.Listen to the base loop; later calls are no-ops.
func (s *Server) Start() {
	if s.started.Add(1) == 1 {
		s.pool.Start(s.threadInitCallback)
		s.loop.RunInLoop(s.acceptor.Listen)
	}
}

func (s *Server) newConnection(fd int, peerAddr Addr) {
	ioLoop := s.pool.NextLoop()

	connName := fmt.Sprintf("%s-%s#%d", s.name, s.ipPort, s.nextConnID)
	s.nextConnID++

	localAddr := sock{fd: fd}.localAddr()
	xlog.Infof("Server %s: new connection %s from %s", s.name, connName, peerAddr)

	conn := NewConnection(ioLoop, connName, fd, localAddr, peerAddr)
	s.connections[connName] = conn

	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.SetCloseCallback(s.removeConnection)

	ioLoop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection is invoked as a Connection close-callback on the
// connection's own loop; it hops to the base loop before touching the
// shared map.
func (s *Server) removeConnection(conn *Connection) {
	s.loop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *Server) removeConnectionInLoop(conn *Connection) {
	xlog.Infof("Server %s: removing connection %s", s.name, conn.Name())
	delete(s.connections, conn.Name())
	conn.Loop().QueueInLoop(conn.ConnectDestroyed)
}
