package nnet

import (
	"golang.org/x/sys/unix"

	"github.com/nnetreact/nnet/internal/xlog"
)

// Acceptor owns a listening socket and the Channel that fires when a new
// connection arrives. It always lives on the base loop.
type Acceptor struct {
	loop        *EventLoop
	acceptSock  sock
	channel     *Channel
	newConnCb   func(fd int, peer Addr)
	listening   bool
}

// NewAcceptor binds listenAddr, optionally with SO_REUSEPORT. Listen must
// be called separately (typically posted to the base loop by Server.Start).
func NewAcceptor(loop *EventLoop, listenAddr Addr, reusePort bool) *Acceptor {
	s := newNonblockingSocket()
	s.setReuseAddr(true)
	s.setReusePort(reusePort)
	s.bindAddress(listenAddr)

	a := &Acceptor{
		loop:       loop,
		acceptSock: s,
		channel:    newChannel(loop, s.Fd()),
	}
	a.channel.SetReadCallback(func(Timestamp) { a.handleRead() })
	return a
}

func (a *Acceptor) SetNewConnectionCallback(cb func(fd int, peer Addr)) {
	a.newConnCb = cb
}

func (a *Acceptor) Listening() bool { return a.listening }

// Listen issues listen(2) with the fixed backlog of 1024 and starts
// watching for readability. Must run on the base loop.
func (a *Acceptor) Listen() {
	a.listening = true
	a.acceptSock.listen()
	a.channel.EnableReading()
}

func (a *Acceptor) handleRead() {
	fd, peer, err := a.acceptSock.accept4()
	if err == nil {
		if a.newConnCb != nil {
			a.newConnCb(fd, peer)
		} else {
			_ = unix.Close(fd)
		}
		return
	}

	xlog.Errorf("Acceptor accept error: %v", err)
	if err == unix.EMFILE {
		xlog.Errorf("Acceptor: per-process fd limit reached")
	}
}
