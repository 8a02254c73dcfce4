package nnet

import (
	"golang.org/x/sys/unix"

	"github.com/nnetreact/nnet/internal/xlog"
)

// sock owns exactly one file descriptor; Close releases it. It is the thin
// syscall-facing wrapper the original Socket class provides, translated to
// golang.org/x/sys/unix.
type sock struct {
	fd int
}

// newNonblockingSocket creates a non-blocking, close-on-exec IPv4 TCP socket.
// Failure here is a fatal configuration error per the error taxonomy.
func newNonblockingSocket() sock {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		xlog.Fatalf("socket create error: %v", err)
	}
	return sock{fd: fd}
}

func (s sock) Fd() int { return s.fd }

func (s sock) Close() error {
	return unix.Close(s.fd)
}

func (s sock) bindAddress(addr Addr) {
	if err := unix.Bind(s.fd, addr.sockaddr()); err != nil {
		xlog.Fatalf("bind fd %d to %s failed: %v", s.fd, addr, err)
	}
}

func (s sock) listen() {
	if err := unix.Listen(s.fd, 1024); err != nil {
		xlog.Fatalf("listen fd %d failed: %v", s.fd, err)
	}
}

// accept4 returns a non-blocking, close-on-exec connected fd and the peer
// address, or an error (notably unix.EMFILE, which the Acceptor treats as
// non-fatal).
func (s sock) accept4() (int, Addr, error) {
	connFd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, Addr{}, err
	}
	return connFd, addrFromSockaddr(sa), nil
}

// connect issues a non-blocking connect; the caller inspects errno to decide
// between "in progress" and a terminal failure.
func (s sock) connect(addr Addr) error {
	return unix.Connect(s.fd, addr.sockaddr())
}

func (s sock) shutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

func (s sock) setReuseAddr(on bool) {
	_ = unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

func (s sock) setReusePort(on bool) {
	_ = unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

func (s sock) setTCPNoDelay(on bool) {
	_ = unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

func (s sock) setKeepAlive(on bool) {
	_ = unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

// socketError reads and clears SO_ERROR, the idiom used after a non-blocking
// connect's write-readiness fires to discover whether it actually succeeded.
func (s sock) socketError() error {
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

func (s sock) localAddr() Addr {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return Addr{}
	}
	return addrFromSockaddr(sa)
}

func (s sock) peerAddr() Addr {
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return Addr{}
	}
	return addrFromSockaddr(sa)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
