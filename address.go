package nnet

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Addr is an IPv4 host:port endpoint, mirroring the original InetAddress's
// IPv4-only scope (a Non-goal excludes IPv6 here).
type Addr struct {
	ip   net.IP
	port uint16
}

// NewAddr builds an Addr from a dotted-quad (or "0.0.0.0"/""-for-any-local)
// host and a port.
func NewAddr(host string, port uint16) Addr {
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	return Addr{ip: ip.To4(), port: port}
}

// addrFromSockaddr converts a syscall-level sockaddr into an Addr.
func addrFromSockaddr(sa unix.Sockaddr) Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, s.Addr[:])
		return Addr{ip: ip, port: uint16(s.Port)}
	default:
		return Addr{ip: net.IPv4zero, port: 0}
	}
}

// sockaddr converts back to the form the unix socket syscalls expect.
func (a Addr) sockaddr() *unix.SockaddrInet4 {
	var sa unix.SockaddrInet4
	sa.Port = int(a.port)
	ip4 := a.ip.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	copy(sa.Addr[:], ip4)
	return &sa
}

// IP returns the dotted-quad host part.
func (a Addr) IP() string {
	if a.ip == nil {
		return "0.0.0.0"
	}
	return a.ip.String()
}

// Port returns the port in host byte order.
func (a Addr) Port() uint16 {
	return a.port
}

// String renders "ip:port", matching InetAddress::toIpPort.
func (a Addr) String() string {
	return net.JoinHostPort(a.IP(), strconv.Itoa(int(a.port)))
}

func (a Addr) equal(other Addr) bool {
	return a.ip.Equal(other.ip) && a.port == other.port
}
