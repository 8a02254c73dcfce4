package nnet

import (
	"golang.org/x/sys/unix"

	"github.com/nnetreact/nnet/internal/xlog"
)

const initEventListSize = 16

// epoller is the epoll-backed Demultiplexer. Only the owning EventLoop may
// mutate it; it holds a channels map alongside epoll's own kernel-side
// registration so updateChannel/removeChannel can be expressed as ADD/MOD/DEL
// decisions without round-tripping through the kernel to ask what's there.
type epoller struct {
	epfd     int
	channels map[int]*Channel
	events   []unix.EpollEvent
}

func newEpoller() *epoller {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		xlog.Fatalf("epoll_create1 error: %v", err)
	}
	return &epoller{
		epfd:     fd,
		channels: make(map[int]*Channel),
		events:   make([]unix.EpollEvent, initEventListSize),
	}
}

func (p *epoller) close() {
	_ = unix.Close(p.epfd)
}

// poll blocks for up to timeoutMs and returns the active channels plus the
// timestamp at which epoll_wait returned.
func (p *epoller) poll(timeoutMs int) ([]*Channel, Timestamp) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := Now()
	if err != nil {
		if err != unix.EINTR {
			xlog.Errorf("epoll_wait error: %v", err)
		}
		return nil, now
	}
	if n == 0 {
		return nil, now
	}

	active := make([]*Channel, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		ch := p.channels[int(ev.Fd)]
		if ch == nil {
			continue
		}
		ch.setRevents(ev.Events)
		active = append(active, ch)
	}

	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return active, now
}

// updateChannel implements the new/added/deleted transition table from
// EPollPoller::updateChannel.
func (p *epoller) updateChannel(ch *Channel) {
	switch ch.State() {
	case channelNew, channelDeleted:
		if ch.State() == channelNew {
			p.channels[ch.Fd()] = ch
		}
		ch.setState(channelAdded)
		p.ctl(unix.EPOLL_CTL_ADD, ch)
	default: // channelAdded
		if ch.IsNoneEvent() {
			p.ctl(unix.EPOLL_CTL_DEL, ch)
			ch.setState(channelDeleted)
		} else {
			p.ctl(unix.EPOLL_CTL_MOD, ch)
		}
	}
}

func (p *epoller) removeChannel(ch *Channel) {
	delete(p.channels, ch.Fd())
	if ch.State() == channelAdded {
		p.ctl(unix.EPOLL_CTL_DEL, ch)
	}
	ch.setState(channelNew)
}

func (p *epoller) hasChannel(ch *Channel) bool {
	existing, ok := p.channels[ch.Fd()]
	return ok && existing == ch
}

func (p *epoller) ctl(op int, ch *Channel) {
	ev := unix.EpollEvent{Events: ch.Events(), Fd: int32(ch.Fd())}
	if err := unix.EpollCtl(p.epfd, op, ch.Fd(), &ev); err != nil {
		if op == unix.EPOLL_CTL_DEL {
			xlog.Errorf("epoll_ctl del error: %v", err)
		} else {
			xlog.Fatalf("epoll_ctl add/mod error: %v", err)
		}
	}
}
