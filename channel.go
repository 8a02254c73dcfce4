package nnet

import "golang.org/x/sys/unix"

// channel state_index values, mirroring EPollPoller's kNew/kAdded/kDeleted.
type channelState int

const (
	channelNew channelState = iota
	channelAdded
	channelDeleted
)

const (
	eventNone  = 0
	eventRead  = unix.EPOLLIN | unix.EPOLLPRI
	eventWrite = unix.EPOLLOUT
)

// Channel binds one fd to the events it cares about and to the four
// callbacks that fire when the demultiplexer reports activity. A Channel is
// bound to exactly one EventLoop for its whole life and must be removed
// before it is dropped.
type Channel struct {
	loop    *EventLoop
	fd      int
	events  uint32
	revents uint32
	state   channelState

	tie func() bool // liveness predicate standing in for weak_ptr::lock

	readCallback  func(Timestamp)
	writeCallback func()
	closeCallback func()
	errorCallback func()
}

// newChannel creates a Channel for fd, owned by loop. It starts with no
// interest registered.
func newChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, state: channelNew}
}

func (c *Channel) Fd() int            { return c.fd }
func (c *Channel) Events() uint32     { return c.events }
func (c *Channel) setRevents(r uint32) { c.revents = r }

func (c *Channel) State() channelState    { return c.state }
func (c *Channel) setState(s channelState) { c.state = s }

// Tie sets the liveness predicate checked before every callback dispatch.
// It stands in for the original's weak_ptr<void> guard: Go's GC already
// keeps the owning Connection alive for as long as this closure exists, so
// what Tie actually protects against is running a callback after the
// Connection has torn itself down.
func (c *Channel) Tie(alive func() bool) {
	c.tie = alive
}

func (c *Channel) SetReadCallback(cb func(Timestamp)) { c.readCallback = cb }
func (c *Channel) SetWriteCallback(cb func())         { c.writeCallback = cb }
func (c *Channel) SetCloseCallback(cb func())         { c.closeCallback = cb }
func (c *Channel) SetErrorCallback(cb func())         { c.errorCallback = cb }

func (c *Channel) EnableReading() {
	c.events |= eventRead
	c.update()
}

func (c *Channel) DisableReading() {
	c.events &^= uint32(eventRead)
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= eventWrite
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= uint32(eventWrite)
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = eventNone
	c.update()
}

func (c *Channel) IsNoneEvent() bool { return c.events == eventNone }
func (c *Channel) IsReading() bool   { return c.events&eventRead != 0 }
func (c *Channel) IsWriting() bool   { return c.events&eventWrite != 0 }

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// Remove asks the owning loop to drop this Channel from the demultiplexer.
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

// HandleEvent dispatches on the reported event mask in the fixed order the
// spec requires: close, then error, then read, then write. If a tie is set
// and reports the owner is gone, the event is dropped silently.
func (c *Channel) HandleEvent(receiveTime Timestamp) {
	if c.tie != nil && !c.tie() {
		return
	}
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime Timestamp) {
	if c.revents&unix.EPOLLHUP != 0 && c.revents&unix.EPOLLIN == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if c.revents&unix.EPOLLERR != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents&uint32(eventRead) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if c.revents&unix.EPOLLOUT != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
