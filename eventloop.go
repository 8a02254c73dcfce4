package nnet

import (
	"encoding/binary"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/nnetreact/nnet/internal/xlog"
)

// ErrPollBackendUnavailable is the error NewEventLoop logs through
// xlog.Fatalf, terminating the process, when NNET_USE_POLL is set: no
// poll(2) demultiplexer is shipped, so asking for it fails clearly instead
// of silently falling back to epoll.
var ErrPollBackendUnavailable = &pollBackendError{}

type pollBackendError struct{}

func (*pollBackendError) Error() string {
	return "nnet: NNET_USE_POLL is set but the poll(2) backend is not implemented"
}

const pollTimeoutMs = 10000

// one loop per goroutine, enforced the way muduo enforces one loop per
// thread: a package-level registry keyed by goroutine id.
var (
	loopRegistryMu sync.Mutex
	loopRegistry   = map[int64]*EventLoop{}
)

// EventLoop is a single-goroutine reactor: poll, dispatch active channels,
// then run whatever pending tasks other goroutines queued for it.
type EventLoop struct {
	goroutineID int64

	poller *epoller

	wakeupFd      int
	wakeupChannel *Channel

	timerQueue *timerQueue

	activeChannels []*Channel

	mu             sync.Mutex
	pendingTasks   []func()
	callingPending atomic.Bool

	looping atomic.Bool
	quit    atomic.Bool

	pollReturnTime Timestamp
}

// NewEventLoop constructs a loop pinned to the calling goroutine. Calling it
// a second time on the same goroutine (the registry is keyed by goroutine
// id) before the first loop is closed is a fatal programming error,
// matching "more than one loop per thread".
func NewEventLoop() *EventLoop {
	if os.Getenv("NNET_USE_POLL") != "" {
		xlog.Fatalf("%v", ErrPollBackendUnavailable)
	}

	gid := goroutineID()

	loopRegistryMu.Lock()
	if existing, ok := loopRegistry[gid]; ok {
		loopRegistryMu.Unlock()
		xlog.Fatalf("another EventLoop %p already exists on goroutine %d", existing, gid)
	}
	loopRegistryMu.Unlock()

	wakeupFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		xlog.Fatalf("eventfd error: %v", err)
	}

	loop := &EventLoop{
		goroutineID: gid,
		poller:      newEpoller(),
		wakeupFd:    wakeupFd,
	}
	loop.timerQueue = newTimerQueue(loop)
	loop.wakeupChannel = newChannel(loop, wakeupFd)
	loop.wakeupChannel.SetReadCallback(func(Timestamp) { loop.handleWakeupRead() })
	loop.wakeupChannel.EnableReading()

	loopRegistryMu.Lock()
	loopRegistry[gid] = loop
	loopRegistryMu.Unlock()

	xlog.Debugf("EventLoop created %p on goroutine %d", loop, gid)
	return loop
}

// Close tears down the wakeup fd and epoll instance. It must be called after
// Loop() has returned.
func (l *EventLoop) Close() {
	l.timerQueue.close()
	l.wakeupChannel.DisableAll()
	l.wakeupChannel.Remove()
	_ = unix.Close(l.wakeupFd)
	l.poller.close()

	loopRegistryMu.Lock()
	delete(loopRegistry, l.goroutineID)
	loopRegistryMu.Unlock()
}

func (l *EventLoop) handleWakeupRead() {
	var buf [8]byte
	n, err := unix.Read(l.wakeupFd, buf[:])
	if err != nil && err != unix.EAGAIN {
		xlog.Errorf("EventLoop wakeup read error: %v", err)
		return
	}
	if n != 8 {
		xlog.Errorf("EventLoop::handleRead reads %d bytes instead of 8", n)
	}
}

// IsInLoopGoroutine reports whether the caller is running on this loop's
// goroutine.
func (l *EventLoop) IsInLoopGoroutine() bool {
	return goroutineID() == l.goroutineID
}

func (l *EventLoop) assertInLoopGoroutine() {
	if !l.IsInLoopGoroutine() {
		xlog.Fatalf("EventLoop %p used from goroutine %d, but it's pinned to goroutine %d", l, goroutineID(), l.goroutineID)
	}
}

// Loop runs the reactor until Quit is called. It must run on the goroutine
// that constructed the EventLoop.
func (l *EventLoop) Loop() {
	l.assertInLoopGoroutine()
	l.looping.Store(true)
	l.quit.Store(false)

	xlog.Infof("EventLoop %p start looping", l)

	for !l.quit.Load() {
		l.activeChannels = l.activeChannels[:0]
		active, now := l.poller.poll(pollTimeoutMs)
		l.pollReturnTime = now
		l.activeChannels = append(l.activeChannels, active...)

		for _, ch := range l.activeChannels {
			ch.HandleEvent(now)
		}

		l.doPendingTasks()
	}

	xlog.Infof("EventLoop %p stop looping", l)
	l.looping.Store(false)
}

// Quit is cooperative: it sets a flag and, if called off-goroutine, wakes
// the loop so it can observe it. The callback in flight still runs to
// completion.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.IsInLoopGoroutine() {
		l.wakeup()
	}
}

// RunInLoop executes task immediately if already on the loop's goroutine,
// otherwise hands it to QueueInLoop.
func (l *EventLoop) RunInLoop(task func()) {
	if l.IsInLoopGoroutine() {
		task()
	} else {
		l.QueueInLoop(task)
	}
}

// QueueInLoop appends task to the pending queue under the loop's mutex and
// wakes the loop if the caller is off-goroutine or the loop is already
// mid-drain (to avoid losing a wakeup for work queued during that drain).
func (l *EventLoop) QueueInLoop(task func()) {
	l.mu.Lock()
	l.pendingTasks = append(l.pendingTasks, task)
	l.mu.Unlock()

	if !l.IsInLoopGoroutine() || l.callingPending.Load() {
		l.wakeup()
	}
}

// wakeup writes 8 bytes to the eventfd, waking epoll_wait on the other end.
func (l *EventLoop) wakeup() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	n, err := unix.Write(l.wakeupFd, buf[:])
	if err != nil {
		xlog.Errorf("EventLoop::wakeup write error: %v", err)
		return
	}
	if n != 8 {
		xlog.Errorf("EventLoop::wakeup writes %d bytes instead of 8", n)
	}
}

func (l *EventLoop) updateChannel(ch *Channel) {
	l.assertInLoopGoroutine()
	l.poller.updateChannel(ch)
}

func (l *EventLoop) removeChannel(ch *Channel) {
	l.assertInLoopGoroutine()
	l.poller.removeChannel(ch)
}

func (l *EventLoop) hasChannel(ch *Channel) bool {
	l.assertInLoopGoroutine()
	return l.poller.hasChannel(ch)
}

// doPendingTasks swaps the pending-task slice under the lock into a local
// before running any of them, so a task queuing more work doesn't disturb
// this pass's iteration.
func (l *EventLoop) doPendingTasks() {
	l.callingPending.Store(true)

	l.mu.Lock()
	tasks := l.pendingTasks
	l.pendingTasks = nil
	l.mu.Unlock()

	for _, t := range tasks {
		t()
	}

	l.callingPending.Store(false)
}

// RunAt schedules cb to run at (or soon after) when.
func (l *EventLoop) RunAt(when Timestamp, cb func()) TimerID {
	return l.timerQueue.addTimer(cb, when, 0)
}

// RunAfter schedules cb to run seconds from now.
func (l *EventLoop) RunAfter(seconds float64, cb func()) TimerID {
	return l.RunAt(Now().Add(seconds), cb)
}

// RunEvery schedules cb to run every seconds, starting one interval from now.
func (l *EventLoop) RunEvery(seconds float64, cb func()) TimerID {
	return l.timerQueue.addTimer(cb, Now().Add(seconds), seconds)
}

// Cancel suppresses a future firing of id, race-safe even when called from
// within a repeating timer's own callback.
func (l *EventLoop) Cancel(id TimerID) {
	l.timerQueue.cancel(id)
}
