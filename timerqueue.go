package nnet

import (
	"container/heap"

	"golang.org/x/sys/unix"

	"github.com/nnetreact/nnet/internal/xlog"
)

const minTimerDelayMicros = 100

// timerQueue is one per EventLoop, driven by a timerfd registered as a
// reading Channel. Timers are kept in a min-heap ordered by expiration;
// activeTimers tracks which *timer values are currently live so Cancel can
// tell a still-pending timer from one that already fired or was already
// removed.
type timerQueue struct {
	loop    *EventLoop
	timerFd int
	channel *Channel

	timers       timerHeap
	activeTimers map[*timer]struct{}

	callingExpired bool
	cancelingSet   map[*timer]struct{}
}

func newTimerQueue(loop *EventLoop) *timerQueue {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		xlog.Fatalf("timerfd_create error: %v", err)
	}
	tq := &timerQueue{
		loop:         loop,
		timerFd:      fd,
		activeTimers: make(map[*timer]struct{}),
		cancelingSet: make(map[*timer]struct{}),
	}
	tq.channel = newChannel(loop, fd)
	tq.channel.SetReadCallback(func(Timestamp) { tq.handleRead() })
	tq.channel.EnableReading()
	return tq
}

func (tq *timerQueue) close() {
	tq.channel.DisableAll()
	tq.channel.Remove()
	_ = unix.Close(tq.timerFd)
}

// addTimer may be called from any goroutine; it posts the actual insertion
// to the owning loop.
func (tq *timerQueue) addTimer(cb func(), when Timestamp, interval float64) TimerID {
	t := newTimer(cb, when, interval)
	tq.loop.RunInLoop(func() { tq.addTimerInLoop(t) })
	return TimerID{t: t, seq: t.seq}
}

func (tq *timerQueue) addTimerInLoop(t *timer) {
	earliestChanged := tq.insert(t)
	if earliestChanged {
		resetTimerfd(tq.timerFd, t.expiration)
	}
}

func (tq *timerQueue) cancel(id TimerID) {
	tq.loop.RunInLoop(func() { tq.cancelInLoop(id) })
}

func (tq *timerQueue) cancelInLoop(id TimerID) {
	if _, ok := tq.activeTimers[id.t]; ok && id.t.seq == id.seq {
		heap.Remove(&tq.timers, id.t.heapIndex)
		delete(tq.activeTimers, id.t)
		return
	}
	if tq.callingExpired {
		tq.cancelingSet[id.t] = struct{}{}
	}
}

func (tq *timerQueue) insert(t *timer) bool {
	earliestChanged := len(tq.timers) == 0 || t.expiration < tq.timers[0].expiration
	heap.Push(&tq.timers, t)
	tq.activeTimers[t] = struct{}{}
	return earliestChanged
}

func (tq *timerQueue) handleRead() {
	now := Now()
	readTimerfd(tq.timerFd)

	expired := tq.getExpired(now)

	tq.callingExpired = true
	tq.cancelingSet = make(map[*timer]struct{})
	for _, t := range expired {
		t.callback()
	}
	tq.callingExpired = false

	tq.reset(expired, now)
}

// getExpired pops every timer whose expiration is <= now off the heap,
// copying them out before any callback runs so that a callback re-adding a
// timer never disturbs this pass's slice.
func (tq *timerQueue) getExpired(now Timestamp) []*timer {
	var expired []*timer
	for len(tq.timers) > 0 && tq.timers[0].expiration <= now {
		t := heap.Pop(&tq.timers).(*timer)
		delete(tq.activeTimers, t)
		expired = append(expired, t)
	}
	return expired
}

func (tq *timerQueue) reset(expired []*timer, now Timestamp) {
	for _, t := range expired {
		_, cancelling := tq.cancelingSet[t]
		if t.repeat && !cancelling {
			t.restart(now)
			tq.insert(t)
		}
	}

	if len(tq.timers) > 0 {
		resetTimerfd(tq.timerFd, tq.timers[0].expiration)
	}
}

func readTimerfd(fd int) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		xlog.Errorf("TimerQueue read error: %v", err)
		return
	}
	if n != 8 {
		xlog.Errorf("TimerQueue::handleRead reads %d bytes instead of 8", n)
	}
}

func resetTimerfd(fd int, expiration Timestamp) {
	micros := int64(expiration) - int64(Now())
	if micros < minTimerDelayMicros {
		micros = minTimerDelayMicros
	}

	newValue := unix.ItimerSpec{
		Value: unix.Timespec{
			Sec:  micros / 1000000,
			Nsec: (micros % 1000000) * 1000,
		},
	}
	if err := unix.TimerfdSettime(fd, 0, &newValue, nil); err != nil {
		xlog.Errorf("timerfd_settime error: %v", err)
	}
}
