package nnet

import "sync/atomic"

// timerSeq is the process-wide monotonic counter that makes every Timer's
// sequence number unique, used both as the cancellation key and, per Open
// Question (f), as the deterministic tie-break among timers sharing an
// expiration.
var timerSeq int64

func nextTimerSeq() int64 {
	return atomic.AddInt64(&timerSeq, 1)
}

// timer is a single scheduled callback: one-shot if interval == 0, repeating
// otherwise.
type timer struct {
	callback   func()
	expiration Timestamp
	interval   float64 // seconds; 0 means one-shot
	repeat     bool
	seq        int64

	heapIndex int // maintained by timerHeap.Swap for O(log n) cancel
}

func newTimer(cb func(), when Timestamp, interval float64) *timer {
	return &timer{
		callback:   cb,
		expiration: when,
		interval:   interval,
		repeat:     interval > 0,
		seq:        nextTimerSeq(),
	}
}

func (t *timer) restart(now Timestamp) {
	if t.repeat {
		t.expiration = now.Add(t.interval)
	} else {
		t.expiration = invalidTimestamp
	}
}

// TimerID identifies a scheduled timer for cancellation. It pairs the timer
// with its sequence number so a cancel racing a fresh timer that reused the
// same slot can never be confused with it.
type TimerID struct {
	t   *timer
	seq int64
}
