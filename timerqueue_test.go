package nnet

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEventLoopRunAfter(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	fired := make(chan struct{}, 1)
	loop.RunAfter(0.05, func() {
		fired <- struct{}{}
		loop.Quit()
	})

	go func() {
		time.Sleep(2 * time.Second)
		loop.Quit()
	}()

	loop.Loop()

	select {
	case <-fired:
	default:
		t.Fatal("RunAfter callback did not fire")
	}
}

func TestEventLoopRunEveryAndCancel(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	var count atomic.Int32
	var id TimerID
	id = loop.RunEvery(0.02, func() {
		n := count.Add(1)
		if n >= 3 {
			loop.Cancel(id)
			loop.Quit()
		}
	})

	go func() {
		time.Sleep(2 * time.Second)
		loop.Quit()
	}()

	loop.Loop()

	if count.Load() < 3 {
		t.Fatalf("expected timer to fire at least 3 times, got %d", count.Load())
	}
}

// TestTimerCancelFromWithinOwnCallback exercises the "cancel the repeating
// timer currently running, from inside its own callback" discipline the
// timerQueue's callingExpired/cancelingSet guard is built for.
func TestTimerCancelFromWithinOwnCallback(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	var fires atomic.Int32
	var id TimerID
	id = loop.RunEvery(0.02, func() {
		fires.Add(1)
		loop.Cancel(id)
	})

	loop.RunAfter(0.2, loop.Quit)

	go func() {
		time.Sleep(2 * time.Second)
		loop.Quit()
	}()

	loop.Loop()

	if fires.Load() != 1 {
		t.Fatalf("expected exactly 1 fire after self-cancel, got %d", fires.Load())
	}
}
