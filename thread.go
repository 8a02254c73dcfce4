package nnet

import "runtime"

// LoopThread owns one goroutine that runs exactly one EventLoop to
// completion. It mirrors EventLoopThread: StartLoop launches the goroutine
// and blocks until that goroutine's EventLoop has been constructed and
// published back.
type LoopThread struct {
	initFunc func(*EventLoop)
	name     string
}

// NewLoopThread returns a LoopThread that will run init (if non-nil) once
// its EventLoop exists, before entering Loop().
func NewLoopThread(init func(*EventLoop), name string) *LoopThread {
	return &LoopThread{
		initFunc: init,
		name:     name,
	}
}

// StartLoop spawns the goroutine and returns once its EventLoop is ready.
func (lt *LoopThread) StartLoop() *EventLoop {
	ready := make(chan *EventLoop, 1)
	go lt.threadFunc(ready)
	return <-ready
}

func (lt *LoopThread) threadFunc(ready chan<- *EventLoop) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	loop := NewEventLoop()
	defer loop.Close()

	if lt.initFunc != nil {
		lt.initFunc(loop)
	}

	ready <- loop
	loop.Loop()
}
