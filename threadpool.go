package nnet

import "fmt"

// LoopThreadPool owns N worker LoopThreads and hands out their EventLoops in
// round-robin order. With zero workers, every loop request resolves to the
// base loop — Server relies on this "N=0 means single threaded" fallback.
type LoopThreadPool struct {
	baseLoop *EventLoop
	name     string
	started  bool
	numThreads int

	next    int
	threads []*LoopThread
	loops   []*EventLoop
}

// NewLoopThreadPool creates a pool anchored on baseLoop.
func NewLoopThreadPool(baseLoop *EventLoop, name string) *LoopThreadPool {
	return &LoopThreadPool{baseLoop: baseLoop, name: name}
}

func (p *LoopThreadPool) SetThreadNum(n int) { p.numThreads = n }

// Start spawns numThreads worker loops, running init on each before it
// enters Loop(). With numThreads == 0, init (if any) runs directly on the
// base loop instead.
func (p *LoopThreadPool) Start(init func(*EventLoop)) {
	p.started = true

	for i := 0; i < p.numThreads; i++ {
		name := fmt.Sprintf("%s%02d", p.name, i)
		t := NewLoopThread(init, name)
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, t.StartLoop())
	}

	if p.numThreads == 0 && init != nil {
		init(p.baseLoop)
	}
}

// NextLoop returns the next worker loop in round-robin order, or the base
// loop if there are no workers.
func (p *LoopThreadPool) NextLoop() *EventLoop {
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// AllLoops returns every worker loop, or a single-element slice holding the
// base loop if there are no workers.
func (p *LoopThreadPool) AllLoops() []*EventLoop {
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	out := make([]*EventLoop, len(p.loops))
	copy(out, p.loops)
	return out
}

func (p *LoopThreadPool) Started() bool { return p.started }
