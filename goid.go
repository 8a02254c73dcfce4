package nnet

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's id from the header
// runtime.Stack always writes ("goroutine N [running]: ..."), the same
// technique small goroutine-local-storage shims use in the absence of a
// public API for it. It is only ever used for loop affinity (the
// one-loop-per-goroutine registry, EventLoop.IsInLoopGoroutine and
// EventLoop.assertInLoopGoroutine), never for application logic.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return -1
	}
	b = b[len(prefix):]
	if sp := bytes.IndexByte(b, ' '); sp >= 0 {
		b = b[:sp]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
