package nnet

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/sys/unix"
)

const (
	cheapPrepend = 8
	initialSize  = 1024
	extraBufSize = 65536
)

// Buffer is a growable byte queue split into three regions by two indices,
// reader <= writer <= len(buf): prependable | readable | writable. The
// prepend zone starts at 8 bytes so small length headers (as used by the
// length-prefixed codec) can be added without shifting the readable data.
type Buffer struct {
	buf    []byte
	reader int
	writer int
}

// NewBuffer returns a Buffer with the default initial capacity.
func NewBuffer() *Buffer {
	return NewBufferSize(initialSize)
}

// NewBufferSize returns a Buffer whose writable region starts at size bytes.
func NewBufferSize(size int) *Buffer {
	return &Buffer{
		buf:    make([]byte, cheapPrepend+size),
		reader: cheapPrepend,
		writer: cheapPrepend,
	}
}

// ReadableBytes is the length of the data available to Peek/Retrieve.
func (b *Buffer) ReadableBytes() int { return b.writer - b.reader }

// WritableBytes is the room left in the tail of the backing array.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writer }

// PrependableBytes is the room left in front of the readable region.
func (b *Buffer) PrependableBytes() int { return b.reader }

// Peek returns the readable region without consuming it. The slice is only
// valid until the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.reader:b.writer]
}

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.reader += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveAll resets both indices back to the prepend boundary.
func (b *Buffer) RetrieveAll() {
	b.reader = cheapPrepend
	b.writer = cheapPrepend
}

// RetrieveAsString consumes and returns n bytes as a string.
func (b *Buffer) RetrieveAsString(n int) string {
	s := string(b.buf[b.reader : b.reader+n])
	b.Retrieve(n)
	return s
}

// RetrieveAllAsString consumes and returns the entire readable region.
func (b *Buffer) RetrieveAllAsString() string {
	return b.RetrieveAsString(b.ReadableBytes())
}

// EnsureWritable grows or compacts the buffer so at least n bytes are
// writable at the tail, following the original's makeSpace rule: prefer
// shifting the readable bytes back to the prepend boundary over growing the
// backing array, and only grow when even that wouldn't free enough room.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	b.makeSpace(n)
}

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+cheapPrepend {
		grown := make([]byte, b.writer+n)
		copy(grown, b.buf[:b.writer])
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[cheapPrepend:], b.buf[b.reader:b.writer])
	b.reader = cheapPrepend
	b.writer = b.reader + readable
}

// Append copies data onto the tail of the writable region, growing first if
// necessary.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	copy(b.buf[b.writer:], data)
	b.writer += len(data)
}

// Prepend writes data immediately before the readable region; it requires
// len(data) <= PrependableBytes().
func (b *Buffer) Prepend(data []byte) {
	b.reader -= len(data)
	copy(b.buf[b.reader:], data)
}

// PrependInt32 prepends a big-endian 32-bit length header, the operation the
// length-prefixed chat codec relies on.
func (b *Buffer) PrependInt32(v int32) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(v))
	b.Prepend(hdr[:])
}

// ReadFromFd performs a scatter read from fd into the writable tail plus a
// stack-sized extra buffer, exactly as Buffer::readFd does: this lets a
// single readv drain an arbitrarily large TCP receive without knowing the
// size in advance. Returns the byte count and any I/O error (EAGAIN is a
// normal non-blocking signal, not logged here).
func (b *Buffer) ReadFromFd(fd int) (int, error) {
	var extra [extraBufSize]byte
	writable := b.WritableBytes()

	iovs := make([]unix.Iovec, 0, 2)
	if writable > 0 {
		iov := unix.Iovec{Base: &b.buf[b.writer]}
		iov.SetLen(writable)
		iovs = append(iovs, iov)
	}
	if writable < extraBufSize {
		iov := unix.Iovec{Base: &extra[0]}
		iov.SetLen(extraBufSize)
		iovs = append(iovs, iov)
	}

	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.writer += n
	} else {
		b.writer = len(b.buf)
		b.Append(extra[:n-writable])
	}
	return n, nil
}

// WriteToFd writes the readable region to fd via a plain write(2); callers
// handle partial writes by retrieving only what succeeded.
func (b *Buffer) WriteToFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return 0, err
	}
	return n, nil
}

// FindCRLF returns the offset (relative to the start of the readable
// region) of the first "\r\n", or -1 if none is present yet.
func (b *Buffer) FindCRLF() int {
	idx := bytes.Index(b.buf[b.reader:b.writer], []byte{'\r', '\n'})
	return idx
}
