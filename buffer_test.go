package nnet

import (
	"bytes"
	"testing"
)

func TestBufferAppendRetrieve(t *testing.T) {
	buf := NewBuffer()
	if buf.ReadableBytes() != 0 {
		t.Fatalf("new buffer should be empty, got %d readable", buf.ReadableBytes())
	}

	buf.Append([]byte("hello"))
	if buf.ReadableBytes() != 5 {
		t.Fatalf("expected 5 readable bytes, got %d", buf.ReadableBytes())
	}
	if got := string(buf.Peek()); got != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}

	buf.Retrieve(2)
	if got := string(buf.Peek()); got != "llo" {
		t.Fatalf("expected 'llo', got %q", got)
	}

	buf.Append([]byte(" world"))
	if got := buf.RetrieveAllAsString(); got != "llo world" {
		t.Fatalf("expected 'llo world', got %q", got)
	}
	if buf.ReadableBytes() != 0 {
		t.Fatalf("expected empty after RetrieveAll, got %d", buf.ReadableBytes())
	}
}

func TestBufferGrowBeyondInitialSize(t *testing.T) {
	buf := NewBufferSize(4)
	payload := bytes.Repeat([]byte("x"), initialSize*4)
	buf.Append(payload)

	if buf.ReadableBytes() != len(payload) {
		t.Fatalf("expected %d readable bytes, got %d", len(payload), buf.ReadableBytes())
	}
	if !bytes.Equal(buf.Peek(), payload) {
		t.Fatalf("payload mismatch after growth")
	}
}

func TestBufferPrepend(t *testing.T) {
	buf := NewBuffer()
	buf.Append([]byte("world"))
	buf.Prepend([]byte("hello "))

	if got := string(buf.Peek()); got != "hello world" {
		t.Fatalf("expected 'hello world', got %q", got)
	}
}

func TestBufferPrependInt32(t *testing.T) {
	buf := NewBuffer()
	buf.Append([]byte("payload"))
	buf.PrependInt32(7)

	all := buf.Peek()
	if len(all) != 11 {
		t.Fatalf("expected 11 bytes (4 header + 7 payload), got %d", len(all))
	}
	header := all[:4]
	want := []byte{0, 0, 0, 7}
	if !bytes.Equal(header, want) {
		t.Fatalf("expected big-endian header %v, got %v", want, header)
	}
}

func TestBufferFindCRLF(t *testing.T) {
	buf := NewBuffer()
	buf.Append([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))

	idx := buf.FindCRLF()
	if idx < 0 {
		t.Fatalf("expected to find CRLF")
	}
	line := buf.Peek()[:idx]
	if string(line) != "GET / HTTP/1.1" {
		t.Fatalf("unexpected first line: %q", line)
	}
}

func TestBufferRetrieveMoreThanReadableClampsToAll(t *testing.T) {
	buf := NewBuffer()
	buf.Append([]byte("abc"))
	buf.Retrieve(100)
	if buf.ReadableBytes() != 0 {
		t.Fatalf("expected 0 readable after over-retrieve, got %d", buf.ReadableBytes())
	}
}
