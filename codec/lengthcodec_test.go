package codec

import (
	"encoding/binary"
	"testing"

	"github.com/nnetreact/nnet"
)

func TestLengthFieldCodecDecodesCompleteFrame(t *testing.T) {
	var got []byte
	c := NewLengthFieldCodec(func(conn *nnet.Connection, message []byte, ts nnet.Timestamp) {
		got = message
	})

	buf := nnet.NewBuffer()
	payload := []byte("hello frame")
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	buf.Append(hdr[:])
	buf.Append(payload)

	c.OnMessage(nil, buf, nnet.Now())

	if string(got) != "hello frame" {
		t.Fatalf("expected decoded message 'hello frame', got %q", got)
	}
	if buf.ReadableBytes() != 0 {
		t.Fatalf("expected buffer fully drained, got %d bytes left", buf.ReadableBytes())
	}
}

func TestLengthFieldCodecWaitsForPartialFrame(t *testing.T) {
	calls := 0
	c := NewLengthFieldCodec(func(conn *nnet.Connection, message []byte, ts nnet.Timestamp) {
		calls++
	})

	buf := nnet.NewBuffer()
	payload := []byte("partial")
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	buf.Append(hdr[:])
	buf.Append(payload[:3]) // only part of the payload has arrived

	c.OnMessage(nil, buf, nnet.Now())

	if calls != 0 {
		t.Fatalf("expected no decode on partial frame, got %d calls", calls)
	}
	if buf.ReadableBytes() != 4+3 {
		t.Fatalf("expected header+partial payload to remain buffered, got %d bytes", buf.ReadableBytes())
	}

	buf.Append(payload[3:])
	c.OnMessage(nil, buf, nnet.Now())
	if calls != 1 {
		t.Fatalf("expected decode to complete once the rest of the frame arrives, got %d calls", calls)
	}
}

func TestLengthFieldCodecDecodesMultipleFramesInOneBuffer(t *testing.T) {
	var got []string
	c := NewLengthFieldCodec(func(conn *nnet.Connection, message []byte, ts nnet.Timestamp) {
		got = append(got, string(message))
	})

	buf := nnet.NewBuffer()
	for _, s := range []string{"one", "two", "three"} {
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(s)))
		buf.Append(hdr[:])
		buf.Append([]byte(s))
	}

	c.OnMessage(nil, buf, nnet.Now())

	if len(got) != 3 || got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("expected [one two three], got %v", got)
	}
}
