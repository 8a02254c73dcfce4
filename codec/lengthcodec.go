// Package codec implements the one out-of-scope collaborator the core spec
// fixes the wire format for: a 4-byte big-endian length prefix in front of
// an arbitrary payload, solving TCP's lack of message boundaries.
package codec

import (
	"encoding/binary"

	"github.com/nnetreact/nnet"
	"github.com/nnetreact/nnet/internal/xlog"
)

const headerLen = 4
const maxMessageLen = 65536

// LengthFieldCodec decodes a stream of length-prefixed messages off a
// Connection's message callback and re-encodes outgoing messages the same
// way, mirroring LengthHeaderCodec::onMessage/send.
type LengthFieldCodec struct {
	onMessage func(conn *nnet.Connection, message []byte, t nnet.Timestamp)
}

// NewLengthFieldCodec returns a codec that calls onMessage for each decoded
// frame.
func NewLengthFieldCodec(onMessage func(conn *nnet.Connection, message []byte, t nnet.Timestamp)) *LengthFieldCodec {
	return &LengthFieldCodec{onMessage: onMessage}
}

// OnMessage is wired as the Connection's MessageCallback; it drains every
// complete frame currently buffered, leaving a partial trailing frame for
// the next read.
func (c *LengthFieldCodec) OnMessage(conn *nnet.Connection, buf *nnet.Buffer, t nnet.Timestamp) {
	for buf.ReadableBytes() >= headerLen {
		header := buf.Peek()[:headerLen]
		length := int32(binary.BigEndian.Uint32(header))

		if length > maxMessageLen || length < 0 {
			xlog.Errorf("LengthFieldCodec: invalid length %d", length)
			conn.Shutdown()
			break
		}
		if buf.ReadableBytes() < int(length)+headerLen {
			break
		}

		buf.Retrieve(headerLen)
		message := append([]byte(nil), buf.Peek()[:length]...)
		buf.Retrieve(int(length))

		if c.onMessage != nil {
			c.onMessage(conn, message, t)
		}
	}
}

// Send prepends message's length as a 4-byte big-endian header and writes
// it in a single Connection.Send call.
func (c *LengthFieldCodec) Send(conn *nnet.Connection, message []byte) {
	buf := nnet.NewBufferSize(len(message))
	buf.Append(message)
	buf.PrependInt32(int32(len(message)))
	conn.Send(buf.Peek())
}
