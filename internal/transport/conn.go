package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedMessage wraps a frame whose body is not a JSON-RPC message.
var ErrMalformedMessage = errors.New("malformed JSON-RPC message")

// Conn reads and writes framed JSON-RPC messages over a pair of streams.
// Reads must come from a single goroutine; writes may be concurrent.
type Conn struct {
	reader *bufio.Reader
	writer *FrameWriter
}

// NewConn creates a connection over r and w.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		reader: bufio.NewReader(r),
		writer: NewFrameWriter(w),
	}
}

// Read returns the next message. A frame that is not valid JSON yields an
// error wrapping ErrMalformedMessage; the stream stays usable after it.
func (c *Conn) Read() (*Message, error) {
	body, err := ReadFrame(c.reader)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// Write encodes and sends msg.
func (c *Conn) Write(msg *Message) error {
	if msg.JSONRPC == "" {
		msg.JSONRPC = "2.0"
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON-RPC message: %w", err)
	}
	return c.writer.WriteFrame(data)
}
