// ABOUTME: Newline-delimited framing for the exp wire protocol
// ABOUTME: Serializes messages to single JSON lines and reassembles them from a byte stream

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// Serialize encodes one message as a single newline-terminated JSON line.
// JSON encoding escapes any newline inside string values, so the payload
// itself never contains an unescaped newline.
func Serialize(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serializing message: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadBuffer accumulates raw bytes from a transport and yields complete
// messages one newline-terminated line at a time. A line that fails to
// parse is reported as an error for that line only; the rest of the
// buffer stays intact.
//
// Safe for concurrent use: the read loop appends while Clear may arrive
// from the goroutine tearing the transport down.
type ReadBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func NewReadBuffer() *ReadBuffer {
	return &ReadBuffer{}
}

// Append adds a chunk of raw bytes to the buffer.
func (rb *ReadBuffer) Append(chunk []byte) {
	rb.mu.Lock()
	rb.buf = append(rb.buf, chunk...)
	rb.mu.Unlock()
}

// ReadMessage extracts the next complete line and parses it. Returns
// (nil, nil) when no complete line remains buffered.
func (rb *ReadBuffer) ReadMessage() (Message, error) {
	for {
		rb.mu.Lock()
		i := bytes.IndexByte(rb.buf, '\n')
		if i < 0 {
			rb.mu.Unlock()
			return nil, nil
		}
		line := bytes.TrimSpace(rb.buf[:i])
		rb.buf = rb.buf[i+1:]
		rb.mu.Unlock()

		if len(line) == 0 {
			continue
		}
		msg, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("framing: %w", err)
		}
		return msg, nil
	}
}

// Clear discards any partially buffered, incomplete line. Used on
// transport teardown.
func (rb *ReadBuffer) Clear() {
	rb.mu.Lock()
	rb.buf = nil
	rb.mu.Unlock()
}
