// ABOUTME: Transport abstraction for moving framed JSON-RPC messages
// ABOUTME: Defines the duplex channel contract shared by the spawn and stream transports

package transport

import (
	"errors"

	"github.com/jerinthomascarmel/Exp/internal/jsonrpc"
)

var (
	ErrAlreadyStarted = errors.New("transport already started")
	ErrNotStarted     = errors.New("transport not started")
	ErrClosed         = errors.New("transport closed")
)

// Message trace directions, as recorded against the local endpoint.
const (
	DirectionSend = "send"
	DirectionRecv = "recv"
)

// Recorder receives a copy of every framed message crossing the
// transport. Used for wire tracing; a nil recorder disables it.
type Recorder interface {
	Record(direction string, payload []byte)
}

// Transport is a duplex channel carrying framed messages. Callbacks
// must be set before Start; they are invoked from the transport's read
// goroutine, one message at a time, in arrival order.
//
// Send blocks while the underlying write buffer is full. That blocking
// write is the only backpressure mechanism: callers must wait for Send
// to return before issuing the next one.
type Transport interface {
	Start() error
	Send(msg jsonrpc.Message) error
	Close() error
	SetCallbacks(onMessage func(jsonrpc.Message), onError func(error), onClose func())
	SetRecorder(r Recorder)
}

// callbacks bundles the three inbound notification hooks with nil-safe
// invocation.
type callbacks struct {
	onMessage func(jsonrpc.Message)
	onError   func(error)
	onClose   func()
}

func (c *callbacks) message(msg jsonrpc.Message) {
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *callbacks) error(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *callbacks) close() {
	if c.onClose != nil {
		c.onClose()
	}
}
