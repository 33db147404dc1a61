// ABOUTME: Callee-side transport over the current process's own stdio
// ABOUTME: Symmetric to the spawn transport but attaches to existing streams

package transport

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jerinthomascarmel/Exp/internal/jsonrpc"
)

// Stream frames messages over an existing reader/writer pair, normally
// the current process's stdin and stdout. The exporter side of a
// spawned child uses this.
type Stream struct {
	r io.Reader
	w io.Writer

	stateMu sync.Mutex
	started bool
	closed  bool

	writeMu sync.Mutex

	readBuf   *jsonrpc.ReadBuffer
	cb        callbacks
	recorder  Recorder
	closeOnce sync.Once
}

// NewStream attaches to the given streams; nil defaults to the
// process's own stdin/stdout.
func NewStream(r io.Reader, w io.Writer) *Stream {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &Stream{r: r, w: w, readBuf: jsonrpc.NewReadBuffer()}
}

func (t *Stream) SetCallbacks(onMessage func(jsonrpc.Message), onError func(error), onClose func()) {
	t.cb = callbacks{onMessage: onMessage, onError: onError, onClose: onClose}
}

func (t *Stream) SetRecorder(r Recorder) {
	t.recorder = r
}

func (t *Stream) Start() error {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true
	go t.readLoop()
	return nil
}

func (t *Stream) Send(msg jsonrpc.Message) error {
	t.stateMu.Lock()
	if !t.started {
		t.stateMu.Unlock()
		return ErrNotStarted
	}
	if t.closed {
		t.stateMu.Unlock()
		return ErrClosed
	}
	t.stateMu.Unlock()

	data, err := jsonrpc.Serialize(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.w.Write(data); err != nil {
		return fmt.Errorf("writing to stream: %w", err)
	}
	if t.recorder != nil {
		t.recorder.Record(DirectionSend, data)
	}
	return nil
}

func (t *Stream) Close() error {
	t.stateMu.Lock()
	if !t.started || t.closed {
		t.stateMu.Unlock()
		return nil
	}
	t.closed = true
	t.stateMu.Unlock()

	t.readBuf.Clear()
	if c, ok := t.r.(io.Closer); ok && t.r != os.Stdin {
		c.Close()
	}
	t.closeOnce.Do(t.cb.close)
	return nil
}

func (t *Stream) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := t.r.Read(buf)
		if n > 0 {
			t.readBuf.Append(buf[:n])
			t.drain()
		}
		if err != nil {
			if err != io.EOF && !t.isClosed() {
				t.cb.error(fmt.Errorf("reading stream: %w", err))
			}
			t.closeOnce.Do(func() {
				t.stateMu.Lock()
				t.closed = true
				t.stateMu.Unlock()
				t.cb.close()
			})
			return
		}
	}
}

func (t *Stream) drain() {
	for {
		msg, err := t.readBuf.ReadMessage()
		if err != nil {
			t.cb.error(err)
			continue
		}
		if msg == nil {
			return
		}
		if t.recorder != nil {
			if data, serr := jsonrpc.Serialize(msg); serr == nil {
				t.recorder.Record(DirectionRecv, data)
			}
		}
		t.cb.message(msg)
	}
}

func (t *Stream) isClosed() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.closed
}
