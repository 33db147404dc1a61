// ABOUTME: Tests for the stream transport over in-memory pipes
// ABOUTME: Covers delivery order, framing errors, close semantics, and backpressure

package transport

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jerinthomascarmel/Exp/internal/jsonrpc"
)

type collected struct {
	mu       sync.Mutex
	messages []jsonrpc.Message
	errors   []error
	closed   int
}

func (c *collected) wire(t Transport) {
	t.SetCallbacks(
		func(m jsonrpc.Message) {
			c.mu.Lock()
			c.messages = append(c.messages, m)
			c.mu.Unlock()
		},
		func(err error) {
			c.mu.Lock()
			c.errors = append(c.errors, err)
			c.mu.Unlock()
		},
		func() {
			c.mu.Lock()
			c.closed++
			c.mu.Unlock()
		},
	)
}

func (c *collected) snapshot() ([]jsonrpc.Message, []error, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]jsonrpc.Message(nil), c.messages...), append([]error(nil), c.errors...), c.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func mustRequest(t *testing.T, id int64, method string) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.NewRequest(jsonrpc.NewIntID(id), method, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestStreamDeliversInOrder(t *testing.T) {
	r, w := io.Pipe()
	tr := NewStream(r, io.Discard)
	var got collected
	got.wire(tr)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Close()

	go func() {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"first"}` + "\n"))
		w.Write([]byte(`{"jsonrpc":"2.0","id":2,"method":"second"}` + "\n" + `{"jsonrpc":"2.0","id":3,"method":"third"}` + "\n"))
	}()

	waitFor(t, func() bool { m, _, _ := got.snapshot(); return len(m) == 3 })

	messages, errs, _ := got.snapshot()
	for i, want := range []string{"first", "second", "third"} {
		req, ok := messages[i].(*jsonrpc.Request)
		if !ok || req.Method != want {
			t.Errorf("message %d = %v, want method %q", i, messages[i], want)
		}
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestStreamBadLineDoesNotStopDelivery(t *testing.T) {
	r, w := io.Pipe()
	tr := NewStream(r, io.Discard)
	var got collected
	got.wire(tr)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Close()

	go w.Write([]byte("not json\n" + `{"jsonrpc":"2.0","id":1,"method":"after"}` + "\n"))

	waitFor(t, func() bool { m, e, _ := got.snapshot(); return len(m) == 1 && len(e) == 1 })

	messages, _, _ := got.snapshot()
	if req, ok := messages[0].(*jsonrpc.Request); !ok || req.Method != "after" {
		t.Errorf("expected the message after the bad line, got %v", messages[0])
	}
}

func TestStreamEOFFiresCloseOnce(t *testing.T) {
	r, w := io.Pipe()
	tr := NewStream(r, io.Discard)
	var got collected
	got.wire(tr)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	w.Close()
	waitFor(t, func() bool { _, _, c := got.snapshot(); return c == 1 })

	// Close after EOF must not fire the callback again
	tr.Close()
	time.Sleep(50 * time.Millisecond)
	if _, _, c := got.snapshot(); c != 1 {
		t.Errorf("onClose fired %d times, want 1", c)
	}
}

func TestStreamLifecycleErrors(t *testing.T) {
	r, _ := io.Pipe()
	tr := NewStream(r, io.Discard)

	if err := tr.Send(mustRequest(t, 1, "early")); err != ErrNotStarted {
		t.Errorf("Send before Start = %v, want ErrNotStarted", err)
	}
	if err := tr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := tr.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := tr.Send(mustRequest(t, 2, "late")); err != ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

// gatedWriter blocks every Write until released.
type gatedWriter struct {
	release chan struct{}
	mu      sync.Mutex
	writes  [][]byte
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	<-g.release
	g.mu.Lock()
	g.writes = append(g.writes, append([]byte(nil), p...))
	g.mu.Unlock()
	return len(p), nil
}

func TestStreamSendBlocksOnSlowWriter(t *testing.T) {
	r, _ := io.Pipe()
	gw := &gatedWriter{release: make(chan struct{})}
	tr := NewStream(r, gw)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Close()

	done := make(chan struct{})
	go func() {
		tr.Send(mustRequest(t, 1, "queued"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Send returned while the writer was blocked")
	case <-time.After(100 * time.Millisecond):
	}

	close(gw.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send never completed after the writer unblocked")
	}
}

func TestStreamSendOrderUnderConcurrency(t *testing.T) {
	r, _ := io.Pipe()
	gw := &gatedWriter{release: make(chan struct{})}
	close(gw.release)
	tr := NewStream(r, gw)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer tr.Close()

	for i := int64(1); i <= 5; i++ {
		if err := tr.Send(mustRequest(t, i, "seq")); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.writes) != 5 {
		t.Fatalf("expected 5 writes, got %d", len(gw.writes))
	}
	for i, data := range gw.writes {
		msg, err := jsonrpc.Parse(data[:len(data)-1])
		if err != nil {
			t.Fatalf("write %d not parseable: %v", i, err)
		}
		if msg.MessageID() != jsonrpc.NewIntID(int64(i+1)) {
			t.Errorf("write %d has id %s, want %d", i, msg.MessageID(), i+1)
		}
	}
}

func TestStreamCloseUnderInboundLoad(t *testing.T) {
	r, w := io.Pipe()
	tr := NewStream(r, io.Discard)
	var got collected
	got.wire(tr)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame := []byte(`{"jsonrpc":"2.0","id":1,"method":"flood"}` + "\n")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			// Close severs the pipe; the writer just stops
			if _, err := w.Write(frame); err != nil {
				return
			}
		}
	}()

	waitFor(t, func() bool { m, _, _ := got.snapshot(); return len(m) > 100 })
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	<-done

	waitFor(t, func() bool { _, _, c := got.snapshot(); return c == 1 })
}
