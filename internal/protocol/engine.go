// ABOUTME: JSON-RPC request/response multiplexer over an injected transport
// ABOUTME: Owns the outgoing id sequence, the pending-request table, and method dispatch

package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jerinthomascarmel/Exp/internal/jsonrpc"
	"github.com/jerinthomascarmel/Exp/internal/logger"
	"github.com/jerinthomascarmel/Exp/internal/transport"
)

// Handler serves one inbound method. The returned value is marshaled as
// the Response result; a returned *jsonrpc.Error keeps its code on the
// wire, any other error becomes InternalError.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Engine multiplexes concurrent requests over a single transport and
// dispatches inbound requests to registered handlers. One Engine plays
// both roles; the Importer only issues requests, the Exporter only
// serves them.
type Engine struct {
	mu        sync.Mutex
	transport transport.Transport
	connected bool
	nextID    int64
	pending   map[jsonrpc.ID]chan jsonrpc.Message
	handlers  map[string]Handler

	onError func(error)
	onClose func()
}

func NewEngine() *Engine {
	return &Engine{
		pending:  make(map[jsonrpc.ID]chan jsonrpc.Message),
		handlers: make(map[string]Handler),
	}
}

func (e *Engine) SetTransport(t transport.Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transport = t
}

func (e *Engine) SetRequestHandler(method string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// one handler per method; later registration replaces the former
	e.handlers[method] = h
}

// SetErrorHandler receives protocol anomalies: framing errors, unknown
// response ids, and failures to even send a response. Non-fatal.
func (e *Engine) SetErrorHandler(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = fn
}

// SetCloseHandler runs after the transport reports closure and every
// pending request has been rejected.
func (e *Engine) SetCloseHandler(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClose = fn
}

// Connect wires the transport callbacks and starts it. Fails with no
// transport configured or when called twice.
func (e *Engine) Connect() error {
	e.mu.Lock()
	if e.transport == nil {
		e.mu.Unlock()
		return fmt.Errorf("protocol: no transport configured")
	}
	if e.connected {
		e.mu.Unlock()
		return fmt.Errorf("protocol: already connected")
	}
	e.connected = true
	tr := e.transport
	e.mu.Unlock()

	tr.SetCallbacks(e.handleMessage, e.reportError, e.handleClose)
	if err := tr.Start(); err != nil {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		return err
	}
	return nil
}

// Request sends a framed Request and blocks until a matching response
// arrives, the context expires, or the connection closes. The result is
// unmarshaled into result when non-nil; a shape mismatch surfaces as a
// local ParseError, never as a protocol error.
func (e *Engine) Request(ctx context.Context, method string, params, result interface{}) error {
	e.mu.Lock()
	if !e.connected || e.transport == nil {
		e.mu.Unlock()
		return jsonrpc.NewError(jsonrpc.ConnectionClosed, "not connected")
	}
	id := jsonrpc.NewIntID(e.nextID)
	e.nextID++
	ch := make(chan jsonrpc.Message, 1)
	e.pending[id] = ch
	tr := e.transport
	e.mu.Unlock()

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		e.removePending(id)
		return err
	}
	if err := tr.Send(req); err != nil {
		e.removePending(id)
		return fmt.Errorf("sending %s request: %w", method, err)
	}

	select {
	case msg := <-ch:
		switch m := msg.(type) {
		case *jsonrpc.ErrorResponse:
			return m.Err
		case *jsonrpc.Response:
			if result == nil {
				return nil
			}
			if err := json.Unmarshal(m.Result, result); err != nil {
				return jsonrpc.Errorf(jsonrpc.ParseError, "malformed %s result: %v", method, err)
			}
			return nil
		default:
			return jsonrpc.Errorf(jsonrpc.InternalError, "unexpected message type %T", msg)
		}
	case <-ctx.Done():
		e.removePending(id)
		return jsonrpc.Errorf(jsonrpc.RequestTimeout, "%s request: %v", method, ctx.Err())
	}
}

// Close delegates to the transport. The transport's own onClose is what
// clears engine state, keeping teardown single-sourced.
func (e *Engine) Close() error {
	e.mu.Lock()
	tr := e.transport
	e.mu.Unlock()
	if tr == nil {
		return nil
	}
	return tr.Close()
}

// PendingCount reports in-flight requests issued by this engine.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Engine) handleMessage(msg jsonrpc.Message) {
	switch m := msg.(type) {
	case *jsonrpc.Request:
		// Each request dispatches on its own goroutine so a blocking
		// handler never stalls the read loop.
		go e.dispatch(m)
	default:
		e.mu.Lock()
		ch, ok := e.pending[msg.MessageID()]
		if ok {
			delete(e.pending, msg.MessageID())
		}
		e.mu.Unlock()
		if !ok {
			e.reportError(fmt.Errorf("protocol: response for unknown request id %s", msg.MessageID()))
			return
		}
		ch <- msg
	}
}

func (e *Engine) dispatch(req *jsonrpc.Request) {
	e.mu.Lock()
	h, ok := e.handlers[req.Method]
	e.mu.Unlock()

	if !ok {
		e.respond(jsonrpc.NewErrorResponse(req.ID, jsonrpc.Errorf(jsonrpc.MethodNotFound, "method not found: %s", req.Method)))
		return
	}

	result, err := h(context.Background(), req.Params)
	if err != nil {
		werr, ok := err.(*jsonrpc.Error)
		if !ok {
			werr = jsonrpc.NewError(jsonrpc.InternalError, err.Error())
		}
		e.respond(jsonrpc.NewErrorResponse(req.ID, werr))
		return
	}

	resp, err := jsonrpc.NewResponse(req.ID, result)
	if err != nil {
		e.respond(jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.InternalError, err.Error())))
		return
	}
	e.respond(resp)
}

// respond writes a response; a send failure is reported, never re-thrown.
func (e *Engine) respond(msg jsonrpc.Message) {
	e.mu.Lock()
	tr := e.transport
	e.mu.Unlock()
	if tr == nil {
		e.reportError(fmt.Errorf("protocol: dropping response %s, transport gone", msg.MessageID()))
		return
	}
	if err := tr.Send(msg); err != nil {
		e.reportError(fmt.Errorf("protocol: sending response %s: %w", msg.MessageID(), err))
	}
}

// handleClose rejects every pending request with ConnectionClosed and
// clears the transport.
func (e *Engine) handleClose() {
	e.mu.Lock()
	pend := e.pending
	e.pending = make(map[jsonrpc.ID]chan jsonrpc.Message)
	e.connected = false
	e.transport = nil
	fn := e.onClose
	e.mu.Unlock()

	for id, ch := range pend {
		ch <- jsonrpc.NewErrorResponse(id, jsonrpc.NewError(jsonrpc.ConnectionClosed, "connection closed"))
	}
	if fn != nil {
		fn()
	}
}

func (e *Engine) removePending(id jsonrpc.ID) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *Engine) reportError(err error) {
	e.mu.Lock()
	fn := e.onError
	e.mu.Unlock()
	if fn != nil {
		fn(err)
		return
	}
	logger.Warn("protocol: %v", err)
}
