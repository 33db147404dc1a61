// ABOUTME: Client side of the stdio export/import framework
// ABOUTME: Spawns a function server process and exposes its functions as Go callables

package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jerinthomascarmel/Exp/internal/jsonrpc"
	"github.com/jerinthomascarmel/Exp/internal/logger"
	"github.com/jerinthomascarmel/Exp/internal/protocol"
	"github.com/jerinthomascarmel/Exp/internal/trace"
	"github.com/jerinthomascarmel/Exp/internal/transport"
)

// FunctionDescriptor mirrors the server's advertisement of one function.
type FunctionDescriptor struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
}

type initializeResult struct {
	Capabilities capabilities `json:"capabilities"`
}

type capabilities struct {
	Functions map[string]FunctionDescriptor `json:"functions"`
	Classes   map[string]interface{}        `json:"classes"`
}

type listResult struct {
	Functions []FunctionDescriptor `json:"functions"`
}

type callParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content          []contentBlock         `json:"content"`
	StructuredResult map[string]interface{} `json:"structuredResult"`
	IsError          bool                   `json:"isError"`
}

// CallFunc invokes one remote function with keyed arguments.
type CallFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Importer owns a spawned function server process and the protocol
// session to it.
type Importer struct {
	mu           sync.Mutex
	params       transport.StdioParams
	engine       *protocol.Engine
	tr           *transport.Stdio
	connected    bool
	capabilities *capabilities

	timeout   time.Duration
	tracePath string
	store     *trace.Store
	sessionID string
}

type Option func(*Importer)

// WithRequestTimeout bounds every request issued over the session. Zero
// means no deadline beyond the caller's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(i *Importer) { i.timeout = d }
}

// WithTrace records every wire frame to a SQLite database at path.
func WithTrace(path string) Option {
	return func(i *Importer) { i.tracePath = path }
}

// WithLogVerbose enables debug logging on stderr.
func WithLogVerbose(verbose bool) Option {
	return func(i *Importer) { logger.SetVerbose(verbose) }
}

func New(params transport.StdioParams, opts ...Option) *Importer {
	i := &Importer{
		params: params,
		engine: protocol.NewEngine(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.engine.SetErrorHandler(func(err error) {
		logger.Warn("importer: %v", err)
	})
	return i
}

// Connect spawns the server process and performs the initialize
// handshake, caching the advertised capabilities. A handshake failure
// tears the process down before returning.
func (i *Importer) Connect(ctx context.Context) error {
	i.mu.Lock()
	if i.connected {
		i.mu.Unlock()
		return fmt.Errorf("importer: already connected")
	}
	i.mu.Unlock()

	tr := transport.NewStdio(i.params)

	if i.tracePath != "" {
		store, err := trace.Open(i.tracePath)
		if err != nil {
			return fmt.Errorf("importer: %w", err)
		}
		command := strings.TrimSpace(i.params.Command + " " + strings.Join(i.params.Args, " "))
		sessionID, err := store.NewSession(command)
		if err != nil {
			store.Close()
			return fmt.Errorf("importer: %w", err)
		}
		tr.SetRecorder(trace.NewSessionRecorder(store, sessionID))
		i.mu.Lock()
		i.store = store
		i.sessionID = sessionID
		i.mu.Unlock()
	}

	i.engine.SetTransport(tr)
	if err := i.engine.Connect(); err != nil {
		i.closeTrace()
		return fmt.Errorf("importer: spawning %s: %w", i.params.Command, err)
	}
	logger.Debug("spawned %s (pid %d)", i.params.Command, tr.Pid())

	var init initializeResult
	if err := i.request(ctx, "initialize", struct{}{}, &init); err != nil {
		_ = i.engine.Close()
		i.closeTrace()
		return fmt.Errorf("importer: initialize handshake: %w", err)
	}

	i.mu.Lock()
	i.tr = tr
	i.connected = true
	i.capabilities = &init.Capabilities
	i.mu.Unlock()
	return nil
}

// request applies the configured timeout on top of the caller's context.
func (i *Importer) request(ctx context.Context, method string, params, result interface{}) error {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	return i.engine.Request(ctx, method, params, result)
}

// ListFunctions returns the server's function descriptors. The
// handshake snapshot is served when present; otherwise a fresh
// functions/list request is issued.
func (i *Importer) ListFunctions(ctx context.Context) ([]FunctionDescriptor, error) {
	i.mu.Lock()
	caps := i.capabilities
	i.mu.Unlock()

	if caps != nil {
		functions := make([]FunctionDescriptor, 0, len(caps.Functions))
		for _, fd := range caps.Functions {
			functions = append(functions, fd)
		}
		return functions, nil
	}

	var list listResult
	if err := i.request(ctx, "functions/list", struct{}{}, &list); err != nil {
		return nil, err
	}
	return list.Functions, nil
}

// CallFunction returns a callable bound to one remote function name.
// The name is not checked locally; an unknown name surfaces as the
// server's InvalidParams fault on invocation.
func (i *Importer) CallFunction(name string) CallFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		var res callResult
		err := i.request(ctx, "functions/call", callParams{Name: name, Arguments: args}, &res)
		if err != nil {
			return nil, err
		}

		if res.IsError {
			text := ""
			if len(res.Content) > 0 {
				text = res.Content[0].Text
			}
			return nil, jsonrpc.Errorf(jsonrpc.InvalidRequest, "function %s failed: %s", name, text)
		}
		if res.StructuredResult == nil {
			return nil, jsonrpc.Errorf(jsonrpc.ParseError, "function %s returned no structured result", name)
		}
		return res.StructuredResult["result"], nil
	}
}

// Close tears down the session and the spawned process. Safe to call
// more than once.
func (i *Importer) Close() error {
	i.mu.Lock()
	connected := i.connected
	i.connected = false
	i.capabilities = nil
	i.tr = nil
	i.mu.Unlock()

	i.closeTrace()
	if !connected {
		return nil
	}
	return i.engine.Close()
}

// Pid reports the spawned process id, or 0 before Connect.
func (i *Importer) Pid() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tr == nil {
		return 0
	}
	return i.tr.Pid()
}

func (i *Importer) closeTrace() {
	i.mu.Lock()
	store, sessionID := i.store, i.sessionID
	i.store = nil
	i.mu.Unlock()
	if store == nil {
		return
	}
	if err := store.CloseSession(sessionID); err != nil {
		logger.Warn("importer: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Warn("importer: %v", err)
	}
}
