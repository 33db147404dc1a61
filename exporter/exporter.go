// ABOUTME: Function server side of the stdio export/import framework
// ABOUTME: Registers named functions with schemas and serves them over stdin/stdout

package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jerinthomascarmel/Exp/internal/logger"
	"github.com/jerinthomascarmel/Exp/internal/protocol"
	"github.com/jerinthomascarmel/Exp/internal/trace"
	"github.com/jerinthomascarmel/Exp/internal/transport"
	"github.com/jerinthomascarmel/Exp/internal/validate"
	"github.com/jerinthomascarmel/Exp/schema"
)

// HandlerFunc is a registered function body. Arguments arrive keyed by
// parameter name, already validated against the input schema.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

type registeredFunction struct {
	name         string
	description  string
	inputSchema  map[string]interface{}
	outputSchema map[string]interface{}
	handler      HandlerFunc
}

// Exporter owns the function registry and serves the wire protocol over
// the current process's stdio.
type Exporter struct {
	mu        sync.Mutex
	functions map[string]*registeredFunction
	order     []string

	validators *validate.Cache
	engine     *protocol.Engine

	tracePath string
}

// Option configures an Exporter at construction.
type Option func(*Exporter)

// WithTrace records every wire frame to a SQLite database at path.
func WithTrace(path string) Option {
	return func(e *Exporter) { e.tracePath = path }
}

// WithLogVerbose enables debug logging on stderr.
func WithLogVerbose(verbose bool) Option {
	return func(e *Exporter) { logger.SetVerbose(verbose) }
}

func New(opts ...Option) *Exporter {
	e := &Exporter{
		functions:  make(map[string]*registeredFunction),
		validators: validate.NewCache(),
		engine:     protocol.NewEngine(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.engine.SetRequestHandler("initialize", e.handleInitialize)
	e.engine.SetRequestHandler("functions/list", e.handleList)
	e.engine.SetRequestHandler("functions/call", e.handleCall)
	return e
}

// RegisterOption adjusts one function registration.
type RegisterOption func(*registeredFunction) error

// WithInputSchema sets the input schema explicitly. Accepted forms: a
// JSON-object schema (map[string]interface{}), a *jsonschema.Schema, or
// a destructuring pattern string such as "{a, b: {c, d}}".
func WithInputSchema(s interface{}) RegisterOption {
	return func(fn *registeredFunction) error {
		m, err := coerceSchema(s)
		if err != nil {
			return fmt.Errorf("input schema for %s: %w", fn.name, err)
		}
		fn.inputSchema = m
		return nil
	}
}

// WithOutputSchema sets the schema the {result} envelope is validated
// against on success.
func WithOutputSchema(s interface{}) RegisterOption {
	return func(fn *registeredFunction) error {
		m, err := coerceSchema(s)
		if err != nil {
			return fmt.Errorf("output schema for %s: %w", fn.name, err)
		}
		fn.outputSchema = m
		return nil
	}
}

func coerceSchema(s interface{}) (map[string]interface{}, error) {
	switch v := s.(type) {
	case map[string]interface{}:
		return v, nil
	case *jsonschema.Schema:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case string:
		return schema.FromPattern(v)
	default:
		return nil, fmt.Errorf("unsupported schema form %T", s)
	}
}

// Register adds a named function. The name must be unique; registering
// a taken name fails rather than silently replacing the earlier
// function. Schemas are compiled here so a bad one fails at startup,
// not on the first call.
func (e *Exporter) Register(name, description string, handler HandlerFunc, opts ...RegisterOption) error {
	if name == "" {
		return fmt.Errorf("exporter: function name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("exporter: function %s has no handler", name)
	}

	fn := &registeredFunction{
		name:        name,
		description: description,
		handler:     handler,
	}
	for _, opt := range opts {
		if err := opt(fn); err != nil {
			return fmt.Errorf("exporter: %w", err)
		}
	}
	fn.inputSchema = schema.Normalize(fn.inputSchema)
	if fn.outputSchema == nil {
		fn.outputSchema = schema.DefaultOutputSchema()
	}

	if _, err := e.validators.GetValidator(fn.inputSchema); err != nil {
		return fmt.Errorf("exporter: function %s: %w", name, err)
	}
	if _, err := e.validators.GetValidator(fn.outputSchema); err != nil {
		return fmt.Errorf("exporter: function %s: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.functions[name]; exists {
		return fmt.Errorf("exporter: function %s already registered", name)
	}
	e.functions[name] = fn
	e.order = append(e.order, name)
	logger.Debug("registered function %s", name)
	return nil
}

// Export registers fn under its own declared name, with the input
// schema inferred from its argument struct. In must be a struct whose
// exported fields are the function's named parameters.
func Export[In any](e *Exporter, description string, fn func(ctx context.Context, in In) (interface{}, error)) error {
	inferred, err := schema.Infer(fn)
	if err != nil {
		return fmt.Errorf("exporter: %w", err)
	}

	handler := func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encoding arguments: %w", err)
		}
		var in In
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
		return fn(ctx, in)
	}

	return e.Register(inferred.Name, description, handler,
		WithInputSchema(inferred.InputSchema),
		WithOutputSchema(inferred.OutputSchema))
}

// Serve runs the protocol over the current process's stdin/stdout until
// the peer disconnects or ctx is canceled. Stdout carries frames only;
// all logging goes to stderr.
func (e *Exporter) Serve(ctx context.Context) error {
	tr := transport.NewStream(nil, nil)

	var store *trace.Store
	if e.tracePath != "" {
		var err error
		store, err = trace.Open(e.tracePath)
		if err != nil {
			return fmt.Errorf("exporter: %w", err)
		}
		defer store.Close()

		sessionID, err := store.NewSession(strings.Join(os.Args, " "))
		if err != nil {
			return fmt.Errorf("exporter: %w", err)
		}
		defer func() {
			if err := store.CloseSession(sessionID); err != nil {
				logger.Warn("exporter: %v", err)
			}
		}()
		tr.SetRecorder(trace.NewSessionRecorder(store, sessionID))
	}

	done := make(chan struct{})
	e.engine.SetCloseHandler(func() { close(done) })
	e.engine.SetErrorHandler(func(err error) {
		logger.Warn("exporter: %v", err)
	})
	e.engine.SetTransport(tr)

	if err := e.engine.Connect(); err != nil {
		return fmt.Errorf("exporter: %w", err)
	}
	logger.Info("serving %d functions over stdio", e.functionCount())

	select {
	case <-ctx.Done():
		_ = e.engine.Close()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (e *Exporter) functionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.functions)
}
