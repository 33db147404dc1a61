// ABOUTME: Wire method handlers for initialize, functions/list, and functions/call
// ABOUTME: Validates arguments and results and builds the call result envelope

package exporter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jerinthomascarmel/Exp/internal/jsonrpc"
	"github.com/jerinthomascarmel/Exp/internal/logger"
)

// FunctionDescriptor advertises one registered function.
type FunctionDescriptor struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
}

// InitializeResult is the handshake reply.
type InitializeResult struct {
	Capabilities Capabilities `json:"capabilities"`
}

type Capabilities struct {
	Functions map[string]FunctionDescriptor `json:"functions"`
	Classes   map[string]interface{}        `json:"classes"`
}

// ListResult carries the descriptors in registration order.
type ListResult struct {
	Functions []FunctionDescriptor `json:"functions"`
}

type callParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ContentBlock is one human-readable rendering of a call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the functions/call envelope. StructuredResult holds
// {result: value} on success and is absent on a failed call.
type CallResult struct {
	Content          []ContentBlock         `json:"content"`
	StructuredResult map[string]interface{} `json:"structuredResult,omitempty"`
	IsError          bool                   `json:"isError"`
}

func (e *Exporter) descriptor(fn *registeredFunction) FunctionDescriptor {
	return FunctionDescriptor{
		Name:         fn.name,
		Description:  fn.description,
		InputSchema:  fn.inputSchema,
		OutputSchema: fn.outputSchema,
	}
}

func (e *Exporter) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	functions := make(map[string]FunctionDescriptor, len(e.functions))
	for name, fn := range e.functions {
		functions[name] = e.descriptor(fn)
	}
	return InitializeResult{
		Capabilities: Capabilities{
			Functions: functions,
			Classes:   map[string]interface{}{},
		},
	}, nil
}

func (e *Exporter) handleList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	functions := make([]FunctionDescriptor, 0, len(e.order))
	for _, name := range e.order {
		functions = append(functions, e.descriptor(e.functions[name]))
	}
	return ListResult{Functions: functions}, nil
}

func (e *Exporter) handleCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p callParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.InvalidParams, "malformed call params: %v", err)
	}

	e.mu.Lock()
	fn, ok := e.functions[p.Name]
	e.mu.Unlock()
	if !ok {
		return nil, jsonrpc.Errorf(jsonrpc.InvalidParams, "unknown function: %s", p.Name)
	}

	args := p.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	inputValidator, err := e.validators.GetValidator(fn.inputSchema)
	if err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.InvalidParams, "function %s: %v", fn.name, err)
	}
	if err := inputValidator.Validate(args); err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.InvalidParams, "arguments for %s: %v", fn.name, err)
	}

	out, err := fn.handler(ctx, args)
	if err != nil {
		// A failed call travels as an error-flagged envelope, not a
		// protocol error. Output validation does not apply.
		logger.Debug("function %s failed: %v", fn.name, err)
		return CallResult{
			Content: []ContentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	structured := map[string]interface{}{"result": out}

	outputValidator, err := e.validators.GetValidator(fn.outputSchema)
	if err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.InvalidRequest, "function %s: %v", fn.name, err)
	}
	if err := outputValidator.Validate(structured); err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.InvalidRequest, "result of %s: %v", fn.name, err)
	}

	return CallResult{
		Content:          []ContentBlock{{Type: "text", Text: renderText(out)}},
		StructuredResult: structured,
		IsError:          false,
	}, nil
}

// renderText produces the human-readable form of a result value.
func renderText(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
