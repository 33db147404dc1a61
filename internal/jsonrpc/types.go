// ABOUTME: JSON-RPC 2.0 message types for the exp wire protocol
// ABOUTME: Implements request, response, and error structures plus the message union

package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const Version = "2.0"

// Error codes used on the wire. The -32000 range carries transport-level
// conditions; the rest follow the JSON-RPC 2.0 spec.
const (
	ConnectionClosed = -32000
	RequestTimeout   = -32001
	ParseError       = -32700
	InvalidRequest   = -32600
	MethodNotFound   = -32601
	InvalidParams    = -32602
	InternalError    = -32603
)

// ID is a JSON-RPC request id: a string or a signed integer.
// The zero value is invalid; ids come from NewIntID/NewStringID or from
// parsing a message. ID is comparable and usable as a map key.
type ID struct {
	num   int64
	str   string
	isStr bool
	valid bool
}

func NewIntID(n int64) ID     { return ID{num: n, valid: true} }
func NewStringID(s string) ID { return ID{str: s, isStr: true, valid: true} }

func (id ID) IsValid() bool { return id.valid }

func (id ID) String() string {
	if !id.valid {
		return "<none>"
	}
	if id.isStr {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.valid {
		return nil, fmt.Errorf("jsonrpc: marshaling invalid id")
	}
	if id.isStr {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = NewStringID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = NewIntID(n)
		return nil
	}
	return fmt.Errorf("jsonrpc: id must be a string or integer, got %s", data)
}

// Error is the wire-level error payload. It implements the error
// interface so a handler can return one directly and have its code
// carried back to the caller.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the wire code from an error. Anything that is not a
// *jsonrpc.Error maps to InternalError.
func CodeOf(err error) int {
	if we, ok := err.(*Error); ok {
		return we.Code
	}
	return InternalError
}

// Message is the wire-level union: exactly one of Request, Response,
// or ErrorResponse.
type Message interface {
	MessageID() ID
	isMessage()
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result"`
}

type ErrorResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Err     *Error `json:"error"`
}

func (r *Request) isMessage()       {}
func (r *Response) isMessage()      {}
func (r *ErrorResponse) isMessage() {}

func (r *Request) MessageID() ID       { return r.ID }
func (r *Response) MessageID() ID      { return r.ID }
func (r *ErrorResponse) MessageID() ID { return r.ID }

// NewRequest builds a Request with params marshaled in place.
func NewRequest(id ID, method string, params interface{}) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling params for %s: %w", method, err)
	}
	return &Request{JSONRPC: Version, ID: id, Method: method, Params: raw}, nil
}

// NewResponse builds a Response with the result marshaled in place.
func NewResponse(id ID, result interface{}) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

func NewErrorResponse(id ID, err *Error) *ErrorResponse {
	return &ErrorResponse{JSONRPC: Version, ID: id, Err: err}
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

// Parse decodes one line of wire JSON into the message union. A payload
// that decodes but matches none of the three shapes (or more than one)
// is rejected.
func Parse(data []byte) (Message, error) {
	var probe struct {
		JSONRPC string           `json:"jsonrpc"`
		ID      *ID              `json:"id"`
		Method  *string          `json:"method"`
		Params  json.RawMessage  `json:"params"`
		Result  *json.RawMessage `json:"result"`
		Error   *Error           `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, Errorf(ParseError, "invalid JSON: %v", err)
	}
	if probe.JSONRPC != Version {
		return nil, Errorf(InvalidRequest, "unsupported jsonrpc version %q", probe.JSONRPC)
	}
	if probe.ID == nil {
		return nil, NewError(InvalidRequest, "message has no id")
	}

	// Exactly one of method/result/error decides the shape.
	n := 0
	if probe.Method != nil {
		n++
	}
	if probe.Result != nil {
		n++
	}
	if probe.Error != nil {
		n++
	}
	if n != 1 {
		return nil, Errorf(InvalidRequest, "message must carry exactly one of method/result/error, got %d", n)
	}

	switch {
	case probe.Method != nil:
		params := probe.Params
		if params == nil {
			params = json.RawMessage(`{}`)
		}
		return &Request{JSONRPC: Version, ID: *probe.ID, Method: *probe.Method, Params: params}, nil
	case probe.Error != nil:
		return &ErrorResponse{JSONRPC: Version, ID: *probe.ID, Err: probe.Error}, nil
	default:
		return &Response{JSONRPC: Version, ID: *probe.ID, Result: *probe.Result}, nil
	}
}
