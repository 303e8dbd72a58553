package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/averycrespi/annols/pkg/types"
)

// JSON-RPC and LSP error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeRequestFailed        = -32803
	CodeRequestCancelled     = -32800
)

// Message is any JSON-RPC 2.0 message: request, notification or response.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether the message is a method call without an id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether the message answers an earlier request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

// IDString returns a printable form of the message id.
func (m *Message) IDString() string {
	return IDString(m.ID)
}

// IDString renders a raw id; string ids are unquoted.
func IDString(id json.RawMessage) string {
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}

// NewRequest builds a request message with a numeric id.
func NewRequest(id int64, method string, params any) (*Message, error) {
	msg := &Message{JSONRPC: "2.0", ID: json.RawMessage(strconv.FormatInt(id, 10)), Method: method}
	if err := msg.setParams(params); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewNotification builds a notification message.
func NewNotification(method string, params any) (*Message, error) {
	msg := &Message{JSONRPC: "2.0", Method: method}
	if err := msg.setParams(params); err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *Message) setParams(params any) error {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params for %s: %w", m.Method, err)
	}
	m.Params = data
	return nil
}

// NewResponse builds a successful response. A nil result is sent as null.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Message{JSONRPC: "2.0", ID: nullIfEmpty(id), Result: data}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, rpcErr *RPCError) *Message {
	return &Message{JSONRPC: "2.0", ID: nullIfEmpty(id), Error: rpcErr}
}

func nullIfEmpty(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// ErrorData carries the error classification on the wire.
type ErrorData struct {
	Kind types.ErrorKind `json:"kind"`
}

// RPCError is a JSON-RPC error object. It implements error.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// NewRPCError builds an error object tagged with kind.
func NewRPCError(code int, kind types.ErrorKind, message string) *RPCError {
	e := &RPCError{Code: code, Message: message}
	if kind != "" {
		e.Data = &ErrorData{Kind: kind}
	}
	return e
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("jsonrpc error %d (%s): %s", e.Code, e.Data.Kind, e.Message)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Kind returns the classification carried by the error, if any.
func (e *RPCError) Kind() types.ErrorKind {
	if e.Data == nil {
		return ""
	}
	return e.Data.Kind
}

// ToRPCError maps a classified error to its wire form.
func ToRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	kind := types.KindOf(err)
	code := CodeInternalError
	switch kind {
	case types.KindProtocolViolation:
		code = CodeInvalidRequest
	case types.KindInvalidArgument:
		code = CodeInvalidParams
	case types.KindTimeout, types.KindUpstreamUnavailable, types.KindIOFailure, types.KindParseFailure:
		code = CodeRequestFailed
	case types.KindCancelled:
		code = CodeRequestCancelled
	}
	return NewRPCError(code, kind, err.Error())
}
