// Package toolcall defines the wire types shared between the tool
// server and the orchestrator: tool descriptors, call requests, and the
// tagged success/error result envelope.
package toolcall

import "encoding/json"

// Descriptor describes a callable tool. Immutable after registration;
// the Description and Parameters fields are consumed verbatim by the LLM.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Call is a request to execute a tool. SessionID scopes caching and
// interaction logging; it is opaque to the dispatcher.
type Call struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	SessionID string         `json:"session_id"`
}

// ErrorKind is the closed set of dispatcher error categories. No other
// kind is ever returned.
type ErrorKind string

const (
	ErrUnknownTool         ErrorKind = "unknown_tool"
	ErrInvalidArguments    ErrorKind = "invalid_arguments"
	ErrEffectorUnavailable ErrorKind = "effector_unavailable"
	ErrEffectorTimeout     ErrorKind = "effector_timeout"
	ErrEffectorFailed      ErrorKind = "effector_failed"
	ErrUpstreamRejected    ErrorKind = "upstream_rejected"
)

// Result is the tagged response envelope for every tool call. Exactly
// one of Data or (Kind, Message) is populated, discriminated by Status.
type Result struct {
	Status  string         `json:"status"` // "success" or "error"
	Data    map[string]any `json:"data,omitempty"`
	Kind    ErrorKind      `json:"kind,omitempty"`
	Message string         `json:"message,omitempty"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// IsSuccess reports whether the result carries data rather than an error.
func (r Result) IsSuccess() bool {
	return r.Status == "success"
}

// Success wraps data in a success result.
func Success(data map[string]any) Result {
	if data == nil {
		data = map[string]any{}
	}
	return Result{Status: "success", Data: data}
}

// Error builds an error result of the given kind.
func Error(kind ErrorKind, message string) Result {
	return Result{Status: "error", Kind: kind, Message: message}
}

// ErrorDetail builds an error result with an attached detail bag.
func ErrorDetail(kind ErrorKind, message string, detail map[string]any) Result {
	return Result{Status: "error", Kind: kind, Message: message, Detail: detail}
}

// String renders the result as compact JSON for transcripts and logs.
func (r Result) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","kind":"effector_failed","message":"result encoding failed"}`
	}
	return string(b)
}
