// Package daemon exposes a sync engine to external hosts over JSON-RPC 2.0
// on a Unix socket.
package daemon

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// JSON-RPC 2.0 version string.
const JSONRPCVersion = "2.0"

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"` // nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// message is any inbound frame on the client side.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewRequest creates a new JSON-RPC request.
func NewRequest(id int64, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Method:  method,
	}

	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = data
	}

	return req, nil
}

// NewNotification creates a new JSON-RPC notification.
func NewNotification(method string, params any) (*Notification, error) {
	notif := &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}

	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		notif.Params = data
	}

	return notif, nil
}

// NewResponse creates a successful JSON-RPC response.
func NewResponse(id int64, result any) (*Response, error) {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
	}

	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		resp.Result = data
	} else {
		// JSON-RPC requires result to be present on success (can be null)
		resp.Result = json.RawMessage("null")
	}

	return resp, nil
}

// NewErrorResponse creates an error JSON-RPC response.
func NewErrorResponse(id *int64, code int, message string, data any) *Response {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}

	if data != nil {
		if d, err := json.Marshal(data); err == nil {
			resp.Error.Data = d
		}
	}

	return resp
}

// RPC methods. The sync/* methods map onto the engine's public operations.
const (
	MethodPing       = "ping"
	MethodShutdown   = "shutdown"
	MethodInitialize = "sync/initialize"
	MethodStop       = "sync/shutdown"
	MethodForceSync  = "sync/force"
	MethodGenerate   = "sync/generate"
	MethodNotify     = "sync/notify"
	MethodFlush      = "sync/flush"
	MethodStatus     = "sync/status"
	MethodSubscribe  = "sync/subscribe"
	MethodEvent      = "sync/event" // notification from server to client
)

// PingResult is the response to a ping request.
type PingResult struct {
	Pong      bool   `json:"pong"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	StartTime string `json:"start_time"`
}

// ShutdownResult is the response to a shutdown request.
type ShutdownResult struct {
	Message string `json:"message"`
}

// InitializeResult is the response to sync/initialize.
type InitializeResult struct {
	// Status is "initialized", "already_initialized" or "disabled".
	Status string `json:"status"`
	Root   string `json:"root"`
}

// StopResult is the response to sync/shutdown.
type StopResult struct {
	Status string `json:"status"`
}

// GenerateResult is the response to sync/generate and sync/force.
type GenerateResult struct {
	Modules   int      `json:"modules"`
	Written   []string `json:"written,omitempty"`
	Unchanged int      `json:"unchanged"`
	Stale     []string `json:"stale,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	// Failed lists artifacts that could not be written.
	Failed   []string `json:"failed,omitempty"`
	Duration string   `json:"duration"`
}

// NotifyParams are the parameters for sync/notify. Kind is one of created,
// modified, deleted or renamed; OldPath is only used for renamed.
type NotifyParams struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	OldPath string `json:"old_path,omitempty"`
}

// NotifyResult is the response to sync/notify.
type NotifyResult struct {
	Pending int `json:"pending"`
}

// FlushResult is the response to sync/flush.
type FlushResult struct {
	Status string `json:"status"`
}

// StatusResult is the response to sync/status.
type StatusResult struct {
	Initialized       bool   `json:"initialized"`
	Root              string `json:"root"`
	Tracked           int    `json:"tracked"`
	Modules           int    `json:"modules"`
	Pending           int    `json:"pending"`
	Flushes           int64  `json:"flushes"`
	FullGenerations   int64  `json:"full_generations"`
	DescriptorRenders int64  `json:"descriptor_renders"`
	Suppressed        int64  `json:"suppressed"`
}

// SubscribeResult is the response to sync/subscribe.
type SubscribeResult struct {
	Subscribed bool `json:"subscribed"`
}

// EventParams are the parameters for sync/event notifications.
type EventParams struct {
	Type      string   `json:"type"` // "change", "updating", "written", "unchanged", "error", "shutdown"
	Path      string   `json:"path,omitempty"`
	Change    string   `json:"change,omitempty"`
	Modules   []string `json:"modules,omitempty"`
	Count     int      `json:"count,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// IDGenerator generates unique request IDs.
type IDGenerator struct {
	counter atomic.Int64
}

// Next returns the next unique ID.
func (g *IDGenerator) Next() int64 {
	return g.counter.Add(1)
}
