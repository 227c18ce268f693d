package protocol

import "encoding/json"

// JSON-RPC 2.0 message types for agent mode communication.

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"` // string or int; nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application-specific error codes.
const (
	CodeUnknownCapability = -32000
	CodeStorageFailed     = -32001
	CodeInvalidIntent     = -32002
)

// Method constants for all supported JSON-RPC methods.
const (
	// Pipeline.
	MethodIntentExtract = "intent.extract"
	MethodIntentExecute = "intent.execute"
	MethodProcess       = "process"

	// Capability flags.
	MethodCapabilitiesList = "capabilities.list"
	MethodCapabilitiesSet  = "capabilities.set"

	// Remembered consent.
	MethodConsentList   = "consent.list"
	MethodConsentRevoke = "consent.revoke"

	// Audit log.
	MethodHistoryRecent = "history.recent"
	MethodHistoryStats  = "history.stats"

	// Global dry-run mode.
	MethodModeDryRun = "mode.dry_run"
)

// NewResponse creates a successful response.
func NewResponse(id any, result any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id any, code int, message string, data any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// Parameter types for the methods.

// TextParams holds parameters for "intent.extract" and "process".
type TextParams struct {
	Text string `json:"text"`
}

// ExecuteParams holds parameters for "intent.execute". Intent is the wire
// form {"intent", "target", "options"}.
type ExecuteParams struct {
	Intent map[string]any `json:"intent"`
	Input  string         `json:"input,omitempty"`
}

// CapabilitySetParams holds parameters for "capabilities.set". All changes
// apply together or not at all.
type CapabilitySetParams struct {
	Changes map[string]bool `json:"changes"`
}

// ConsentRevokeParams holds parameters for "consent.revoke". An empty
// target revokes every grant for the action.
type ConsentRevokeParams struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

// HistoryParams holds parameters for "history.recent".
type HistoryParams struct {
	Kind  string `json:"kind,omitempty"` // interactions (default), errors, consents
	Limit int    `json:"limit,omitempty"`
}

// DryRunParams holds parameters for "mode.dry_run". A nil Enabled reads the
// mode without changing it.
type DryRunParams struct {
	Enabled *bool `json:"enabled,omitempty"`
}
