package router

import (
	"encoding/json"
	"time"

	"github.com/cgast/agdesk/pkg/intent"
)

// ErrorKind classifies a failed result.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindCapabilityDenied ErrorKind = "capability_denied"
	KindUnknownIntent    ErrorKind = "unknown_intent"
	KindConsentDenied    ErrorKind = "consent_denied"
	KindConsentCancelled ErrorKind = "consent_cancelled"
	KindHandlerError     ErrorKind = "handler_error"
)

// Outcome is what a handler reports.
type Outcome struct {
	Success bool
	Message string
	Data    map[string]any
	Kind    ErrorKind
}

// OK builds a successful outcome.
func OK(message string, data map[string]any) Outcome {
	return Outcome{Success: true, Message: message, Data: data}
}

// Fail builds a failed outcome of the given kind.
func Fail(kind ErrorKind, message string) Outcome {
	return Outcome{Message: message, Kind: kind}
}

// Result is the router's answer for one intent.
type Result struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data,omitempty"`
	ExecutionTime time.Duration  `json:"-"`
	Timestamp     time.Time      `json:"-"`
	IntentType    intent.Type    `json:"intent_type"`
	DryRun        bool           `json:"dry_run"`
	Error         string         `json:"error,omitempty"`
	ErrorKind     ErrorKind      `json:"error_kind,omitempty"`
}

// Map flattens the result into the wire form: type-specific fields sit next
// to the common ones, which win on collision.
func (r Result) Map() map[string]any {
	m := make(map[string]any, len(r.Data)+8)
	for k, v := range r.Data {
		m[k] = v
	}
	m["success"] = r.Success
	m["message"] = r.Message
	m["execution_time"] = r.ExecutionTime.Seconds()
	m["timestamp"] = r.Timestamp.Format(time.RFC3339Nano)
	m["intent_type"] = string(r.IntentType)
	m["dry_run"] = r.DryRun
	if !r.Success {
		m["error"] = r.Error
		m["error_kind"] = string(r.ErrorKind)
	}
	return m
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}
