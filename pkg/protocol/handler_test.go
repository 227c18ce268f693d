package protocol

import (
	"context"
	"encoding/json"
	"testing"
)

func TestHandlerMethodNotFound(t *testing.T) {
	h := NewHandler()
	req := Request{JSONRPC: "2.0", ID: 1, Method: "nonexistent"}

	resp := h.Handle(context.Background(), req)
	if resp.Error == nil {
		t.Fatal("expected error")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("Code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestHandlerInvalidVersion(t *testing.T) {
	h := NewHandler()
	req := Request{JSONRPC: "1.0", ID: 1, Method: "test"}

	resp := h.Handle(context.Background(), req)
	if resp.Error == nil {
		t.Fatal("expected error for invalid version")
	}
	if resp.Error.Code != CodeInvalidRequest {
		t.Errorf("Code = %d, want %d", resp.Error.Code, CodeInvalidRequest)
	}
}

func TestHandlerSuccess(t *testing.T) {
	h := NewHandler()
	h.Register("echo", func(_ context.Context, params json.RawMessage) (any, *Error) {
		return map[string]string{"echo": string(params)}, nil
	})

	req := Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "echo",
		Params:  json.RawMessage(`"hello"`),
	}

	resp := h.Handle(context.Background(), req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]string)
	if !ok {
		t.Fatalf("unexpected result type: %T", resp.Result)
	}
	if result["echo"] != `"hello"` {
		t.Errorf("echo = %q", result["echo"])
	}
}

func TestHandlerError(t *testing.T) {
	h := NewHandler()
	h.Register("fail", func(_ context.Context, params json.RawMessage) (any, *Error) {
		return nil, &Error{Code: CodeStorageFailed, Message: "boom"}
	})

	req := Request{JSONRPC: "2.0", ID: 2, Method: "fail"}
	resp := h.Handle(context.Background(), req)

	if resp.Error == nil {
		t.Fatal("expected error")
	}
	if resp.Error.Code != CodeStorageFailed {
		t.Errorf("Code = %d", resp.Error.Code)
	}
	if resp.ID != 2 {
		t.Errorf("ID = %v", resp.ID)
	}
}

func TestHandleRaw(t *testing.T) {
	h := NewHandler()
	h.Register("ping", func(_ context.Context, params json.RawMessage) (any, *Error) {
		return "pong", nil
	})

	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	resp := h.HandleRaw(context.Background(), raw)

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if resp.Result != "pong" {
		t.Errorf("Result = %v", resp.Result)
	}
}

func TestHandleRawParseError(t *testing.T) {
	h := NewHandler()
	resp := h.HandleRaw(context.Background(), []byte(`{invalid json`))

	if resp.Error == nil {
		t.Fatal("expected parse error")
	}
	if resp.Error.Code != CodeParseError {
		t.Errorf("Code = %d", resp.Error.Code)
	}
}

func TestParseParams(t *testing.T) {
	raw := json.RawMessage(`{"intent":{"intent":"list_files","target":".","options":{}},"input":"ls"}`)
	params, err := ParseParams[ExecuteParams](raw)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if params.Intent["intent"] != "list_files" {
		t.Errorf("Intent = %v", params.Intent)
	}
	if params.Input != "ls" {
		t.Errorf("Input = %q", params.Input)
	}
}

func TestParseParamsNil(t *testing.T) {
	params, err := ParseParams[DryRunParams](nil)
	if err != nil {
		t.Fatalf("ParseParams(nil): %v", err)
	}
	if params.Enabled != nil {
		t.Errorf("expected nil Enabled, got %v", *params.Enabled)
	}
}

func TestParseParamsInvalid(t *testing.T) {
	_, err := ParseParams[ExecuteParams](json.RawMessage(`"not an object"`))
	if err == nil {
		t.Fatal("expected error for invalid params")
	}
	if err.Code != CodeInvalidParams {
		t.Errorf("Code = %d", err.Code)
	}
}

func TestHandlerMethods(t *testing.T) {
	h := NewHandler()
	h.Register("a", func(_ context.Context, params json.RawMessage) (any, *Error) { return nil, nil })
	h.Register("b", func(_ context.Context, params json.RawMessage) (any, *Error) { return nil, nil })

	h.Register("0", func(_ context.Context, params json.RawMessage) (any, *Error) { return nil, nil })

	methods := h.Methods()
	if len(methods) != 3 {
		t.Fatalf("Methods() len = %d, want 3", len(methods))
	}
	if methods[0] != "0" || methods[2] != "b" {
		t.Errorf("Methods() not sorted: %v", methods)
	}
}

func TestHandlerPassesContext(t *testing.T) {
	type key struct{}
	h := NewHandler()
	h.Register("ctx", func(ctx context.Context, _ json.RawMessage) (any, *Error) {
		return ctx.Value(key{}), nil
	})

	ctx := context.WithValue(context.Background(), key{}, "session-1")
	resp := h.Handle(ctx, Request{JSONRPC: "2.0", ID: 1, Method: "ctx"})
	if resp.Result != "session-1" {
		t.Errorf("Result = %v", resp.Result)
	}
}
