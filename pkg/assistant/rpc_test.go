package assistant

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/agdesk/pkg/audit"
	"github.com/cgast/agdesk/pkg/capability"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/consent"
	"github.com/cgast/agdesk/pkg/events"
	"github.com/cgast/agdesk/pkg/extract"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/protocol"
	"github.com/cgast/agdesk/pkg/router"
)

type rpcHarness struct {
	h     *protocol.Handler
	r     *router.Router
	reg   *capability.Registry
	store *consent.Store
	bus   *events.MemoryBus
}

func newRPC(t *testing.T, answers ...confirm.Result) *rpcHarness {
	t.Helper()
	dir := t.TempDir()

	reg, err := capability.Open(filepath.Join(dir, "capabilities.yaml"), nil)
	require.NoError(t, err)
	log, err := audit.Open(filepath.Join(dir, "logs"), audit.Options{})
	require.NoError(t, err)
	bus := events.NewMemoryBus()
	store, err := consent.Open(filepath.Join(dir, "consent.db"), confirm.NewScripted(answers...), ConsentJournal(log, bus))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	table := router.NewTable()
	table.MustRegister(intent.GetTime, router.HandlerFunc(func(context.Context, intent.Intent) (router.Outcome, error) {
		return router.OK("Current time: now", nil), nil
	}))
	r := router.New(reg, table)

	s := New(extract.New(nil), r, WithRecorder(log), WithBus(bus))
	t.Cleanup(func() { s.Close() })

	h := protocol.NewHandler()
	RegisterMethods(h, Services{Session: s, Router: r, Capabilities: reg, Consent: store, Audit: log, Bus: bus})
	return &rpcHarness{h: h, r: r, reg: reg, store: store, bus: bus}
}

func (x *rpcHarness) call(t *testing.T, method, params string) protocol.Response {
	t.Helper()
	req := protocol.Request{JSONRPC: "2.0", ID: 1, Method: method}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return x.h.Handle(context.Background(), req)
}

func TestRegisterMethodsCoversProtocol(t *testing.T) {
	x := newRPC(t)
	assert.ElementsMatch(t, []string{
		protocol.MethodIntentExtract, protocol.MethodIntentExecute, protocol.MethodProcess,
		protocol.MethodCapabilitiesList, protocol.MethodCapabilitiesSet,
		protocol.MethodConsentList, protocol.MethodConsentRevoke,
		protocol.MethodHistoryRecent, protocol.MethodHistoryStats,
		protocol.MethodModeDryRun,
	}, x.h.Methods())
}

func TestRPCExtractAndProcess(t *testing.T) {
	x := newRPC(t)

	resp := x.call(t, protocol.MethodIntentExtract, `{"text":"what time is it"}`)
	require.Nil(t, resp.Error)
	ext := resp.Result.(extract.Extraction)
	assert.Equal(t, intent.GetTime, ext.Intent.Type)

	resp = x.call(t, protocol.MethodProcess, `{"text":"what time is it"}`)
	require.Nil(t, resp.Error)
	out := resp.Result.(map[string]any)
	result := out["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "Current time: now", result["message"])

	resp = x.call(t, protocol.MethodHistoryRecent, `{"limit":5}`)
	require.Nil(t, resp.Error)
	assert.Len(t, resp.Result, 1)
}

func TestRPCExecute(t *testing.T) {
	x := newRPC(t)

	resp := x.call(t, protocol.MethodIntentExecute, `{"intent":{"intent":"get_time","target":"","options":{}}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, true, resp.Result.(map[string]any)["success"])

	resp = x.call(t, protocol.MethodIntentExecute, `{"intent":{"intent":"get_time"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidIntent, resp.Error.Code)

	resp = x.call(t, protocol.MethodIntentExecute, `{"intent":{"intent":"kill_process","target":"chrome","options":{}}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, "capability_denied", resp.Result.(map[string]any)["error_kind"])
}

func TestRPCCapabilities(t *testing.T) {
	x := newRPC(t)

	resp := x.call(t, protocol.MethodCapabilitiesSet, `{"changes":{"fs":true,"process_control":true}}`)
	require.Nil(t, resp.Error)
	assert.True(t, x.reg.IsEnabled(capability.FS))
	assert.True(t, x.reg.IsEnabled(capability.ProcessControl))

	resp = x.call(t, protocol.MethodCapabilitiesSet, `{"changes":{"fs":false,"teleport":true}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeUnknownCapability, resp.Error.Code)
	assert.True(t, x.reg.IsEnabled(capability.FS), "batch with unknown name must not apply")

	resp = x.call(t, protocol.MethodCapabilitiesSet, `{}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidParams, resp.Error.Code)

	resp = x.call(t, protocol.MethodCapabilitiesList, "")
	require.Nil(t, resp.Error)
	list := resp.Result.([]CapabilityInfo)
	assert.Len(t, list, len(capability.Names()))
}

func TestRPCConsent(t *testing.T) {
	x := newRPC(t, confirm.AllowedPermanent(), confirm.AllowedPermanent(), confirm.AllowedPermanent())
	ctx := context.Background()
	for _, target := range []string{"chrome", "firefox"} {
		require.True(t, x.store.ConfirmAction(ctx, confirm.Request{Action: "close_app", Target: target}).Allowed)
	}
	require.True(t, x.store.ConfirmAction(ctx, confirm.Request{Action: "kill_process", Target: "vim"}).Allowed)

	resp := x.call(t, protocol.MethodConsentList, "")
	require.Nil(t, resp.Error)
	assert.Len(t, resp.Result, 3)

	resp = x.call(t, protocol.MethodConsentRevoke, `{"action":"kill_process","target":"vim"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"revoked": 1}, resp.Result)

	resp = x.call(t, protocol.MethodConsentRevoke, `{"action":"close_app"}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"revoked": 2}, resp.Result)

	resp = x.call(t, protocol.MethodConsentRevoke, `{}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidParams, resp.Error.Code)

	resp = x.call(t, protocol.MethodHistoryRecent, `{"kind":"consents"}`)
	require.Nil(t, resp.Error)
	assert.Len(t, resp.Result, 3)

	resp = x.call(t, protocol.MethodHistoryRecent, `{"kind":"bogus"}`)
	require.NotNil(t, resp.Error)
}

func TestRPCDryRunMode(t *testing.T) {
	x := newRPC(t)

	resp := x.call(t, protocol.MethodModeDryRun, "")
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"dry_run": true}, resp.Result)

	resp = x.call(t, protocol.MethodModeDryRun, `{"enabled":false}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"dry_run": false}, resp.Result)
	assert.False(t, x.r.DryRun())

	var changed int
	for _, e := range x.bus.History(time.Time{}) {
		if e.Type == events.EventModeChanged {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
}

func TestRPCStats(t *testing.T) {
	x := newRPC(t)
	x.call(t, protocol.MethodProcess, `{"text":"what time is it"}`)

	resp := x.call(t, protocol.MethodHistoryStats, "")
	require.Nil(t, resp.Error)
	stats := resp.Result.(audit.Stats)
	assert.Equal(t, 1, stats.TotalInteractions)
}
