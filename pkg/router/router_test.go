package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/agdesk/pkg/capability"
	"github.com/cgast/agdesk/pkg/intent"
)

type caps map[capability.Name]bool

func (c caps) IsEnabled(n capability.Name) bool { return c[n] }

func allEnabled() caps {
	c := caps{}
	for _, n := range capability.Names() {
		c[n] = true
	}
	return c
}

type spy struct {
	calls []intent.Intent
	out   Outcome
	err   error
}

func (s *spy) Handle(ctx context.Context, in intent.Intent) (Outcome, error) {
	s.calls = append(s.calls, in)
	return s.out, s.err
}

func tableWithSpies(t *testing.T) (*Table, map[intent.Type]*spy) {
	t.Helper()
	table := NewTable()
	spies := map[intent.Type]*spy{}
	for _, typ := range intent.Types() {
		s := &spy{out: OK("done", map[string]any{"k": "v"})}
		spies[typ] = s
		require.NoError(t, table.Register(typ, s))
	}
	return table, spies
}

func TestDryRunOverride(t *testing.T) {
	for _, mode := range []bool{true, false} {
		table, spies := tableWithSpies(t)
		r := New(allEnabled(), table, WithDryRun(mode))

		for _, typ := range intent.Types() {
			for _, supplied := range []bool{true, false} {
				in := intent.New(typ, "x")
				in.Options[intent.OptDryRun] = supplied

				res := r.Execute(context.Background(), in)
				assert.Equal(t, mode, res.DryRun, "%s mode=%v supplied=%v", typ, mode, supplied)

				s := spies[typ]
				last := s.calls[len(s.calls)-1]
				assert.Equal(t, mode, last.Options[intent.OptDryRun])
				assert.Equal(t, supplied, in.Options[intent.OptDryRun], "caller options are not mutated")
			}
		}
	}
}

func TestCapabilityGate(t *testing.T) {
	for _, typ := range intent.Types() {
		name, required := RequiredCapability(typ)
		if !required {
			continue
		}
		t.Run(string(typ), func(t *testing.T) {
			table, spies := tableWithSpies(t)
			enabled := allEnabled()
			enabled[name] = false
			r := New(enabled, table)

			res := r.Execute(context.Background(), intent.New(typ, "x"))
			assert.False(t, res.Success)
			assert.Equal(t, KindCapabilityDenied, res.ErrorKind)
			assert.Contains(t, res.Message, "not enabled")
			assert.Empty(t, spies[typ].calls, "handler must not be invoked")
		})
	}
}

func TestKillWithProcessControlDisabled(t *testing.T) {
	kill := &spy{out: OK("killed", nil)}
	table := NewTable()
	table.MustRegister(intent.KillProcess, kill)

	r := New(caps(capability.Defaults()), table)
	res := r.Execute(context.Background(), intent.New(intent.KillProcess, "notepad"))

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "process_control")
	assert.Contains(t, res.Message, "not enabled")
	assert.Empty(t, kill.calls)
}

func TestRequiredCapabilityTable(t *testing.T) {
	want := map[intent.Type]capability.Name{
		intent.OpenApp:       capability.WindowControl,
		intent.SwitchApp:     capability.WindowControl,
		intent.FocusWindow:   capability.WindowControl,
		intent.ClickAt:       capability.WindowControl,
		intent.TypeText:      capability.WindowControl,
		intent.CloseApp:      capability.ProcessControl,
		intent.KillProcess:   capability.ProcessControl,
		intent.ListProcesses: capability.ProcessControl,
		intent.ReadFile:      capability.FS,
		intent.WriteFile:     capability.FS,
		intent.ListFiles:     capability.FS,
		intent.FindFile:      capability.FS,
		intent.RunCommand:    capability.RunShell,
		intent.SearchWeb:     capability.BrowserControl,
		intent.OpenURL:       capability.BrowserControl,
		intent.GetSystemInfo: capability.SystemInfo,
		intent.Screenshot:    capability.Screenshot,
		intent.GetWeather:    capability.Network,
	}
	for _, typ := range intent.Types() {
		name, ok := RequiredCapability(typ)
		if w, gated := want[typ]; gated {
			assert.True(t, ok, typ)
			assert.Equal(t, w, name, typ)
		} else {
			assert.False(t, ok, typ)
		}
	}
}

func TestValidation(t *testing.T) {
	table, spies := tableWithSpies(t)
	r := New(allEnabled(), table, WithDryRun(false))

	res := r.Execute(context.Background(), intent.Intent{Type: intent.OpenApp, Target: "x"})
	assert.False(t, res.Success)
	assert.Equal(t, KindValidation, res.ErrorKind)
	assert.False(t, res.DryRun)
	assert.Empty(t, spies[intent.OpenApp].calls)

	res = r.ExecuteMap(context.Background(), map[string]any{"intent": "open_app", "target": "x"})
	assert.Equal(t, KindValidation, res.ErrorKind)
	assert.Equal(t, intent.OpenApp, res.IntentType)
	assert.Empty(t, spies[intent.OpenApp].calls)

	res = r.ExecuteMap(context.Background(), map[string]any{"intent": "open_app", "target": "x", "options": map[string]any{}})
	assert.True(t, res.Success)
	assert.Len(t, spies[intent.OpenApp].calls, 1)
}

func TestUnknownIntent(t *testing.T) {
	r := New(allEnabled(), NewTable())

	res := r.Execute(context.Background(), intent.New("launch_rocket", ""))
	assert.False(t, res.Success)
	assert.Equal(t, KindUnknownIntent, res.ErrorKind)

	res = r.Execute(context.Background(), intent.New(intent.PlayMedia, "jazz"))
	assert.Equal(t, KindUnknownIntent, res.ErrorKind)
}

func TestHandlerErrorsAreContained(t *testing.T) {
	table := NewTable()
	table.MustRegister(intent.GetTime, &spy{err: errors.New("clock on fire")})
	table.MustRegister(intent.Help, HandlerFunc(func(context.Context, intent.Intent) (Outcome, error) {
		panic("boom")
	}))
	table.MustRegister(intent.Exit, &spy{out: Outcome{Message: "no"}})
	r := New(allEnabled(), table)

	res := r.Execute(context.Background(), intent.New(intent.GetTime, ""))
	assert.False(t, res.Success)
	assert.Equal(t, KindHandlerError, res.ErrorKind)
	assert.Contains(t, res.Error, "clock on fire")

	var got Result
	require.NotPanics(t, func() { got = r.Execute(context.Background(), intent.New(intent.Help, "")) })
	assert.False(t, got.Success)
	assert.Equal(t, KindHandlerError, got.ErrorKind)
	assert.Contains(t, got.Error, "boom")

	res = r.Execute(context.Background(), intent.New(intent.Exit, ""))
	assert.Equal(t, KindHandlerError, res.ErrorKind, "failed outcome without a kind")
}

func TestConsentKindsPassThrough(t *testing.T) {
	table := NewTable()
	table.MustRegister(intent.RunCommand, &spy{out: Fail(KindConsentDenied, "denied")})
	r := New(allEnabled(), table)

	res := r.Execute(context.Background(), intent.New(intent.RunCommand, "ls"))
	assert.Equal(t, KindConsentDenied, res.ErrorKind)
}

func TestResultMap(t *testing.T) {
	table, _ := tableWithSpies(t)
	r := New(allEnabled(), table)
	res := r.Execute(context.Background(), intent.New(intent.GetTime, ""))

	m := res.Map()
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "v", m["k"])
	assert.Equal(t, "get_time", m["intent_type"])
	assert.Equal(t, true, m["dry_run"])
	assert.Contains(t, m, "timestamp")
	assert.Contains(t, m, "execution_time")
	assert.NotContains(t, m, "error")
}

func TestSetDryRun(t *testing.T) {
	r := New(allEnabled(), NewTable())
	assert.True(t, r.DryRun())
	r.SetDryRun(false)
	assert.False(t, r.DryRun())
}

func TestTableRegister(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Register(intent.Help, &spy{}))
	assert.Error(t, table.Register(intent.Help, &spy{}))
	assert.True(t, errors.Is(table.Register("nope", &spy{}), intent.ErrUnknownType))
	assert.Equal(t, []intent.Type{intent.Help}, table.Types())
}
