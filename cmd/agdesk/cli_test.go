package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cgast/agdesk/internal/config"
	"github.com/cgast/agdesk/pkg/capability"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/events"
)

type cliEnv struct {
	dir     string
	dataDir string
	config  string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(config.EnvLLMProvider, config.ProviderNone)
	t.Setenv(config.EnvDryRun, "")
	return cliEnv{
		dir:     dir,
		dataDir: filepath.Join(dir, "data"),
		config:  filepath.Join(dir, "config.yaml"),
	}
}

// execute runs the root command with fresh flag state.
func (e cliEnv) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	runJSON, runIntent, initForce, historyLimit = false, "", false, 10

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", e.config, "--data-dir", e.dataDir}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCapsEnableAndDisable(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "", "caps")
	require.NoError(t, err)
	assert.Regexp(t, `fs\s+off`, out)

	out, err = env.execute(t, "", "caps", "enable", "fs", "run_shell")
	require.NoError(t, err)
	assert.Regexp(t, `fs\s+on`, out)
	assert.Regexp(t, `run_shell\s+on`, out)

	reg, err := capability.Open(filepath.Join(env.dataDir, "capabilities.yaml"), nil)
	require.NoError(t, err)
	assert.True(t, reg.IsEnabled(capability.FS))

	_, err = env.execute(t, "", "caps", "disable", "fs")
	require.NoError(t, err)
	require.NoError(t, reg.Reload())
	assert.False(t, reg.IsEnabled(capability.FS))
}

func TestCapsUnknownNameFails(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.execute(t, "", "caps", "enable", "teleport")
	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrUnknownCapability)
}

func TestInitWritesConfigOnce(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created "+env.config)
	assert.FileExists(t, env.config)
	assert.FileExists(t, filepath.Join(env.dataDir, "capabilities.yaml"))

	_, err = env.execute(t, "", "init")
	assert.Error(t, err)

	_, err = env.execute(t, "", "init", "--force")
	assert.NoError(t, err)
}

func TestRunStructuredIntentJSON(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "", "run", "--json", "--intent", `{"intent":"get_time","target":"","options":{}}`)
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "get_time", res["intent_type"])
	assert.Equal(t, true, res["dry_run"])
}

func TestRunReportsFailure(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.execute(t, "", "run", "kill", "firefox")
	require.Error(t, err)
	assert.Contains(t, out, "capability_denied")

	_, err = env.execute(t, "", "run")
	assert.Error(t, err)

	_, err = env.execute(t, "", "run", "--intent", `{"intent":"get_time"}`)
	assert.Error(t, err)
}

func TestHistoryAfterRun(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.execute(t, "", "run", "what", "time", "is", "it")
	require.NoError(t, err)

	out, err := env.execute(t, "", "history", "-n", "5")
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "what time is it", entries[0]["user_input"])

	out, err = env.execute(t, "", "history", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_interactions": 1`)

	export := filepath.Join(env.dir, "export.json")
	_, err = env.execute(t, "", "history", "export", export)
	require.NoError(t, err)
	assert.FileExists(t, export)

	_, err = env.execute(t, "", "history", "bogus")
	assert.Error(t, err)
}

func TestConsentCommands(t *testing.T) {
	env := newCLIEnv(t)
	cfg := config.DefaultConfig()
	cfg.DataDir = env.dataDir

	store, err := openConsent(cfg, zap.NewNop(), confirm.NewScripted(confirm.AllowedPermanent(), confirm.AllowedPermanent()), nil)
	require.NoError(t, err)
	ctx := context.Background()
	store.ConfirmAction(ctx, confirm.Request{Action: "close_app", Target: "chrome"})
	store.ConfirmAction(ctx, confirm.Request{Action: "close_app", Target: "firefox"})
	require.NoError(t, store.Close())

	out, err := env.execute(t, "", "consent")
	require.NoError(t, err)
	assert.Contains(t, out, "chrome")
	assert.Contains(t, out, "firefox")

	out, err = env.execute(t, "", "consent", "revoke", "close_app", "chrome")
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked 1")

	out, err = env.execute(t, "", "consent", "revoke", "close_app")
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked 1")

	out, err = env.execute(t, "", "consent")
	require.NoError(t, err)
	assert.Contains(t, out, "No remembered consent.")
}

func TestREPL(t *testing.T) {
	env := newCLIEnv(t)
	cfg := config.DefaultConfig()
	cfg.DataDir = env.dataDir
	cfg.LLM.Provider = config.ProviderNone

	input := strings.Join([]string{
		":dryrun",
		":dryrun off",
		":dryrun maybe",
		":dryrun on",
		":caps",
		":nope",
		"what time is it",
		"exit",
		"never read",
	}, "\n") + "\n"
	lines := confirm.NewLineReader(strings.NewReader(input))

	var out bytes.Buffer
	a, err := openApp(context.Background(), cfg, zap.NewNop(), confirm.Deny{})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, repl(context.Background(), a, lines, &out))

	text := out.String()
	assert.Contains(t, text, "Dry-run mode is OFF")
	assert.Contains(t, text, "Usage: :dryrun [on|off]")
	assert.Contains(t, text, "run_shell")
	assert.Contains(t, text, "Unknown shell command :nope")
	assert.Contains(t, text, "Current time:")
	assert.Contains(t, text, "Goodbye!")
	assert.True(t, a.router.DryRun())
}

func TestREPLEndOfInput(t *testing.T) {
	env := newCLIEnv(t)
	cfg := config.DefaultConfig()
	cfg.DataDir = env.dataDir
	cfg.LLM.Provider = config.ProviderNone

	a, err := openApp(context.Background(), cfg, zap.NewNop(), confirm.Deny{})
	require.NoError(t, err)
	defer a.Close()

	var out bytes.Buffer
	assert.NoError(t, repl(context.Background(), a, confirm.NewLineReader(strings.NewReader("")), &out))
}

func TestPromptFor(t *testing.T) {
	cfg := config.DefaultConfig()
	lines := confirm.NewLineReader(strings.NewReader(""))

	_, ok := promptFor(cfg, lines, os.Stderr).(*confirm.TerminalPrompt)
	assert.True(t, ok)

	cfg.Confirmation.Mode = config.ConfirmDeny
	assert.Equal(t, confirm.Deny{}, promptFor(cfg, lines, os.Stderr))
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	l, err = newLogger("warn", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	_, err = newLogger("loud", false)
	assert.Error(t, err)
}

func TestREPLPublishesModeChange(t *testing.T) {
	env := newCLIEnv(t)
	cfg := config.DefaultConfig()
	cfg.DataDir = env.dataDir
	cfg.LLM.Provider = config.ProviderNone

	a, err := openApp(context.Background(), cfg, zap.NewNop(), confirm.Deny{})
	require.NoError(t, err)
	defer a.Close()

	input := ":dryrun on\n:dryrun off\n:dryrun off\n"
	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), a, confirm.NewLineReader(strings.NewReader(input)), &out))

	var changes int
	for _, e := range a.bus.History(time.Time{}) {
		if e.Type == events.EventModeChanged {
			changes++
		}
	}
	assert.Equal(t, 1, changes)
	assert.False(t, a.router.DryRun())
}
