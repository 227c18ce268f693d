// Package actions holds the default handlers behind the router: one per
// routed intent type. Every handler honors the intent's dry_run option by
// describing what it would do, prefixed with DryRunMarker, and touches
// nothing. Sensitive steps go through a Confirmer first.
package actions

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/internal/sandbox"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

// DryRunMarker prefixes every dry-run message.
const DryRunMarker = "[DRY RUN]"

const (
	DefaultSearchURL  = "https://www.google.com/search?q="
	DefaultWeatherURL = "https://wttr.in/%s?format=3"
)

// DefaultProtectedProcesses may never be killed or closed. Matching is by
// substring of the lower-cased process name.
var DefaultProtectedProcesses = []string{
	"system", "kernel", "init", "systemd",
	"csrss.exe", "wininit.exe", "winlogon.exe", "lsass.exe", "services.exe", "svchost.exe",
}

// Confirmer asks the operator before a sensitive step. consent.Store
// satisfies it.
type Confirmer interface {
	ConfirmAction(ctx context.Context, req confirm.Request) confirm.Result
}

// Config wires the handlers to their collaborators. Zero values get
// working defaults.
type Config struct {
	Sandbox            *sandbox.Sandbox
	Confirmer          Confirmer
	Runner             Runner
	Processes          ProcessTable
	HTTPClient         *http.Client
	Apps               map[string][]string
	ProtectedProcesses []string
	SearchURL          string
	WeatherURL         string
	AllowedDomains     []string
	HomeDir            string
	GOOS               string
	CommandTimeout     time.Duration
	Now                func() time.Time
	Logger             *zap.Logger
}

// Handlers implements the routed intent types.
type Handlers struct {
	sandbox        *sandbox.Sandbox
	confirmer      Confirmer
	runner         Runner
	procs          ProcessTable
	client         *http.Client
	apps           map[string][]string
	protected      []string
	searchURL      string
	weatherURL     string
	allowedDomains []string
	home           string
	goos           string
	cmdTimeout     time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// New builds the handler set.
func New(cfg Config) (*Handlers, error) {
	h := &Handlers{
		sandbox:        cfg.Sandbox,
		confirmer:      cfg.Confirmer,
		runner:         cfg.Runner,
		procs:          cfg.Processes,
		client:         cfg.HTTPClient,
		protected:      cfg.ProtectedProcesses,
		searchURL:      cfg.SearchURL,
		weatherURL:     cfg.WeatherURL,
		allowedDomains: cfg.AllowedDomains,
		home:           cfg.HomeDir,
		goos:           cfg.GOOS,
		cmdTimeout:     cfg.CommandTimeout,
		now:            cfg.Now,
		logger:         cfg.Logger,
	}

	if h.sandbox == nil {
		sb, err := sandbox.New(sandbox.Config{})
		if err != nil {
			return nil, fmt.Errorf("actions: sandbox: %w", err)
		}
		h.sandbox = sb
	}
	if h.confirmer == nil {
		h.confirmer = promptConfirmer{confirm.Deny{}}
	}
	if h.runner == nil {
		h.runner = ExecRunner{}
	}
	if h.procs == nil {
		h.procs = SystemProcesses{Runner: h.runner}
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: 15 * time.Second}
	}
	if h.protected == nil {
		h.protected = DefaultProtectedProcesses
	}
	if h.searchURL == "" {
		h.searchURL = DefaultSearchURL
	}
	if h.weatherURL == "" {
		h.weatherURL = DefaultWeatherURL
	}
	if h.goos == "" {
		h.goos = runtime.GOOS
	}
	if h.home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("actions: home directory: %w", err)
		}
		h.home = home
	}
	if h.cmdTimeout <= 0 {
		h.cmdTimeout = 30 * time.Second
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}

	h.apps = DefaultApps(h.goos)
	for name, argv := range cfg.Apps {
		if len(argv) > 0 {
			h.apps[strings.ToLower(name)] = argv
		}
	}
	return h, nil
}

// Register binds every implemented intent type in t. Media and bookmark
// types stay unbound.
func (h *Handlers) Register(t *router.Table) error {
	bindings := map[intent.Type]router.HandlerFunc{
		intent.OpenApp:             h.openApp,
		intent.CloseApp:            h.closeApp,
		intent.SwitchApp:           h.switchApp,
		intent.ReadFile:            h.readFile,
		intent.WriteFile:           h.writeFile,
		intent.ListFiles:           h.listFiles,
		intent.FindFile:            h.findFile,
		intent.RunCommand:          h.runCommand,
		intent.KillProcess:         h.killProcess,
		intent.ListProcesses:       h.listProcesses,
		intent.SearchWeb:           h.searchWeb,
		intent.OpenURL:             h.openURL,
		intent.GetTime:             h.getTime,
		intent.GetWeather:          h.getWeather,
		intent.GetSystemInfo:       h.getSystemInfo,
		intent.FocusWindow:         h.focusWindow,
		intent.ClickAt:             h.clickAt,
		intent.TypeText:            h.typeText,
		intent.Screenshot:          h.screenshot,
		intent.AskForClarification: h.clarify,
		intent.Help:                h.help,
		intent.Exit:                h.exit,
	}
	for _, typ := range intent.Types() {
		fn, ok := bindings[typ]
		if !ok {
			continue
		}
		if err := t.Register(typ, fn); err != nil {
			return fmt.Errorf("actions: %w", err)
		}
	}
	return nil
}

// NewTable builds a router table with every handler registered.
func NewTable(cfg Config) (*router.Table, error) {
	h, err := New(cfg)
	if err != nil {
		return nil, err
	}
	t := router.NewTable()
	if err := h.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

type promptConfirmer struct{ p confirm.Prompt }

func (c promptConfirmer) ConfirmAction(ctx context.Context, req confirm.Request) confirm.Result {
	return c.p.Confirm(ctx, req)
}

// dryRun formats a dry-run message.
func dryRun(format string, args ...any) string {
	return DryRunMarker + " " + fmt.Sprintf(format, args...)
}

// preview is the outcome every handler returns in dry-run mode.
func preview(data map[string]any, format string, args ...any) router.Outcome {
	if data == nil {
		data = map[string]any{}
	}
	data["would_execute"] = true
	return router.OK(dryRun(format, args...), data)
}

// ask runs a consent request. It returns ok=true when the step may go on;
// otherwise the returned outcome explains the refusal.
func (h *Handlers) ask(ctx context.Context, req confirm.Request) (router.Outcome, bool) {
	res := h.confirmer.ConfirmAction(ctx, req)
	switch res.Outcome() {
	case confirm.OutcomeAllowedOnce, confirm.OutcomeAllowedPermanent:
		return router.Outcome{}, true
	case confirm.OutcomeCancelled:
		return router.Fail(router.KindConsentCancelled,
			fmt.Sprintf("Confirmation for %s on %s was cancelled", req.Action, req.Target)), false
	default:
		return router.Fail(router.KindConsentDenied,
			fmt.Sprintf("Permission denied for %s on %s", req.Action, req.Target)), false
	}
}

func failf(format string, args ...any) router.Outcome {
	return router.Fail(router.KindHandlerError, fmt.Sprintf(format, args...))
}
