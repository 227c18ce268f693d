package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/internal/config"
	"github.com/cgast/agdesk/internal/sandbox"
	"github.com/cgast/agdesk/pkg/actions"
	"github.com/cgast/agdesk/pkg/assistant"
	"github.com/cgast/agdesk/pkg/audit"
	"github.com/cgast/agdesk/pkg/capability"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/consent"
	"github.com/cgast/agdesk/pkg/events"
	"github.com/cgast/agdesk/pkg/extract"
	"github.com/cgast/agdesk/pkg/llm"
	"github.com/cgast/agdesk/pkg/router"
)

// app holds the wired pipeline for one process.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	bus     *events.MemoryBus
	caps    *capability.Registry
	audit   *audit.Log
	consent *consent.Store
	router  *router.Router
	session *assistant.Session
	cancel  context.CancelFunc
}

func ensureDataDir(cfg config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func openCapabilities(cfg config.Config, logger *zap.Logger) (*capability.Registry, error) {
	if err := ensureDataDir(cfg); err != nil {
		return nil, err
	}
	return capability.Open(cfg.CapabilitiesPath(), logger)
}

func openAudit(cfg config.Config, logger *zap.Logger) (*audit.Log, error) {
	if err := ensureDataDir(cfg); err != nil {
		return nil, err
	}
	return audit.Open(cfg.LogDir(), audit.Options{
		MaxEntries: cfg.Audit.MaxEntries,
		MaxSize:    cfg.AuditMaxSize(),
		MaxFiles:   cfg.Audit.MaxFiles,
		Logger:     logger,
	})
}

func openConsent(cfg config.Config, logger *zap.Logger, prompt confirm.Prompt, journal consent.Journal) (*consent.Store, error) {
	if err := ensureDataDir(cfg); err != nil {
		return nil, err
	}
	return consent.Open(cfg.ConsentPath(), prompt, journal,
		consent.WithExpiry(cfg.ConsentExpiry()),
		consent.WithTimeout(cfg.ConfirmTimeout()),
		consent.WithLogger(logger))
}

// newGenerator picks the generation backend. A backend that cannot be
// constructed degrades to pattern-only extraction.
func newGenerator(ctx context.Context, cfg config.Config, logger *zap.Logger) llm.Generator {
	opts := []llm.Option{
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
		llm.WithLogger(logger),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout()}),
	}
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		g, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, opts...)
		if err != nil {
			logger.Warn("gemini unavailable, using pattern extraction only", zap.Error(err))
			return llm.Disabled{}
		}
		return g
	case config.ProviderOllama:
		return llm.NewOllamaClient(cfg.LLM.Endpoint, cfg.LLM.Model, opts...)
	default:
		return llm.Disabled{}
	}
}

// openApp wires every component. prompt answers confirmations; it is
// serialized so only one question is outstanding at a time.
func openApp(ctx context.Context, cfg config.Config, logger *zap.Logger, prompt confirm.Prompt) (*app, error) {
	a := &app{cfg: cfg, logger: logger, bus: events.NewMemoryBus()}

	var err error
	if a.caps, err = openCapabilities(cfg, logger); err != nil {
		return nil, err
	}
	assistant.PublishCapabilityChanges(a.caps, a.bus)

	if a.audit, err = openAudit(cfg, logger); err != nil {
		return nil, err
	}

	journal := assistant.ConsentJournal(a.audit, a.bus)
	if a.consent, err = openConsent(cfg, logger, confirm.Serialize(prompt), journal); err != nil {
		return nil, err
	}

	sb, err := sandbox.New(sandbox.Config{
		SafePaths:   cfg.Sandbox.AllowedPaths,
		DeniedPaths: cfg.Sandbox.DeniedPaths,
		MaxFileSize: cfg.Sandbox.MaxFileSize,
	})
	if err != nil {
		a.consent.Close()
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	table, err := actions.NewTable(actions.Config{
		Sandbox:            sb,
		Confirmer:          a.consent,
		Apps:               cfg.Apps,
		ProtectedProcesses: cfg.ProtectedProcesses,
		SearchURL:          cfg.Web.SearchURL,
		WeatherURL:         cfg.Web.WeatherURL,
		AllowedDomains:     cfg.Web.AllowedDomains,
		Logger:             logger,
	})
	if err != nil {
		a.consent.Close()
		return nil, err
	}
	a.router = router.New(a.caps, table, router.WithDryRun(cfg.DryRun), router.WithLogger(logger))

	gen := newGenerator(ctx, cfg, logger)
	ex := extract.New(gen, extract.WithLogger(logger), extract.WithTimeout(cfg.LLMTimeout()))
	a.session = assistant.New(ex, a.router,
		assistant.WithRecorder(a.audit),
		assistant.WithBus(a.bus),
		assistant.WithLogger(logger))

	watchCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go func() {
		if err := a.caps.Watch(watchCtx); err != nil {
			logger.Warn("capability watch stopped", zap.Error(err))
		}
	}()
	go a.traceEvents(watchCtx)

	logger.Info("assistant ready",
		zap.String("session", a.session.ID()),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("data_dir", cfg.DataDir))
	return a, nil
}

// traceEvents mirrors bus traffic into the debug log.
func (a *app) traceEvents(ctx context.Context) {
	ch := a.bus.Subscribe()
	defer a.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			a.logger.Debug("event",
				zap.String("type", string(e.Type)),
				zap.Any("data", e.Data),
				zap.Duration("duration", e.Duration))
		}
	}
}

func (a *app) Close() error {
	a.cancel()
	return errors.Join(a.session.Close(), a.consent.Close())
}
