// Package router executes intents. Each call passes through validation, the
// capability gate, the dry-run override and dispatch to a fixed handler
// table, stopping at the first stage that fails. Every call returns a
// Result; handler errors and panics never reach the caller.
package router

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/pkg/intent"
)

// Router dispatches intents to handlers.
type Router struct {
	caps   CapabilityChecker
	table  *Table
	dryRun atomic.Bool
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithDryRun sets the initial mode. The default is dry run.
func WithDryRun(on bool) Option {
	return func(r *Router) { r.dryRun.Store(on) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a router over a snapshot of table.
func New(caps CapabilityChecker, table *Table, opts ...Option) *Router {
	if table == nil {
		table = NewTable()
	}
	r := &Router{
		caps:   caps,
		table:  table.clone(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	r.dryRun.Store(true)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDryRun switches the global mode.
func (r *Router) SetDryRun(on bool) {
	r.dryRun.Store(on)
	r.logger.Info("dry run mode changed", zap.Bool("dry_run", on))
}

// DryRun reports the global mode.
func (r *Router) DryRun() bool { return r.dryRun.Load() }

// Handles reports whether a handler is bound for t.
func (r *Router) Handles(t intent.Type) bool {
	_, ok := r.table.Resolve(t)
	return ok
}

// ExecuteMap decodes a generic object and executes it. Decoding failures are
// validation failures.
func (r *Router) ExecuteMap(ctx context.Context, m map[string]any) Result {
	start := r.now()
	in, err := intent.Decode(m)
	if err != nil {
		typ, _ := m["intent"].(string)
		return r.wrap(start, intent.Type(typ), r.DryRun(), validationFailure(err))
	}
	return r.Execute(ctx, in)
}

// Execute runs one intent.
func (r *Router) Execute(ctx context.Context, in intent.Intent) Result {
	start := r.now()
	dryRun := r.DryRun()
	return r.wrap(start, in.Type, dryRun, r.execute(ctx, in, dryRun))
}

func (r *Router) execute(ctx context.Context, in intent.Intent, dryRun bool) Outcome {
	if err := in.Validate(); err != nil {
		r.logger.Warn("rejected invalid intent", zap.Error(err))
		return validationFailure(err)
	}

	if name, required := RequiredCapability(in.Type); required {
		if r.caps == nil || !r.caps.IsEnabled(name) {
			r.logger.Info("capability gate closed",
				zap.String("intent", string(in.Type)),
				zap.String("capability", string(name)))
			return Fail(KindCapabilityDenied,
				fmt.Sprintf("Capability '%s' is not enabled. Enable it to use %s.", name, in.Type))
		}
	}

	in.Options = in.Options.Clone()
	in.Options[intent.OptDryRun] = dryRun

	h, ok := r.table.Resolve(in.Type)
	if !ok {
		return Fail(KindUnknownIntent, fmt.Sprintf("Unknown intent: %s", in.Type))
	}

	out, err := r.invoke(ctx, h, in)
	if err != nil {
		r.logger.Error("handler failed", zap.String("intent", string(in.Type)), zap.Error(err))
		return Fail(KindHandlerError, fmt.Sprintf("Error executing %s: %v", in.Type, err))
	}
	if !out.Success && out.Kind == "" {
		out.Kind = KindHandlerError
	}
	return out
}

func (r *Router) invoke(ctx context.Context, h Handler, in intent.Intent) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.Handle(ctx, in)
}

func (r *Router) wrap(start time.Time, typ intent.Type, dryRun bool, out Outcome) Result {
	res := Result{
		Success:    out.Success,
		Message:    out.Message,
		Data:       out.Data,
		IntentType: typ,
		DryRun:     dryRun,
		Timestamp:  r.now(),
	}
	res.ExecutionTime = res.Timestamp.Sub(start)
	if !out.Success {
		res.Error = out.Message
		res.ErrorKind = out.Kind
	}
	r.logger.Debug("intent executed",
		zap.String("intent", string(typ)),
		zap.Bool("success", res.Success),
		zap.Bool("dry_run", dryRun),
		zap.Duration("elapsed", res.ExecutionTime))
	return res
}

func validationFailure(err error) Outcome {
	return Fail(KindValidation, fmt.Sprintf("Invalid intent: %v", err))
}
