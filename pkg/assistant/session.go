// Package assistant ties the pipeline together: one utterance is extracted
// into an intent, executed by the router and recorded in the audit log.
// Every step is published on the event bus.
package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cgast/agdesk/pkg/events"
	"github.com/cgast/agdesk/pkg/extract"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

// Extractor turns text into an intent. *extract.Extractor satisfies it.
type Extractor interface {
	Analyze(ctx context.Context, text string) extract.Extraction
}

// Executor runs an intent. *router.Router satisfies it.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent) router.Result
}

// Recorder persists interactions. *audit.Log satisfies it.
type Recorder interface {
	LogInteraction(userInput string, in intent.Intent, result map[string]any) error
	LogError(msg string, ctx map[string]any) error
}

// Turn is the outcome of one utterance.
type Turn struct {
	Input      string             `json:"input"`
	Extraction extract.Extraction `json:"extraction"`
	Result     router.Result      `json:"result"`
}

// Exit reports whether the operator asked to leave.
func (t Turn) Exit() bool {
	return t.Extraction.Intent.Type == intent.Exit && t.Result.Success
}

// Session processes utterances for one operator.
type Session struct {
	id        string
	extractor Extractor
	executor  Executor
	recorder  Recorder
	bus       events.EventBus
	logger    *zap.Logger
	started   time.Time
	closeOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithRecorder sets where interactions are recorded.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithBus sets the event bus.
func WithBus(b events.EventBus) Option {
	return func(s *Session) { s.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New starts a session.
func New(ex Extractor, exec Executor, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		extractor: ex,
		executor:  exec,
		logger:    zap.NewNop(),
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	s.publish(events.EventSessionStart, map[string]any{"started": s.started})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Process extracts, executes and records one utterance. It always returns a
// turn; failures are reported in the result.
func (s *Session) Process(ctx context.Context, text string) Turn {
	ext := s.extractor.Analyze(ctx, text)
	s.publish(events.EventIntentExtracted, map[string]any{
		"input":    text,
		"intent":   ext.Intent,
		"stage":    string(ext.Stage),
		"language": ext.Language,
	})

	res := s.run(ctx, text, ext.Intent)
	return Turn{Input: text, Extraction: ext, Result: res}
}

// Execute runs an intent that was built elsewhere, recording it under
// input.
func (s *Session) Execute(ctx context.Context, input string, in intent.Intent) router.Result {
	return s.run(ctx, input, in)
}

func (s *Session) run(ctx context.Context, input string, in intent.Intent) router.Result {
	res := s.executor.Execute(ctx, in)
	wire := res.Map()

	if res.Success {
		s.publishTimed(events.EventIntentExecuted, wire, res.ExecutionTime)
	} else {
		s.publishTimed(events.EventIntentFailed, wire, res.ExecutionTime)
	}
	s.logger.Info("intent processed",
		zap.String("intent", string(in.Type)),
		zap.Bool("success", res.Success),
		zap.Bool("dry_run", res.DryRun),
		zap.Duration("elapsed", res.ExecutionTime))

	if s.recorder == nil {
		return res
	}
	if err := s.recorder.LogInteraction(input, in, wire); err != nil {
		s.logger.Warn("interaction not recorded", zap.Error(err))
	}
	if !res.Success && res.ErrorKind == router.KindHandlerError {
		if err := s.recorder.LogError(res.Error, map[string]any{
			"input":   input,
			"intent":  string(in.Type),
			"target":  in.Target,
			"session": s.id,
		}); err != nil {
			s.logger.Warn("error not recorded", zap.Error(err))
		}
	}
	return res
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.publishTimed(events.EventSessionEnd, map[string]any{"started": s.started}, time.Since(s.started))
	})
	return nil
}

func (s *Session) publish(typ events.EventType, data any) {
	s.publishTimed(typ, data, 0)
}

func (s *Session) publishTimed(typ events.EventType, data any, d time.Duration) {
	if s.bus == nil {
		return
	}
	ev := events.NewEvent(typ, data)
	ev.SessionID = s.id
	ev.Duration = d
	s.bus.Publish(ev)
}
