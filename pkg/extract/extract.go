// Package extract turns an utterance into an intent. It first asks a
// generation backend for an object matching the intent schema, falls back
// to an ordered table of patterns, and finally asks the operator to clarify.
// Extraction never fails: every input yields an intent.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/llm"
)

// Stage names the step that produced an intent.
type Stage string

const (
	StageStructured Stage = "structured"
	StagePattern    Stage = "pattern"
	StageClarify    Stage = "clarify"
)

// DefaultTimeout bounds each generation request made during extraction.
const DefaultTimeout = 30 * time.Second

// Extraction is an intent plus how it was obtained.
type Extraction struct {
	Intent     intent.Intent `json:"intent"`
	Stage      Stage         `json:"stage"`
	Language   string        `json:"language"`
	Translated string        `json:"translated,omitempty"`
}

// Extractor classifies utterances.
type Extractor struct {
	gen     llm.Generator
	schema  *llm.Schema
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTimeout bounds each generation request.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an Extractor. A nil generator disables Stage A and
// translation.
func New(gen llm.Generator, opts ...Option) *Extractor {
	if gen == nil {
		gen = llm.Disabled{}
	}
	e := &Extractor{
		gen:     gen,
		schema:  llm.MustCompileSchema("intent", intent.Schema()),
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the intent for text.
func (e *Extractor) Extract(ctx context.Context, text string) intent.Intent {
	return e.Analyze(ctx, text).Intent
}

// Analyze is Extract with the stage and language reported.
func (e *Extractor) Analyze(ctx context.Context, text string) Extraction {
	if strings.TrimSpace(text) == "" {
		in := intent.New(intent.AskForClarification, "")
		in.Options[intent.OptMessage] = "I didn't catch that. Please say or type a command."
		in.Options[intent.OptLanguage] = DefaultLanguage
		in.Options[intent.OptOriginalText] = text
		return Extraction{Intent: in, Stage: StageClarify, Language: DefaultLanguage}
	}

	lang := DetectLanguage(text)
	working := text
	if lang != DefaultLanguage {
		working = e.Translate(ctx, text, lang)
	}

	out := Extraction{Language: lang}
	if working != text {
		out.Translated = working
	}

	if in, ok := e.structured(ctx, working); ok {
		out.Intent, out.Stage = in, StageStructured
	} else if in, ok := matchPattern(working); ok {
		e.logger.Debug("intent from pattern table", zap.String("intent", string(in.Type)))
		out.Intent, out.Stage = in, StagePattern
	} else {
		in := intent.New(intent.AskForClarification, "")
		in.Options[intent.OptMessage] = fmt.Sprintf("I'm not sure what you want me to do with: '%s'", text)
		out.Intent, out.Stage = in, StageClarify
	}

	out.Intent.Options[intent.OptLanguage] = lang
	out.Intent.Options[intent.OptOriginalText] = text
	e.logger.Info("intent extracted",
		zap.String("intent", string(out.Intent.Type)),
		zap.String("target", out.Intent.Target),
		zap.String("stage", string(out.Stage)),
		zap.String("language", lang))
	return out
}

// Translate asks the generator for an English rendering of text. Any
// failure returns text unchanged.
func (e *Extractor) Translate(ctx context.Context, text, lang string) string {
	if lang == DefaultLanguage {
		return text
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if !e.gen.Available(ctx) {
		return text
	}
	translated, err := e.gen.Generate(ctx, translationPrompt(text, lang))
	if err != nil {
		e.logger.Warn("translation failed, using original text", zap.String("language", lang), zap.Error(err))
		return text
	}
	translated = strings.Trim(strings.TrimSpace(translated), `"`)
	if translated == "" {
		return text
	}
	return translated
}

// structured is Stage A. ok is false when the generator is unavailable,
// times out, errors, or returns an object that is not a valid intent.
func (e *Extractor) structured(ctx context.Context, text string) (intent.Intent, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if !e.gen.Available(ctx) {
		return intent.Intent{}, false
	}
	obj, err := e.gen.GenerateStructured(ctx, structuredPrompt(text), e.schema)
	if err != nil {
		e.logger.Warn("structured extraction failed, falling back to patterns", zap.Error(err))
		return intent.Intent{}, false
	}

	in, err := intent.Decode(obj)
	if err != nil {
		e.logger.Warn("structured extraction returned an invalid intent", zap.Error(err))
		return intent.Intent{}, false
	}
	if !in.Type.Valid() {
		e.logger.Warn("structured extraction returned an unknown intent type", zap.String("intent", string(in.Type)))
		return intent.Intent{}, false
	}
	return in, true
}
