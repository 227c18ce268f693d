// Package llm provides the text generation collaborators used for intent
// extraction and translation. All providers honor the same contract:
// failures surface as errors, and structured output that does not satisfy
// the requested schema is reported as ErrInvalidOutput rather than returned.
package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnavailable   = errors.New("llm: generator unavailable")
	ErrInvalidOutput = errors.New("llm: output does not satisfy schema")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Generator is a text generation backend.
type Generator interface {
	// Available reports whether the backend can currently serve requests.
	Available(ctx context.Context) bool
	// Generate returns free-form text for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStructured returns an object that validates against schema.
	GenerateStructured(ctx context.Context, prompt string, schema *Schema) (map[string]any, error)
}

// Disabled is a Generator that is never available.
type Disabled struct{}

func (Disabled) Available(context.Context) bool { return false }

func (Disabled) Generate(context.Context, string) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) GenerateStructured(context.Context, string, *Schema) (map[string]any, error) {
	return nil, ErrUnavailable
}

type options struct {
	httpClient *http.Client
	maxRetries int
	backoff    Backoff
	logger     *zap.Logger
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		backoff:    ExponentialBackoff,
		logger:     zap.NewNop(),
	}
}

// Option configures a client.
type Option func(*options)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithMaxRetries sets the attempt ceiling. Values below 1 mean one attempt.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.maxRetries = n
	}
}

// WithBackoff sets the delay between attempts.
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// structuredPrompt appends the schema and a JSON-only instruction to a prompt.
func structuredPrompt(prompt string, schema *Schema) string {
	return prompt + "\n\nPlease respond with a valid JSON object that follows this schema:\n" +
		string(schema.Raw()) +
		"\n\nYour response should be ONLY the JSON object, no additional text or explanations.\n"
}
