package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates text through the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	options
}

// NewGeminiClient creates a client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...Option) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{client: client, model: model, options: o}, nil
}

// Available reports whether a client was constructed. The API has no cheap
// health probe, so request failures surface from Generate instead.
func (c *GeminiClient) Available(context.Context) bool {
	return c != nil && c.client != nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := retry(ctx, c.maxRetries, c.backoff, c.logger, "generate", func(ctx context.Context) error {
		out, err := c.generate(ctx, prompt, nil)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return text, nil
}

func (c *GeminiClient) GenerateStructured(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	full := structuredPrompt(prompt, schema)
	cfg := structuredConfig(schema)

	var obj map[string]any
	err := retry(ctx, c.maxRetries, c.backoff, c.logger, "generate_structured", func(ctx context.Context) error {
		text, err := c.generate(ctx, full, cfg)
		if err != nil {
			return err
		}
		parsed, err := ExtractObject(text)
		if err != nil {
			return err
		}
		if err := schema.Validate(parsed); err != nil {
			return err
		}
		obj = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini structured generate: %w", err)
	}
	return obj, nil
}

// structuredConfig asks for JSON constrained by the schema document.
func structuredConfig(schema *Schema) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema.Raw(),
	}
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
