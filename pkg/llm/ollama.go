package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultOllamaEndpoint = "http://localhost:11434"
	DefaultOllamaModel    = "gemma3:12b"
)

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	endpoint string
	model    string
	options
}

// NewOllamaClient creates a client. Empty endpoint or model fall back to the
// local defaults.
func NewOllamaClient(endpoint, model string, opts ...Option) *OllamaClient {
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	c := &OllamaClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		options:  defaultOptions(),
	}
	for _, opt := range opts {
		opt(&c.options)
	}
	return c
}

type ollamaGenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options map[string]any  `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Available checks the server's model listing endpoint.
func (c *OllamaClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("ollama not reachable", zap.String("endpoint", c.endpoint), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Generate returns free-form text for prompt.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
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
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return text, nil
}

// GenerateStructured asks the server to constrain output to schema and
// validates the result before returning it.
func (c *OllamaClient) GenerateStructured(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	full := structuredPrompt(prompt, schema)

	var obj map[string]any
	err := retry(ctx, c.maxRetries, c.backoff, c.logger, "generate_structured", func(ctx context.Context) error {
		text, err := c.generate(ctx, full, schema.Raw())
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
		return nil, fmt.Errorf("ollama structured generate: %w", err)
	}
	return obj, nil
}

func (c *OllamaClient) generate(ctx context.Context, prompt string, format json.RawMessage) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Format: format,
		Options: map[string]any{
			"temperature": 0.2,
			"top_p":       0.9,
			"num_predict": 1024,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Response), nil
}
