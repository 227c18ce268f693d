package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractObject pulls a JSON object out of model output. Models often wrap
// the object in a ```json fence or surround it with prose.
func ExtractObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	if start := strings.Index(text, "```json"); start >= 0 {
		body := text[start+len("```json"):]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		text = strings.TrimSpace(body)
	} else if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("%w: parse json: %v", ErrInvalidOutput, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidOutput)
	}
	return obj, nil
}
