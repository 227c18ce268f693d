package intent

import "encoding/json"

// Schema returns the JSON Schema document that structured generation must
// satisfy: an object with an enumerated "intent", a string "target" and an
// "options" object.
func Schema() []byte {
	names := make([]string, len(allTypes))
	for i, t := range allTypes {
		names[i] = string(t)
	}

	doc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"intent":  map[string]any{"type": "string", "enum": names},
			"target":  map[string]any{"type": "string"},
			"options": map[string]any{"type": "object"},
		},
		"required": []string{"intent", "target", "options"},
	}

	data, _ := json.Marshal(doc)
	return data
}
