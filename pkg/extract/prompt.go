package extract

import (
	"fmt"
	"strings"

	"github.com/cgast/agdesk/pkg/intent"
)

func translationPrompt(text, lang string) string {
	return fmt.Sprintf(`Translate the following %s text to English.
Provide only the English translation, no explanations:

%s
`, lang, text)
}

func structuredPrompt(text string) string {
	var b strings.Builder
	b.WriteString("You convert natural language commands into structured JSON intents for a desktop automation system.\n\n")
	fmt.Fprintf(&b, "Convert this command into a JSON intent object:\n%q\n\n", text)
	b.WriteString("Available intents:\n")
	for _, t := range intent.Types() {
		fmt.Fprintf(&b, "- %s: %s\n", t, intent.HelpText(t))
	}
	b.WriteString(`
Examples:
"open chrome" -> {"intent": "open_app", "target": "chrome", "options": {"dry_run": true}}
"what time is it" -> {"intent": "get_time", "target": "", "options": {"dry_run": true}}
"list files in documents" -> {"intent": "list_files", "target": "documents", "options": {"dry_run": true}}
"click at 100, 200" -> {"intent": "click_at", "target": "", "options": {"x": 100, "y": 200, "dry_run": true}}

Respond with ONLY the JSON object.
`)
	return b.String()
}
