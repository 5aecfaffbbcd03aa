package llm

import "strings"

// extractJSON pulls the JSON object out of a model reply, tolerating
// markdown code fences and surrounding prose.
func extractJSON(text string) string {
	if start := strings.Index(text, "```json"); start != -1 {
		rest := text[start+7:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if start := strings.Index(text, "```"); start != -1 {
		rest := text[start+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return ""
}
