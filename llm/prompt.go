package llm

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/extrato-ai/extrato/schema"
)

// DefaultMaxPromptTokens caps the assembled prompt; the document text is
// truncated to fit. Field values on Brazilian documents sit near the
// top of the first page, so truncating the tail is cheap.
const DefaultMaxPromptTokens = 8000

const promptEncoding = "cl100k_base"

// BuildPrompt assembles the extraction prompt: a minimalist instruction
// in Portuguese, the field list with descriptions, a compact JSON
// template, and the document text.
func BuildPrompt(label string, sch schema.Schema, documentText string) string {
	var fields strings.Builder
	for _, f := range sch {
		fmt.Fprintf(&fields, "%q: %s\n", f.Name, f.Description)
	}

	return fmt.Sprintf(`Extraia em JSON do documento %q:

%s
Use null se ausente. Retorne só JSON:
%s

DOCUMENTO:
%s`, label, fields.String(), jsonTemplate(sch), documentText)
}

// jsonTemplate renders a compact single-line template so the model
// mirrors the exact key set.
func jsonTemplate(sch schema.Schema) string {
	parts := make([]string, 0, len(sch))
	for _, f := range sch {
		parts = append(parts, fmt.Sprintf("%q: \"...\"", f.Name))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// TruncateToTokenBudget cuts text so the whole prompt stays under the
// token budget. Falls back to a byte-based estimate when the encoding
// is unavailable.
func TruncateToTokenBudget(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	enc, err := tiktoken.GetEncoding(promptEncoding)
	if err != nil {
		// Rough estimate: four bytes per token.
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		return text[:limit]
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
