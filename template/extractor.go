package template

import (
	"regexp"
	"strings"

	"github.com/extrato-ai/extrato/schema"
)

// positionTolerance widens a learned bounding region by this fraction of
// its size on each side before testing candidate centres.
const positionTolerance = 0.10

// ValueValidator normalises or rejects an extracted raw value. The
// concrete implementation lives in the validator package; the extractor
// only needs this one operation.
type ValueValidator interface {
	// Validate returns the normalised value and true, or "" and false when
	// the value does not fit the field's expected shape.
	Validate(fieldName, value, description string) (string, bool)
}

// Extraction is the field extractor's output.
type Extraction struct {
	// Data maps every schema key to its value, nil when not extracted.
	Data map[string]any
	// Filled is the set of field names with non-null values.
	Filled map[string]struct{}
}

// FieldExtractor applies a template's learned patterns to a parsed
// document. For each field the pattern disjunction is tried in order
// (positional, contextual, regex) and the first non-empty, validated
// result wins.
type FieldExtractor struct {
	validator ValueValidator
}

// NewFieldExtractor creates a FieldExtractor. A nil validator accepts any
// non-blank value unchanged.
func NewFieldExtractor(v ValueValidator) *FieldExtractor {
	return &FieldExtractor{validator: v}
}

// Extract fills the schema's fields from the document using the template's
// patterns. Data always carries exactly the schema's keys.
func (x *FieldExtractor) Extract(doc *schema.ParsedDocument, tmpl *Template, sch schema.Schema) Extraction {
	lines := doc.Lines()
	out := Extraction{
		Data:   make(map[string]any, len(sch)),
		Filled: make(map[string]struct{}),
	}
	for _, f := range sch {
		out.Data[f.Name] = nil
		pattern, ok := tmpl.FieldPatterns[f.Name]
		if !ok || pattern.Empty() {
			continue
		}
		raw := applyPattern(doc, lines, pattern)
		if raw == "" {
			continue
		}
		value, ok := x.validate(f.Name, raw, f.Description)
		if !ok {
			continue
		}
		out.Data[f.Name] = value
		out.Filled[f.Name] = struct{}{}
	}
	return out
}

func (x *FieldExtractor) validate(name, raw, description string) (string, bool) {
	if x.validator == nil {
		v := strings.TrimSpace(raw)
		return v, v != ""
	}
	return x.validator.Validate(name, raw, description)
}

// applyPattern runs the disjunction and returns the first raw candidate,
// "" when every extractor came up empty.
func applyPattern(doc *schema.ParsedDocument, lines []schema.Line, p FieldPattern) string {
	if p.Position != nil {
		if v := extractByPosition(doc, p); v != "" {
			return v
		}
	}
	if p.Context != nil {
		if v := extractByContext(lines, p.Context); v != "" {
			return v
		}
	}
	if p.Regex != nil {
		if v := extractByRegex(doc, p.Regex); v != "" {
			return v
		}
	}
	return ""
}

// extractByPosition accepts the element whose centre falls inside the
// learned region extended by positionTolerance on each side; ties go to
// the smallest area.
func extractByPosition(doc *schema.ParsedDocument, p FieldPattern) string {
	pos := p.Position
	dx, dy := pos.W*positionTolerance, pos.H*positionTolerance
	x0, y0 := pos.X-dx, pos.Y-dy
	x1, y1 := pos.X+pos.W+dx, pos.Y+pos.H+dy

	var (
		best  schema.Element
		found bool
	)
	for _, e := range doc.Elements {
		if e.Page != pos.Page {
			continue
		}
		cx, cy := e.CenterX(), e.CenterY()
		if cx < x0 || cx > x1 || cy < y0 || cy > y1 {
			continue
		}
		if !found || e.Area() < best.Area() {
			best, found = e, true
		}
	}
	if !found {
		return ""
	}
	return stripAnchorPrefix(best.Text, p.Context)
}

// extractByContext finds the anchor and takes the nearest element in the
// recorded direction, on the same or adjacent line.
func extractByContext(lines []schema.Line, c *ContextPattern) string {
	anchor := collapse(strings.ToLower(c.Anchor))
	for li, line := range lines {
		for ei, e := range line.Elements {
			if !strings.Contains(collapse(strings.ToLower(e.Text)), anchor) {
				continue
			}
			switch c.Direction {
			case DirRight:
				if ei+1 < len(line.Elements) {
					return strings.TrimSpace(line.Elements[ei+1].Text)
				}
				// The anchor and value may share one element ("CPF: 123...").
				if v := afterAnchor(e.Text, c.Anchor); v != "" {
					return v
				}
			case DirBelow:
				if li+1 < len(lines) && lines[li+1].Page == line.Page {
					below := nearestByX(lines[li+1].Elements, e.CenterX())
					return strings.TrimSpace(below.Text)
				}
			case DirSameLine:
				if v := nearestOnLine(line, ei); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func nearestOnLine(line schema.Line, anchorIdx int) string {
	switch {
	case anchorIdx+1 < len(line.Elements):
		return strings.TrimSpace(line.Elements[anchorIdx+1].Text)
	case anchorIdx > 0:
		return strings.TrimSpace(line.Elements[anchorIdx-1].Text)
	}
	return ""
}

// extractByRegex applies the shape regex to the whole document text; the
// match is only trusted when it is close to unique (≤ MaxRegexMatches).
func extractByRegex(doc *schema.ParsedDocument, r *RegexPattern) string {
	re, err := regexp.Compile(r.Expr)
	if err != nil {
		return ""
	}
	matches := re.FindAllString(doc.Text(), MaxRegexMatches+1)
	if len(matches) == 0 || len(matches) > MaxRegexMatches {
		return ""
	}
	return strings.TrimSpace(matches[0])
}

// stripAnchorPrefix removes a leading printed label from a positional
// candidate, e.g. "Nome: João Silva" → "João Silva".
func stripAnchorPrefix(text string, c *ContextPattern) string {
	text = strings.TrimSpace(text)
	if c == nil {
		return text
	}
	lower := strings.ToLower(text)
	anchor := strings.ToLower(strings.TrimSpace(c.Anchor))
	if anchor != "" && strings.HasPrefix(lower, anchor) {
		return strings.TrimSpace(strings.TrimPrefix(text[len(anchor):], ":"))
	}
	return text
}

func afterAnchor(text, anchor string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(anchor))
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(anchor):]
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), ":"))
}
