package template

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/extrato-ai/extrato/schema"
)

// Learning parameters.
const (
	// ConfidenceAlpha is the EMA weight of the newest Bernoulli trial.
	ConfidenceAlpha = 0.3
	// SeedConfidence is a freshly learned field's confidence.
	SeedConfidence = 1.0
	// ForkThreshold: a sample whose structural signature differs from the
	// template's by more than this Jaccard distance starts a sibling
	// template instead of updating in place.
	ForkThreshold = 0.30
	// MaxRegexMatches: an induced regex is only recorded (and later only
	// applied) when it matches at most this many substrings document-wide.
	MaxRegexMatches = 3
	// maxAnchorLen bounds anchor text length in tokens.
	maxAnchorLen = 6
)

// commonPrintedLabels are texts that are labels, not values. The learner
// refuses to record a positional pattern pointing at one of them.
var commonPrintedLabels = map[string]struct{}{
	"nome": {}, "inscrição": {}, "inscricao": {}, "seccional": {},
	"subseção": {}, "subsecao": {}, "categoria": {}, "endereço": {},
	"endereco": {}, "telefone": {}, "situação": {}, "situacao": {},
	"data": {}, "sistema": {}, "produto": {}, "valor": {},
	"quantidade": {}, "tipo": {}, "cidade": {}, "referência": {},
	"referencia": {}, "cpf": {}, "cnpj": {}, "cep": {}, "total": {},
}

// Learner induces and refines field patterns from full-LLM extraction
// results. Writes for a label are serialised by the store's per-label
// lock, which the learner acquires itself.
type Learner struct {
	store  *Store
	logger *slog.Logger
}

// NewLearner creates a Learner backed by the given store.
func NewLearner(store *Store, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{store: store, logger: logger}
}

// Learn feeds one LLM extraction into the label's template set: it updates
// the closest template, or creates one (first sample, or structural drift
// beyond ForkThreshold). Returns the resulting template.
func (l *Learner) Learn(ctx context.Context, label string, doc *schema.ParsedDocument, sch schema.Schema, data map[string]any) (*Template, error) {
	unlock := l.store.LockLabel(label)
	defer unlock()

	sig := buildSignature(sch.Keys(), doc)
	candidates, err := l.store.List(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("template: list for learning: %w", err)
	}

	target, similarity := closestBySignature(sig, candidates)
	if target == nil || 1-similarity > ForkThreshold {
		tmpl := l.newTemplate(label, sig, doc, sch, data)
		if err := l.store.Upsert(ctx, tmpl); err != nil {
			return nil, err
		}
		l.logger.Info("learned new template",
			"label", label, "template_id", tmpl.TemplateID, "fields", len(tmpl.FieldPatterns))
		return tmpl, nil
	}

	tmpl := target.Clone()
	l.refine(tmpl, doc, sch, data)
	if err := l.store.Upsert(ctx, tmpl); err != nil {
		return nil, err
	}
	l.logger.Info("refined template",
		"label", label, "template_id", tmpl.TemplateID, "sample_count", tmpl.SampleCount)
	return tmpl, nil
}

func (l *Learner) newTemplate(label string, sig []string, doc *schema.ParsedDocument, sch schema.Schema, data map[string]any) *Template {
	now := time.Now().UTC()
	tmpl := &Template{
		Label:           label,
		TemplateID:      uuid.New().String(),
		SampleCount:     1,
		Signature:       sig,
		TrainingText:    doc.Text(),
		CoordSpace:      doc.CoordSpace,
		FieldPatterns:   make(map[string]FieldPattern),
		FieldConfidence: make(map[string]float64),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	lines := doc.Lines()
	for _, f := range sch {
		val := schema.ValueString(data[f.Name])
		if val == "" {
			continue
		}
		if p := learnFieldPattern(doc, lines, val); !p.Empty() {
			tmpl.FieldPatterns[f.Name] = p
			tmpl.FieldConfidence[f.Name] = SeedConfidence
		}
	}
	return tmpl
}

// refine replays each learned pattern against the new sample and treats
// the outcome as a Bernoulli trial for the field's confidence. A failed
// replay relearns the pattern from the new sample.
func (l *Learner) refine(tmpl *Template, doc *schema.ParsedDocument, sch schema.Schema, data map[string]any) {
	lines := doc.Lines()
	for _, f := range sch {
		val := schema.ValueString(data[f.Name])
		if val == "" {
			continue
		}

		existing, ok := tmpl.FieldPatterns[f.Name]
		if !ok || existing.Empty() {
			if p := learnFieldPattern(doc, lines, val); !p.Empty() {
				tmpl.FieldPatterns[f.Name] = p
				tmpl.FieldConfidence[f.Name] = SeedConfidence
			}
			continue
		}

		got := applyPattern(doc, lines, existing)
		outcome := 0.0
		if sameValue(got, val) {
			outcome = 1.0
		}
		tmpl.FieldConfidence[f.Name] = ConfidenceAlpha*outcome + (1-ConfidenceAlpha)*tmpl.FieldConfidence[f.Name]

		if outcome == 0 {
			if p := learnFieldPattern(doc, lines, val); !p.Empty() {
				tmpl.FieldPatterns[f.Name] = p
			}
		}
	}
	tmpl.SampleCount++
	tmpl.UpdatedAt = time.Now().UTC()
}

// buildSignature is the unordered set of schema keys plus the document's
// anchor tokens, sorted for stable storage.
func buildSignature(keys []string, doc *schema.ParsedDocument) []string {
	set := anchorTokens(doc)
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	sig := make([]string, 0, len(set))
	for s := range set {
		sig = append(sig, s)
	}
	sort.Strings(sig)
	return sig
}

func closestBySignature(sig []string, candidates []*Template) (*Template, float64) {
	sigSet := toSet(sig)
	var (
		best    *Template
		bestSim float64
	)
	for _, c := range candidates {
		if sim := jaccard(sigSet, c.SignatureSet()); best == nil || sim > bestSim {
			best, bestSim = c, sim
		}
	}
	return best, bestSim
}

// learnFieldPattern induces the pattern disjunction for one field value:
// a positional pattern from the smallest element containing the value, a
// contextual pattern from a nearby short anchor, and a shape regex.
func learnFieldPattern(doc *schema.ParsedDocument, lines []schema.Line, val string) FieldPattern {
	var p FieldPattern

	if elem, ok := smallestContaining(doc, val); ok {
		p.Position = &PositionPattern{
			Page: elem.Page,
			X:    elem.X0,
			Y:    elem.Y0,
			W:    elem.Width(),
			H:    elem.Height(),
		}
		if anchor, dir, ok := findAnchor(lines, elem); ok {
			p.Context = &ContextPattern{Anchor: anchor, Direction: dir}
		}
	}

	if expr, ok := induceRegex(val); ok {
		re, err := regexp.Compile(expr)
		if err == nil {
			if n := len(re.FindAllString(doc.Text(), MaxRegexMatches+1)); n >= 1 && n <= MaxRegexMatches {
				p.Regex = &RegexPattern{Expr: expr}
			}
		}
	}
	return p
}

// smallestContaining finds the smallest-area element whose text contains
// the value, skipping elements that are themselves printed labels.
func smallestContaining(doc *schema.ParsedDocument, val string) (schema.Element, bool) {
	var (
		best  schema.Element
		found bool
	)
	for _, e := range doc.Elements {
		if !containsValue(e.Text, val) || isPrintedLabel(e.Text, val) {
			continue
		}
		if !found || e.Area() < best.Area() {
			best, found = e, true
		}
	}
	return best, found
}

// findAnchor looks for a short label next to the value element: the
// element immediately to its left on the same line, or the nearest element
// on the line above.
func findAnchor(lines []schema.Line, elem schema.Element) (string, Direction, bool) {
	for li, line := range lines {
		for ei, e := range line.Elements {
			if e != elem {
				continue
			}
			if ei > 0 {
				if a := anchorText(line.Elements[ei-1].Text); a != "" {
					return a, DirRight, true
				}
			}
			if li > 0 && lines[li-1].Page == line.Page {
				above := nearestByX(lines[li-1].Elements, elem.CenterX())
				if a := anchorText(above.Text); a != "" {
					return a, DirBelow, true
				}
			}
			return "", "", false
		}
	}
	return "", "", false
}

func nearestByX(elements []schema.Element, x float64) schema.Element {
	best := elements[0]
	bestDist := absf(best.CenterX() - x)
	for _, e := range elements[1:] {
		if d := absf(e.CenterX() - x); d < bestDist {
			best, bestDist = e, d
		}
	}
	return best
}

// anchorText validates a candidate anchor: short, non-empty after
// trimming. Returns "" when unusable.
func anchorText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || len(tokenize(s)) > maxAnchorLen {
		return ""
	}
	return s
}

// induceRegex derives a shape regex from the value's character classes,
// e.g. "123.456.789-00" → `\d{3}\.\d{3}\.\d{3}\-\d{2}`.
func induceRegex(val string) (string, bool) {
	runes := []rune(val)
	if len(runes) == 0 || len(runes) > 64 {
		return "", false
	}

	var (
		b         strings.Builder
		cls       string
		runLen    int
		hasDigits bool
	)
	flush := func() {
		if runLen == 0 {
			return
		}
		b.WriteString(cls)
		if runLen > 1 {
			fmt.Fprintf(&b, "{%d}", runLen)
		}
		runLen = 0
	}
	for _, r := range runes {
		var c string
		switch {
		case r >= '0' && r <= '9':
			c = `\d`
			hasDigits = true
		case isLetter(r):
			c = `\pL`
		case r == ' ' || r == '\t':
			c = `\s`
		default:
			c = regexp.QuoteMeta(string(r))
		}
		if c != cls {
			flush()
			cls = c
		}
		runLen++
	}
	flush()

	// Pure-letter shapes (names, free text) are too generic to be safe.
	if !hasDigits {
		return "", false
	}
	return b.String(), true
}

func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= 0x00C0 && r <= 0x024F
}

func isPrintedLabel(text, val string) bool {
	t := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(text)), ":")
	if t == strings.ToLower(strings.TrimSpace(val)) {
		// The value itself coincides with a label word; accept it.
		return false
	}
	_, ok := commonPrintedLabels[t]
	return ok
}

func containsValue(text, val string) bool {
	return strings.Contains(collapse(strings.ToLower(text)), collapse(strings.ToLower(val)))
}

func sameValue(a, b string) bool {
	return strings.EqualFold(collapse(a), collapse(b))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
