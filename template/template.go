// Package template implements the self-learning side of the engine:
// per-label templates persisted durably, a similarity matcher that decides
// when a template may be applied, a pattern learner fed by LLM outputs, and
// a field extractor that applies learned patterns to parsed documents.
package template

import (
	"time"
)

// Direction relates a value's position to its anchor text.
type Direction string

const (
	// DirRight: the value sits to the right of the anchor on the same line.
	DirRight Direction = "right"
	// DirBelow: the value sits on the line below the anchor.
	DirBelow Direction = "below"
	// DirSameLine: the value shares the anchor's line, either side.
	DirSameLine Direction = "same-line"
)

// PositionPattern locates a field by a bounding region on a page. The
// region is stored in the parser's coordinate space, never re-normalised.
type PositionPattern struct {
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

// ContextPattern locates a field relative to a printed anchor such as
// "CPF:" or "Nome:".
type ContextPattern struct {
	Anchor    string    `json:"anchor"`
	Direction Direction `json:"direction"`
}

// RegexPattern locates a field by the shape of its value. It is only
// applied when it matches at most MaxRegexMatches substrings document-wide.
type RegexPattern struct {
	Expr string `json:"expr"`
}

// FieldPattern is the per-field disjunction of extractors, tried in order:
// positional, then contextual, then regex. Absent slots are skipped.
type FieldPattern struct {
	Position *PositionPattern `json:"position,omitempty"`
	Context  *ContextPattern  `json:"context,omitempty"`
	Regex    *RegexPattern    `json:"regex,omitempty"`
}

// Empty reports whether no extractor was learned for the field.
func (p FieldPattern) Empty() bool {
	return p.Position == nil && p.Context == nil && p.Regex == nil
}

// Template is a per-label collection of learned field patterns. A label
// may own several templates (layout variants); templates are updated in
// place while the structural signature keeps matching and forked into a
// sibling when it drifts too far.
type Template struct {
	Label      string `json:"label"`
	TemplateID string `json:"template_id"`

	// SampleCount is the number of LLM extractions that fed this template.
	// A template is only consulted once SampleCount reaches the configured
	// minimum.
	SampleCount int `json:"sample_count"`

	// Signature is the unordered set of schema keys plus anchor tokens
	// observed at learning time, sorted for stable storage.
	Signature []string `json:"signature"`

	// TrainingText is the normalised text of the first training document,
	// the matcher's reference for token and character similarity.
	TrainingText string `json:"training_text"`

	// CoordSpace is the parser's coordinate convention tag, carried
	// opaquely so positional regions are only compared in the space they
	// were learned in.
	CoordSpace string `json:"coord_space,omitempty"`

	FieldPatterns map[string]FieldPattern `json:"field_patterns"`

	// FieldConfidence is the exponentially-decayed success rate of each
	// field's pattern across samples, in [0,1].
	FieldConfidence map[string]float64 `json:"field_confidence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MeanConfidence averages the per-field confidences; 0 when no field has
// been learned. Used by the per-label eviction policy.
func (t *Template) MeanConfidence() float64 {
	if len(t.FieldConfidence) == 0 {
		return 0
	}
	var sum float64
	for _, c := range t.FieldConfidence {
		sum += c
	}
	return sum / float64(len(t.FieldConfidence))
}

// SignatureSet returns the signature as a set.
func (t *Template) SignatureSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.Signature))
	for _, s := range t.Signature {
		set[s] = struct{}{}
	}
	return set
}

// Clone returns a deep copy so readers never observe a torn write.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	out.Signature = append([]string(nil), t.Signature...)
	out.FieldPatterns = make(map[string]FieldPattern, len(t.FieldPatterns))
	for k, v := range t.FieldPatterns {
		p := v
		if v.Position != nil {
			pos := *v.Position
			p.Position = &pos
		}
		if v.Context != nil {
			c := *v.Context
			p.Context = &c
		}
		if v.Regex != nil {
			r := *v.Regex
			p.Regex = &r
		}
		out.FieldPatterns[k] = p
	}
	out.FieldConfidence = make(map[string]float64, len(t.FieldConfidence))
	for k, v := range t.FieldConfidence {
		out.FieldConfidence[k] = v
	}
	return &out
}
