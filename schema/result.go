package schema

import "fmt"

// Method identifies which execution path produced an extraction result.
type Method string

const (
	// MethodCacheL1 means the result came from the in-memory cache tier.
	MethodCacheL1 Method = "cache_l1"
	// MethodCacheL2 means the result came from the on-disk cache tier.
	MethodCacheL2 Method = "cache_l2"
	// MethodTemplate means every field was filled by learned patterns.
	MethodTemplate Method = "template"
	// MethodHybrid means a template filled some fields and a reduced-schema
	// LLM call filled the rest.
	MethodHybrid Method = "hybrid"
	// MethodLLM means the full schema went through the LLM.
	MethodLLM Method = "llm"
	// MethodError means the request failed.
	MethodError Method = "error"
)

// Valid reports whether m is one of the defined method tags.
func (m Method) Valid() bool {
	switch m {
	case MethodCacheL1, MethodCacheL2, MethodTemplate, MethodHybrid, MethodLLM, MethodError:
		return true
	}
	return false
}

// ExtractionRequest is one unit of work: a PDF, a document-class label, and
// the schema of fields to extract. Requests are treated as immutable.
type ExtractionRequest struct {
	PDFBytes []byte `json:"-"`
	Label    string `json:"label"`
	Schema   Schema `json:"schema"`
}

// Validate checks the request against the input contract: non-empty PDF
// bytes that look like a PDF, a non-blank label, and a valid schema.
func (r *ExtractionRequest) Validate() error {
	if len(r.PDFBytes) == 0 {
		return fmt.Errorf("pdf bytes are empty")
	}
	if len(r.PDFBytes) < 5 || string(r.PDFBytes[:5]) != "%PDF-" {
		return fmt.Errorf("input does not look like a PDF")
	}
	if r.Label == "" {
		return fmt.Errorf("label is empty")
	}
	if err := r.Schema.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	return nil
}

// Metadata records how a result was produced. Method-specific fields are
// zero-valued when they do not apply.
type Metadata struct {
	Method      Method  `json:"method"`
	TimeSeconds float64 `json:"time_seconds"`

	// Similarity is the template match score, for template and hybrid paths.
	Similarity float64 `json:"similarity,omitempty"`
	// TemplateID identifies the template that contributed fields.
	TemplateID string `json:"template_id,omitempty"`
	// TemplateFields counts fields filled by learned patterns.
	TemplateFields int `json:"template_fields,omitempty"`
	// LLMFields counts fields filled by a reduced-schema LLM call.
	LLMFields int `json:"llm_fields,omitempty"`
	// Retries counts LLM retry attempts that were needed.
	Retries int `json:"retries,omitempty"`
	// Coalesced marks a caller that shared another caller's in-flight
	// execution instead of running the pipeline itself.
	Coalesced bool `json:"coalesced,omitempty"`
	// Learned marks a full-LLM result that fed the pattern learner.
	Learned bool `json:"learned,omitempty"`
	// Warning carries a non-fatal problem, e.g. a hybrid LLM call that
	// failed and left fields null.
	Warning string `json:"warning,omitempty"`
	// LastMethod is the last attempted path before a failure.
	LastMethod Method `json:"last_method,omitempty"`
}

// ExtractionResult is the outcome of one request. On success Data holds
// exactly the request's schema keys; a value is nil when nothing could be
// extracted for that field.
type ExtractionResult struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data"`
	Metadata Metadata       `json:"metadata"`
	Error    string         `json:"error,omitempty"`
}

// NewErrorResult builds a failed result. Known schema keys are preserved
// with null values so callers see the shape they asked for.
func NewErrorResult(s Schema, lastMethod Method, err error) *ExtractionResult {
	data := make(map[string]any, len(s))
	for _, f := range s {
		data[f.Name] = nil
	}
	return &ExtractionResult{
		Success: false,
		Data:    data,
		Metadata: Metadata{
			Method:     MethodError,
			LastMethod: lastMethod,
		},
		Error: err.Error(),
	}
}

// Clone returns a deep copy. Cached results are immutable once written, so
// every consumer gets its own copy to annotate.
func (r *ExtractionResult) Clone() *ExtractionResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Data = make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		out.Data[k] = v
	}
	return &out
}

// FilledFields returns the names of fields with non-null values.
func (r *ExtractionResult) FilledFields() []string {
	var filled []string
	for k, v := range r.Data {
		if v != nil {
			filled = append(filled, k)
		}
	}
	return filled
}
