// Package pipeline is the decision engine: fingerprint and cache
// lookup, parse, template match, template or hybrid extraction, full
// LLM extraction, learning, cache store. Each stage exists to keep the
// request away from the stage after it.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/extrato-ai/extrato/cache"
	"github.com/extrato-ai/extrato/fingerprint"
	"github.com/extrato-ai/extrato/llm"
	"github.com/extrato-ai/extrato/parser"
	"github.com/extrato-ai/extrato/schema"
	"github.com/extrato-ai/extrato/template"
)

const (
	// DefaultConfidenceThreshold gates which template-filled fields are
	// trusted without an LLM call.
	DefaultConfidenceThreshold = 0.80
	// DefaultParserTimeout bounds one parse; parsing is never retried.
	DefaultParserTimeout = parser.DefaultTimeout * time.Second
)

// Pipeline orchestrates one extraction end to end. Safe for concurrent
// use; identical in-flight requests share a single execution.
type Pipeline struct {
	parser    parser.Parser
	extractor llm.Extractor
	cache     *cache.Cache
	store     *template.Store
	matcher   *template.Matcher
	learner   *template.Learner
	fields    *template.FieldExtractor
	logger    *slog.Logger

	confidenceThreshold float64
	parserTimeout       time.Duration

	group singleflight.Group
	stats *statsCollector
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMatcher overrides the template matcher.
func WithMatcher(m *template.Matcher) Option {
	return func(p *Pipeline) { p.matcher = m }
}

// WithValidator sets the value validator guarding template-extracted
// fields.
func WithValidator(v template.ValueValidator) Option {
	return func(p *Pipeline) { p.fields = template.NewFieldExtractor(v) }
}

// WithConfidenceThreshold overrides the per-field confidence gate
// (default 0.80).
func WithConfidenceThreshold(t float64) Option {
	return func(p *Pipeline) { p.confidenceThreshold = t }
}

// WithParserTimeout overrides the parse timeout (default 30s).
func WithParserTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.parserTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline over its four collaborators.
func New(ps parser.Parser, x llm.Extractor, c *cache.Cache, s *template.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		parser:              ps,
		extractor:           x,
		cache:               c,
		store:               s,
		matcher:             template.NewMatcher(),
		fields:              template.NewFieldExtractor(nil),
		logger:              slog.Default(),
		confidenceThreshold: DefaultConfidenceThreshold,
		parserTimeout:       DefaultParserTimeout,
		stats:               newStatsCollector(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.learner = template.NewLearner(s, p.logger)
	return p
}

// Extract runs one request through the pipeline. Failures are encoded
// in the result, never panicked or swallowed.
func (p *Pipeline) Extract(ctx context.Context, req *schema.ExtractionRequest) *schema.ExtractionResult {
	start := time.Now()
	p.stats.request()
	defer func() { p.stats.finished(time.Since(start)) }()

	if err := req.Validate(); err != nil {
		p.logger.Warn("invalid extraction request", "label", req.Label, "error", err)
		res := schema.NewErrorResult(req.Schema, "", err)
		res.Metadata.TimeSeconds = time.Since(start).Seconds()
		return res
	}

	key := fingerprint.ForRequest(req)
	if res, src, ok := p.cache.Get(ctx, key); ok {
		p.stats.cacheHit()
		res.Metadata.Method = cacheMethod(src)
		res.Metadata.TimeSeconds = time.Since(start).Seconds()
		return res
	}

	v, _, shared := p.group.Do(key.String(), func() (any, error) {
		return p.compute(ctx, key, req), nil
	})
	res := v.(*schema.ExtractionResult).Clone()
	if shared {
		res.Metadata.Coalesced = true
	}
	res.Metadata.TimeSeconds = time.Since(start).Seconds()
	return res
}

// compute is the guarded section: at most one execution per fingerprint
// at a time.
func (p *Pipeline) compute(ctx context.Context, key fingerprint.Key, req *schema.ExtractionRequest) *schema.ExtractionResult {
	doc, err := p.parse(ctx, req.PDFBytes)
	if err != nil {
		p.logger.Error("parse failed", "label", req.Label, "error", err)
		return schema.NewErrorResult(req.Schema, "", err)
	}

	if res, ok := p.tryTemplate(ctx, key, req, doc); ok {
		return res
	}
	return p.fullLLM(ctx, key, req, doc)
}

func (p *Pipeline) parse(ctx context.Context, pdfBytes []byte) (*schema.ParsedDocument, error) {
	parseCtx, cancel := context.WithTimeout(ctx, p.parserTimeout)
	defer cancel()
	return p.parser.Parse(parseCtx, pdfBytes)
}

// tryTemplate attempts the template and hybrid paths. Returns ok=false
// when the request must fall through to the full LLM.
func (p *Pipeline) tryTemplate(ctx context.Context, key fingerprint.Key, req *schema.ExtractionRequest, doc *schema.ParsedDocument) (*schema.ExtractionResult, bool) {
	candidates, err := p.store.List(ctx, req.Label)
	if err != nil {
		// Persistence trouble never fails a request.
		p.logger.Error("template list failed", "label", req.Label, "error", err)
		return nil, false
	}
	tmpl, similarity, ok := p.matcher.BestMatch(doc, candidates)
	if !ok {
		p.logger.Debug("no applicable template",
			"label", req.Label, "candidates", len(candidates), "best_similarity", similarity)
		return nil, false
	}

	extraction := p.fields.Extract(doc, tmpl, req.Schema)
	trusted := make(map[string]struct{})
	for name := range extraction.Filled {
		if tmpl.FieldConfidence[name] >= p.confidenceThreshold {
			trusted[name] = struct{}{}
		}
	}
	missing := make(map[string]struct{})
	for _, f := range req.Schema {
		if _, ok := trusted[f.Name]; !ok {
			missing[f.Name] = struct{}{}
		}
	}

	data := make(map[string]any, len(req.Schema))
	for _, f := range req.Schema {
		if _, ok := trusted[f.Name]; ok {
			data[f.Name] = extraction.Data[f.Name]
		} else {
			data[f.Name] = nil
		}
	}

	if len(missing) == 0 {
		p.stats.templateHit()
		res := &schema.ExtractionResult{
			Success: true,
			Data:    data,
			Metadata: schema.Metadata{
				Method:         schema.MethodTemplate,
				Similarity:     similarity,
				TemplateID:     tmpl.TemplateID,
				TemplateFields: len(trusted),
			},
		}
		p.cache.Put(ctx, key, res)
		p.logger.Info("template extraction",
			"label", req.Label, "template_id", tmpl.TemplateID, "similarity", similarity)
		return res, true
	}

	// Hybrid: ask the model only for the fields the template could not
	// fill confidently.
	reduced := req.Schema.Subset(missing)
	llmRes, err := p.extractor.Extract(ctx, req.Label, doc.Text(), reduced)
	if err != nil {
		if len(trusted) == 0 {
			p.logger.Warn("hybrid llm failed with no trusted fields, falling through",
				"label", req.Label, "error", err)
			return nil, false
		}
		p.stats.templateHit()
		res := &schema.ExtractionResult{
			Success: true,
			Data:    data,
			Metadata: schema.Metadata{
				Method:         schema.MethodTemplate,
				Similarity:     similarity,
				TemplateID:     tmpl.TemplateID,
				TemplateFields: len(trusted),
				Warning:        "llm call for missing fields failed: " + err.Error(),
			},
		}
		p.cache.Put(ctx, key, res)
		return res, true
	}

	for name := range missing {
		data[name] = llmRes.Data[name]
	}
	p.stats.hybridCall()
	res := &schema.ExtractionResult{
		Success: true,
		Data:    data,
		Metadata: schema.Metadata{
			Method:         schema.MethodHybrid,
			Similarity:     similarity,
			TemplateID:     tmpl.TemplateID,
			TemplateFields: len(trusted),
			LLMFields:      len(missing),
			Retries:        llmRes.Retries,
		},
	}
	p.cache.Put(ctx, key, res)
	p.logger.Info("hybrid extraction",
		"label", req.Label, "template_id", tmpl.TemplateID,
		"template_fields", len(trusted), "llm_fields", len(missing))
	return res, true
}

// fullLLM is the expensive path: complete-schema model call, then
// learning, then cache store.
func (p *Pipeline) fullLLM(ctx context.Context, key fingerprint.Key, req *schema.ExtractionRequest, doc *schema.ParsedDocument) *schema.ExtractionResult {
	llmStart := time.Now()
	llmRes, err := p.extractor.Extract(ctx, req.Label, doc.Text(), req.Schema)
	if err != nil {
		p.logger.Error("llm extraction failed", "label", req.Label, "error", err)
		return schema.NewErrorResult(req.Schema, schema.MethodLLM, err)
	}
	p.stats.llmCall(time.Since(llmStart))

	res := &schema.ExtractionResult{
		Success: true,
		Data:    llmRes.Data,
		Metadata: schema.Metadata{
			Method:  schema.MethodLLM,
			Retries: llmRes.Retries,
		},
	}

	if _, err := p.learner.Learn(ctx, req.Label, doc, req.Schema, llmRes.Data); err != nil {
		p.logger.Error("pattern learning failed", "label", req.Label, "error", err)
	} else {
		res.Metadata.Learned = true
	}

	p.cache.Put(ctx, key, res)
	return res
}

func cacheMethod(src cache.Source) schema.Method {
	if src == cache.SourceL2 {
		return schema.MethodCacheL2
	}
	return schema.MethodCacheL1
}
