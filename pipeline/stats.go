package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/extrato-ai/extrato/cache"
)

// Stats is a point-in-time snapshot of the pipeline's counters.
type Stats struct {
	UptimeSeconds float64 `json:"uptime_seconds"`

	TotalRequests int `json:"total_requests"`
	CacheHits     int `json:"cache_hits"`
	TemplateHits  int `json:"template_hits"`
	HybridCalls   int `json:"hybrid_calls"`
	LLMCalls      int `json:"llm_calls"`

	CacheHitRate      float64 `json:"cache_hit_rate"`
	AvgLLMSeconds     float64 `json:"avg_llm_seconds"`
	TotalTimeSeconds  float64 `json:"total_time_seconds"`
	TemplatesPerLabel map[string]int `json:"templates_per_label,omitempty"`
}

type statsCollector struct {
	mu            sync.Mutex
	startTime     time.Time
	totalRequests int
	cacheHits     int
	templateHits  int
	hybridCalls   int
	llmCalls      int
	llmTime       time.Duration
	totalTime     time.Duration
}

func newStatsCollector() *statsCollector {
	return &statsCollector{startTime: time.Now()}
}

func (s *statsCollector) request()      { s.add(func() { s.totalRequests++ }) }
func (s *statsCollector) cacheHit()     { s.add(func() { s.cacheHits++ }) }
func (s *statsCollector) templateHit()  { s.add(func() { s.templateHits++ }) }
func (s *statsCollector) hybridCall()   { s.add(func() { s.hybridCalls++ }) }

func (s *statsCollector) llmCall(d time.Duration) {
	s.add(func() {
		s.llmCalls++
		s.llmTime += d
	})
}

func (s *statsCollector) finished(d time.Duration) {
	s.add(func() { s.totalTime += d })
}

func (s *statsCollector) add(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}

// Stats snapshots the pipeline counters plus the template store's
// per-label population.
func (p *Pipeline) Stats(ctx context.Context) Stats {
	p.stats.mu.Lock()
	out := Stats{
		UptimeSeconds:    time.Since(p.stats.startTime).Seconds(),
		TotalRequests:    p.stats.totalRequests,
		CacheHits:        p.stats.cacheHits,
		TemplateHits:     p.stats.templateHits,
		HybridCalls:      p.stats.hybridCalls,
		LLMCalls:         p.stats.llmCalls,
		TotalTimeSeconds: p.stats.totalTime.Seconds(),
	}
	if p.stats.llmCalls > 0 {
		out.AvgLLMSeconds = p.stats.llmTime.Seconds() / float64(p.stats.llmCalls)
	}
	if p.stats.totalRequests > 0 {
		out.CacheHitRate = float64(p.stats.cacheHits) / float64(p.stats.totalRequests)
	}
	p.stats.mu.Unlock()

	if counts, err := p.store.CountPerLabel(ctx); err == nil {
		out.TemplatesPerLabel = counts
	}
	return out
}

// CacheStats exposes the cache tier counters.
func (p *Pipeline) CacheStats() cache.Stats {
	return p.cache.Stats()
}
