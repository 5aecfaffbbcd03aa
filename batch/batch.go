// Package batch runs many extraction requests through the pipeline:
// items sharing a label run strictly in order so learning from one
// feeds the next, labels run in parallel, and every completion streams
// out as soon as it happens.
package batch

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/extrato-ai/extrato/schema"
)

// Engine runs one extraction. *pipeline.Pipeline satisfies it.
type Engine interface {
	Extract(ctx context.Context, req *schema.ExtractionRequest) *schema.ExtractionResult
}

// EventType discriminates stream events.
type EventType string

const (
	// EventResult carries one finished item.
	EventResult EventType = "result"
	// EventComplete terminates the stream with aggregate statistics.
	EventComplete EventType = "complete"
)

// Event is one entry of the result stream.
type Event struct {
	Type EventType `json:"type"`

	// FileIndex is the item's position in the submitted batch.
	FileIndex int                      `json:"file_index,omitempty"`
	Label     string                   `json:"label,omitempty"`
	Result    *schema.ExtractionResult `json:"result,omitempty"`

	// Stats is set on the complete event only.
	Stats *Stats `json:"stats,omitempty"`
}

// Stats summarises a finished batch.
type Stats struct {
	Total                 int                   `json:"total"`
	Successful            int                   `json:"successful"`
	Failed                int                   `json:"failed"`
	ProcessingTimeSeconds float64               `json:"processing_time_seconds"`
	Methods               map[schema.Method]int `json:"methods"`
	Labels                []string              `json:"labels"`
}

// Scheduler fans a batch out across labels.
type Scheduler struct {
	engine     Engine
	maxWorkers int
	logger     *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxWorkers bounds cross-label parallelism (default: CPU count,
// min 1).
func WithMaxWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a Scheduler over the given engine.
func NewScheduler(engine Engine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:     engine,
		maxWorkers: max(1, runtime.NumCPU()),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type item struct {
	index int
	req   *schema.ExtractionRequest
}

// Run processes the batch and returns the event stream: one result
// event per processed item in completion order, then a single complete
// event. Within a label, items finish in submission order. On
// cancellation, in-flight items finish but no new items start; the
// complete event still fires with partial counts.
func (s *Scheduler) Run(ctx context.Context, reqs []*schema.ExtractionRequest) <-chan Event {
	// Buffered so workers never block on a slow consumer.
	events := make(chan Event, len(reqs)+1)
	start := time.Now()

	groups := make(map[string][]item)
	var labels []string
	for i, req := range reqs {
		if _, ok := groups[req.Label]; !ok {
			labels = append(labels, req.Label)
		}
		groups[req.Label] = append(groups[req.Label], item{index: i, req: req})
	}

	stats := &Stats{
		Total:   len(reqs),
		Methods: make(map[schema.Method]int),
		Labels:  labels,
	}
	var mu sync.Mutex

	go func() {
		defer close(events)

		var eg errgroup.Group
		eg.SetLimit(s.maxWorkers)
		for _, label := range labels {
			label := label
			items := groups[label]
			eg.Go(func() error {
				s.runLabel(ctx, label, items, events, stats, &mu)
				return nil
			})
		}
		eg.Wait()

		stats.ProcessingTimeSeconds = time.Since(start).Seconds()
		sort.Strings(stats.Labels)
		s.logger.Info("batch complete",
			"total", stats.Total, "successful", stats.Successful, "failed", stats.Failed,
			"seconds", stats.ProcessingTimeSeconds)
		events <- Event{Type: EventComplete, Stats: stats}
	}()

	return events
}

// runLabel processes one label's items sequentially so that pattern
// learning from item k is visible to item k+1.
func (s *Scheduler) runLabel(ctx context.Context, label string, items []item, events chan<- Event, stats *Stats, mu *sync.Mutex) {
	for _, it := range items {
		if ctx.Err() != nil {
			s.logger.Warn("batch cancelled, skipping remaining items",
				"label", label, "file_index", it.index)
			return
		}

		res := s.engine.Extract(ctx, it.req)

		mu.Lock()
		if res.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		stats.Methods[res.Metadata.Method]++
		mu.Unlock()

		events <- Event{
			Type:      EventResult,
			FileIndex: it.index,
			Label:     label,
			Result:    res,
		}
	}
}
