package llm

import (
	"context"
	"sync"

	"github.com/extrato-ai/extrato/schema"
)

// MockExtractor is an Extractor for tests: it returns canned data or a
// fixed error, and counts calls. ExtractFunc overrides the canned
// behaviour entirely when set.
type MockExtractor struct {
	Data    map[string]any
	Retries int
	Err     error

	ExtractFunc func(ctx context.Context, label, documentText string, sch schema.Schema) (*Extraction, error)

	mu    sync.Mutex
	calls int
}

// NewMockExtractor creates a MockExtractor returning the given data.
func NewMockExtractor(data map[string]any) *MockExtractor {
	return &MockExtractor{Data: data}
}

// Extract returns the canned error or data aligned to the schema.
func (m *MockExtractor) Extract(ctx context.Context, label, documentText string, sch schema.Schema) (*Extraction, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, label, documentText, sch)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewExtractorError("extraction cancelled", err)
	}
	if m.Err != nil {
		return nil, m.Err
	}

	data := make(map[string]any, len(sch))
	for _, f := range sch {
		if v, ok := m.Data[f.Name]; ok {
			data[f.Name] = v
		} else {
			data[f.Name] = nil
		}
	}
	return &Extraction{Data: data, Retries: m.Retries}, nil
}

// Calls reports how many times Extract ran.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Extractor = (*MockExtractor)(nil)
