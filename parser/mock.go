package parser

import (
	"context"
	"sync"

	"github.com/extrato-ai/extrato/schema"
)

// MockParser is a Parser for tests: it returns a fixed document or
// error and counts calls.
type MockParser struct {
	Doc *schema.ParsedDocument
	Err error

	mu    sync.Mutex
	calls int
}

// NewMockParser creates a MockParser returning the given document.
func NewMockParser(doc *schema.ParsedDocument) *MockParser {
	return &MockParser{Doc: doc}
}

// Parse returns the configured document or error.
func (m *MockParser) Parse(ctx context.Context, _ []byte) (*schema.ParsedDocument, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, NewParseError("parse cancelled", err)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Doc, nil
}

// Calls reports how many times Parse ran.
func (m *MockParser) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Parser = (*MockParser)(nil)
