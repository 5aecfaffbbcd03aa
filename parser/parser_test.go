package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsGarbage(t *testing.T) {
	p := NewPDFParser()

	_, err := p.Parse(context.Background(), []byte("not a pdf at all"))
	require.Error(t, err)

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestParseRejectsEmptyInput(t *testing.T) {
	p := NewPDFParser()

	_, err := p.Parse(context.Background(), nil)
	require.Error(t, err)
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	p := NewPDFParser()

	// A valid magic number with nothing behind it must fail cleanly, not
	// panic.
	_, err := p.Parse(context.Background(), []byte("%PDF-1.7\n"))
	require.Error(t, err)

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestParseErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := NewParseError("failed to open document", inner)

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "failed to open document")
	assert.Contains(t, err.Error(), "boom")
}

func TestMockParserCancellation(t *testing.T) {
	m := NewMockParser(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Parse(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.Calls())
}
