package template

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "templates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLearnFirstSample(t *testing.T) {
	store := newTestStore(t)
	learner := NewLearner(store, nil)

	tmpl, err := learner.Learn(context.Background(), "nota-fiscal", invoiceDoc(), invoiceSchema(), invoiceData())
	require.NoError(t, err)

	assert.Equal(t, 1, tmpl.SampleCount)
	assert.NotEmpty(t, tmpl.TemplateID)
	assert.NotEmpty(t, tmpl.Signature)
	for _, field := range []string{"nome", "cpf", "valor_total"} {
		p, ok := tmpl.FieldPatterns[field]
		require.True(t, ok, "pattern for %s", field)
		assert.False(t, p.Empty(), "pattern for %s", field)
		assert.Equal(t, SeedConfidence, tmpl.FieldConfidence[field])
	}

	// The CPF is anchored, positioned and has a digit shape; the name has
	// no digits so no regex may be induced for it.
	cpf := tmpl.FieldPatterns["cpf"]
	require.NotNil(t, cpf.Position)
	require.NotNil(t, cpf.Context)
	assert.Equal(t, "CPF:", cpf.Context.Anchor)
	assert.Equal(t, DirRight, cpf.Context.Direction)
	require.NotNil(t, cpf.Regex)
	assert.Nil(t, tmpl.FieldPatterns["nome"].Regex)
}

func TestLearnRefinesSameLayout(t *testing.T) {
	store := newTestStore(t)
	learner := NewLearner(store, nil)
	ctx := context.Background()

	first, err := learner.Learn(ctx, "nota-fiscal", invoiceDoc(), invoiceSchema(), invoiceData())
	require.NoError(t, err)
	second, err := learner.Learn(ctx, "nota-fiscal", invoiceDoc2(), invoiceSchema(), invoiceData2())
	require.NoError(t, err)

	assert.Equal(t, first.TemplateID, second.TemplateID)
	assert.Equal(t, 2, second.SampleCount)

	// Every pattern replayed cleanly on the second sample, so confidence
	// stays at the seed.
	for field, c := range second.FieldConfidence {
		assert.Equal(t, SeedConfidence, c, field)
	}

	list, err := store.List(ctx, "nota-fiscal")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLearnForksOnStructuralDrift(t *testing.T) {
	store := newTestStore(t)
	learner := NewLearner(store, nil)
	ctx := context.Background()

	_, err := learner.Learn(ctx, "misc", invoiceDoc(), invoiceSchema(), invoiceData())
	require.NoError(t, err)
	forked, err := learner.Learn(ctx, "misc", certificateDoc(), invoiceSchema(), map[string]any{
		"nome":        "Empresa Exemplo Ltda",
		"cpf":         nil,
		"valor_total": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, forked.SampleCount)
	list, err := store.List(ctx, "misc")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRefineDropsConfidenceOnReplayFailure(t *testing.T) {
	learner := NewLearner(newTestStore(t), nil)
	doc := invoiceDoc2()

	tmpl := &Template{
		Label:       "nota-fiscal",
		TemplateID:  "t-1",
		SampleCount: 1,
		FieldPatterns: map[string]FieldPattern{
			// Points at empty space, anchors on a label the form no longer
			// carries, matches a shape absent from the document.
			"nome": {
				Position: &PositionPattern{Page: 3, X: 900, Y: 900, W: 10, H: 10},
				Context:  &ContextPattern{Anchor: "Razão Social:", Direction: DirRight},
			},
		},
		FieldConfidence: map[string]float64{"nome": 1.0},
	}

	learner.refine(tmpl, doc, invoiceSchema(), invoiceData2())

	assert.Equal(t, 2, tmpl.SampleCount)
	assert.InDelta(t, (1-ConfidenceAlpha)*1.0, tmpl.FieldConfidence["nome"], 1e-9)
	// The failed pattern was relearned from the new sample.
	require.NotNil(t, tmpl.FieldPatterns["nome"].Context)
	assert.Equal(t, "Nome:", tmpl.FieldPatterns["nome"].Context.Anchor)
}

func TestInduceRegex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"cpf", "123.456.789-09", `\d{3}\.\d{3}\.\d{3}-\d{2}`, true},
		{"cep", "01310-100", `\d{5}-\d{3}`, true},
		{"date", "12/03/2026", `\d{2}/\d{2}/\d{4}`, true},
		{"letters only", "João Silva", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := induceRegex(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSmallestContainingSkipsPrintedLabels(t *testing.T) {
	doc := invoiceDoc()
	elem, ok := smallestContaining(doc, "João Silva")
	require.True(t, ok)
	assert.Equal(t, "João Silva", elem.Text)
}

func TestIsPrintedLabel(t *testing.T) {
	assert.True(t, isPrintedLabel("CPF:", "algum valor"))
	assert.True(t, isPrintedLabel(" Endereço: ", "Rua das Flores, 10"))
	// A value that coincides with a label word is still a value.
	assert.False(t, isPrintedLabel("CPF:", "cpf"))
	assert.False(t, isPrintedLabel("João Silva", "João Silva"))
}
