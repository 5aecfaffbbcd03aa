package template

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedTemplate(label, id string, samples int, confidence float64, updatedAt time.Time) *Template {
	return &Template{
		Label:        label,
		TemplateID:   id,
		SampleCount:  samples,
		Signature:    []string{"cpf", "nome", "nota"},
		TrainingText: "Nota Fiscal\nNome: João Silva",
		CoordSpace:   "top-left",
		FieldPatterns: map[string]FieldPattern{
			"cpf": {
				Position: &PositionPattern{Page: 0, X: 100, Y: 80, W: 84, H: 10},
				Context:  &ContextPattern{Anchor: "CPF:", Direction: DirRight},
				Regex:    &RegexPattern{Expr: `\d{3}\.\d{3}\.\d{3}-\d{2}`},
			},
		},
		FieldConfidence: map[string]float64{"cpf": confidence},
		CreatedAt:       updatedAt.Add(-time.Hour),
		UpdatedAt:       updatedAt,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	in := storedTemplate("nota-fiscal", "t-1", 3, 0.85, now)
	require.NoError(t, store.Upsert(ctx, in))

	out, err := store.Get(ctx, "nota-fiscal", "t-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Label, out.Label)
	assert.Equal(t, in.SampleCount, out.SampleCount)
	assert.Equal(t, in.Signature, out.Signature)
	assert.Equal(t, in.FieldPatterns, out.FieldPatterns)
	assert.Equal(t, in.FieldConfidence, out.FieldConfidence)
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
}

func TestStoreGetAbsent(t *testing.T) {
	store := newTestStore(t)
	out, err := store.Get(context.Background(), "nota-fiscal", "missing")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStoreUpsertReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "t-1", 1, 1.0, now)))
	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "t-1", 2, 0.9, now.Add(time.Minute))))

	out, err := store.Get(ctx, "nota-fiscal", "t-1")
	require.NoError(t, err)
	assert.Equal(t, 2, out.SampleCount)
	assert.Equal(t, 0.9, out.FieldConfidence["cpf"])

	list, err := store.List(ctx, "nota-fiscal")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStoreListOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "few", 1, 1.0, now.Add(2*time.Minute))))
	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "many", 5, 1.0, now)))
	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "recent", 5, 1.0, now.Add(time.Minute))))

	list, err := store.List(ctx, "nota-fiscal")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "recent", list[0].TemplateID)
	assert.Equal(t, "many", list[1].TemplateID)
	assert.Equal(t, "few", list[2].TemplateID)
}

func TestStoreListScopedToLabel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "t-1", 1, 1.0, now)))
	require.NoError(t, store.Upsert(ctx, storedTemplate("certidao", "t-2", 1, 1.0, now)))

	list, err := store.List(ctx, "nota-fiscal")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t-1", list[0].TemplateID)
}

func TestStoreEnforcesPerLabelCap(t *testing.T) {
	store := newTestStore(t)
	store.maxPerLabel = 3
	ctx := context.Background()
	now := time.Now().UTC()

	// The weakest template (lowest confidence) must be the one evicted.
	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "weak", 4, 0.5, now)))
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("strong-%d", i)
		require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", id, 2, 0.95, now.Add(time.Duration(i)*time.Minute))))
	}

	list, err := store.List(ctx, "nota-fiscal")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, tmpl := range list {
		assert.NotEqual(t, "weak", tmpl.TemplateID)
	}
}

func TestStoreCapTiesBreakOnSamplesThenAge(t *testing.T) {
	store := newTestStore(t)
	store.maxPerLabel = 2
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "old", 3, 0.9, now)))
	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "new", 3, 0.9, now.Add(time.Minute))))
	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "other", 3, 0.9, now.Add(2*time.Minute))))

	list, err := store.List(ctx, "nota-fiscal")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, tmpl := range list {
		assert.NotEqual(t, "old", tmpl.TemplateID)
	}
}

func TestStoreCountPerLabel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "t-1", 1, 1.0, now)))
	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "t-2", 1, 1.0, now)))
	require.NoError(t, store.Upsert(ctx, storedTemplate("certidao", "t-3", 1, 1.0, now)))

	counts, err := store.CountPerLabel(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"nota-fiscal": 2, "certidao": 1}, counts)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, storedTemplate("nota-fiscal", "t-1", 1, 1.0, time.Now().UTC())))
	require.NoError(t, store.Delete(ctx, "nota-fiscal", "t-1"))

	out, err := store.Get(ctx, "nota-fiscal", "t-1")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/templates.db"
	ctx := context.Background()

	first, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Upsert(ctx, storedTemplate("nota-fiscal", "t-1", 2, 0.9, time.Now().UTC())))
	require.NoError(t, first.Close())

	second, err := OpenStore(path)
	require.NoError(t, err)
	defer second.Close()

	out, err := second.Get(ctx, "nota-fiscal", "t-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 2, out.SampleCount)
}
