package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/extrato-ai/extrato/schema"
)

var pdf = []byte("%PDF-1.7 conteúdo")

func TestDeterministic(t *testing.T) {
	s := schema.NewSchema("nome", "Nome completo", "cpf", "CPF do titular")

	a := New(pdf, "oab", s)
	b := New(pdf, "oab", s)
	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())
}

func TestSchemaOrderDoesNotChangeKey(t *testing.T) {
	a := New(pdf, "oab", schema.NewSchema("nome", "Nome", "cpf", "CPF"))
	b := New(pdf, "oab", schema.NewSchema("cpf", "CPF", "nome", "Nome"))

	assert.Equal(t, a, b)
}

func TestDistinctInputsProduceDistinctKeys(t *testing.T) {
	s := schema.NewSchema("nome", "Nome")
	base := New(pdf, "oab", s)

	assert.NotEqual(t, base, New([]byte("%PDF-1.7 outro"), "oab", s))
	assert.NotEqual(t, base.String(), New(pdf, "tela", s).String())
	assert.NotEqual(t, base, New(pdf, "oab", schema.NewSchema("nome", "Nome", "cpf", "CPF")))
}

func TestLabelsCollidingAfterSanitisationStayDistinct(t *testing.T) {
	s := schema.NewSchema("nome", "Nome")

	a := New(pdf, "a/b", s)
	b := New(pdf, "a_b", s)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a.String(), b.String())
}

func TestStringIsFilesystemSafe(t *testing.T) {
	key := New(pdf, "carteira oab/2024", schema.NewSchema("nome", "Nome"))
	assert.NotContains(t, key.String(), "/")
	assert.NotContains(t, key.String(), " ")
}
