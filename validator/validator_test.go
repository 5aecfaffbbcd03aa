package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHintFor(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        Shape
	}{
		{"cpf", "CPF do cliente", ShapeCPF},
		{"documento", "CNPJ da empresa", ShapeCNPJ},
		{"cep", "código postal", ShapeCEP},
		{"telefone", "telefone de contato", ShapePhone},
		{"valor_total", "valor total da nota", ShapeCurrency},
		{"data_emissao", "data de emissão", ShapeDate},
		{"quantidade", "quantidade de itens", ShapeInteger},
		{"nome", "nome completo", ShapeText},
		{"x", "", ShapeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HintFor(tt.name, tt.description))
		})
	}
}

func TestHintForPrefersDocumentShapes(t *testing.T) {
	// "CNPJ" wins even when currency keywords are present too.
	assert.Equal(t, ShapeCNPJ, HintFor("cnpj", "valor do CNPJ"))
}

func TestValidateCPF(t *testing.T) {
	v := New()

	got, ok := v.ValidateShape(ShapeCPF, "123.456.789-09")
	assert.True(t, ok)
	assert.Equal(t, "123.456.789-09", got)

	// Bare digits are reformatted.
	got, ok = v.ValidateShape(ShapeCPF, "98765432100")
	assert.True(t, ok)
	assert.Equal(t, "987.654.321-00", got)

	for _, bad := range []string{"123.456.789-00", "111.111.111-11", "1234", "", "João Silva"} {
		_, ok := v.ValidateShape(ShapeCPF, bad)
		assert.False(t, ok, "value %q", bad)
	}
}

func TestValidateCNPJ(t *testing.T) {
	v := New()

	got, ok := v.ValidateShape(ShapeCNPJ, "12345678000195")
	assert.True(t, ok)
	assert.Equal(t, "12.345.678/0001-95", got)

	for _, bad := range []string{"12.345.678/0001-00", "00.000.000/0000-00", "123"} {
		_, ok := v.ValidateShape(ShapeCNPJ, bad)
		assert.False(t, ok, "value %q", bad)
	}
}

func TestValidateCEP(t *testing.T) {
	v := New()

	got, ok := v.ValidateShape(ShapeCEP, "01310100")
	assert.True(t, ok)
	assert.Equal(t, "01310-100", got)

	got, ok = v.ValidateShape(ShapeCEP, "01310-100")
	assert.True(t, ok)
	assert.Equal(t, "01310-100", got)

	_, ok = v.ValidateShape(ShapeCEP, "0131")
	assert.False(t, ok)
}

func TestValidatePhone(t *testing.T) {
	v := New()

	got, ok := v.ValidateShape(ShapePhone, "+55 11 98765-4321")
	assert.True(t, ok)
	assert.Equal(t, "(11) 98765-4321", got)

	got, ok = v.ValidateShape(ShapePhone, "1134567890")
	assert.True(t, ok)
	assert.Equal(t, "(11) 3456-7890", got)

	_, ok = v.ValidateShape(ShapePhone, "12345")
	assert.False(t, ok)
}

func TestValidateCurrency(t *testing.T) {
	v := New()

	for _, good := range []string{"R$ 1.250,00", "R$1250,00", "1250.00", "1.250,00", "42"} {
		got, ok := v.ValidateShape(ShapeCurrency, good)
		assert.True(t, ok, "value %q", good)
		assert.Equal(t, good, got)
	}
	for _, bad := range []string{"grátis", "R$", ""} {
		_, ok := v.ValidateShape(ShapeCurrency, bad)
		assert.False(t, ok, "value %q", bad)
	}
}

func TestValidateDate(t *testing.T) {
	v := New()

	for in, want := range map[string]string{
		"12/03/2026": "12/03/2026",
		"12-03-2026": "12/03/2026",
		"2026-03-12": "12/03/2026",
		"12.03.2026": "12/03/2026",
	} {
		got, ok := v.ValidateShape(ShapeDate, in)
		assert.True(t, ok, "value %q", in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"32/01/2026", "amanhã", "2026"} {
		_, ok := v.ValidateShape(ShapeDate, bad)
		assert.False(t, ok, "value %q", bad)
	}
}

func TestValidateInteger(t *testing.T) {
	v := New()

	got, ok := v.ValidateShape(ShapeInteger, "1.250")
	assert.True(t, ok)
	assert.Equal(t, "1250", got)

	_, ok = v.ValidateShape(ShapeInteger, "12a")
	assert.False(t, ok)
}

func TestValidateTextPassesThrough(t *testing.T) {
	v := New()

	got, ok := v.Validate("nome", "  João Silva  ", "nome completo")
	assert.True(t, ok)
	assert.Equal(t, "João Silva", got)

	_, ok = v.Validate("nome", "   ", "nome completo")
	assert.False(t, ok)
}
