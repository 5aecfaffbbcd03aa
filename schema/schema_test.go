package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCanonicalJSONIgnoresOrder(t *testing.T) {
	a := NewSchema("nome", "Nome completo", "inscricao", "Número de inscrição")
	b := NewSchema("inscricao", "Número de inscrição", "nome", "Nome completo")

	assert.Equal(t, string(a.CanonicalJSON()), string(b.CanonicalJSON()))
}

func TestSchemaCanonicalJSONStripsWhitespace(t *testing.T) {
	a := NewSchema("nome", "Nome   completo\n")
	b := NewSchema("nome", "Nome completo")

	assert.Equal(t, string(a.CanonicalJSON()), string(b.CanonicalJSON()))
}

func TestSchemaJSONRoundTripPreservesOrder(t *testing.T) {
	s := NewSchema("c", "terceiro", "a", "primeiro", "b", "segundo")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"c":"terceiro","a":"primeiro","b":"segundo"}`, string(data))

	var back Schema
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"c", "a", "b"}, back.Keys())
}

func TestSchemaValidate(t *testing.T) {
	assert.Error(t, Schema{}.Validate())
	assert.Error(t, NewSchema("", "desc").Validate())
	assert.Error(t, NewSchema("a", "x", "a", "y").Validate())
	assert.NoError(t, NewSchema("a", "x", "b", "y").Validate())
}

func TestSchemaSubsetKeepsOrder(t *testing.T) {
	s := NewSchema("a", "1", "b", "2", "c", "3")
	sub := s.Subset(map[string]struct{}{"c": {}, "a": {}})

	assert.Equal(t, []string{"a", "c"}, sub.Keys())
}

func TestRequestValidate(t *testing.T) {
	valid := &ExtractionRequest{
		PDFBytes: []byte("%PDF-1.7 ..."),
		Label:    "oab",
		Schema:   NewSchema("nome", "Nome completo"),
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name string
		req  ExtractionRequest
	}{
		{"empty pdf", ExtractionRequest{Label: "oab", Schema: valid.Schema}},
		{"not a pdf", ExtractionRequest{PDFBytes: []byte("hello"), Label: "oab", Schema: valid.Schema}},
		{"no label", ExtractionRequest{PDFBytes: valid.PDFBytes, Schema: valid.Schema}},
		{"empty schema", ExtractionRequest{PDFBytes: valid.PDFBytes, Label: "oab"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.req.Validate())
		})
	}
}

func TestNewErrorResultKeepsSchemaKeys(t *testing.T) {
	s := NewSchema("nome", "Nome", "cpf", "CPF")
	res := NewErrorResult(s, MethodLLM, assert.AnError)

	assert.False(t, res.Success)
	assert.Equal(t, MethodError, res.Metadata.Method)
	assert.Equal(t, MethodLLM, res.Metadata.LastMethod)
	require.Len(t, res.Data, 2)
	assert.Nil(t, res.Data["nome"])
	assert.Nil(t, res.Data["cpf"])
}

func TestResultCloneIsDeep(t *testing.T) {
	res := &ExtractionResult{Success: true, Data: map[string]any{"nome": "João"}}
	cp := res.Clone()
	cp.Data["nome"] = "Maria"

	assert.Equal(t, "João", res.Data["nome"])
}
