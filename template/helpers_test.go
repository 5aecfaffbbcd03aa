package template

import (
	"github.com/extrato-ai/extrato/schema"
)

// el builds a positioned element in a top-left coordinate space with a
// width proportional to the text length.
func el(text string, page int, x, y float64) schema.Element {
	w := float64(len([]rune(text))) * 6
	return schema.Element{
		Text: text,
		Page: page,
		X0:   x,
		Y0:   y,
		X1:   x + w,
		Y1:   y + 10,
		Kind: schema.KindParagraph,
	}
}

// invoiceDoc is a small labelled form: a title line plus three
// label/value rows.
func invoiceDoc() *schema.ParsedDocument {
	return &schema.ParsedDocument{
		CoordSpace: "top-left",
		Elements: []schema.Element{
			el("Nota Fiscal Eletrônica", 0, 50, 20),
			el("Nome:", 0, 50, 50),
			el("João Silva", 0, 110, 50),
			el("CPF:", 0, 50, 80),
			el("123.456.789-09", 0, 100, 80),
			el("Valor Total:", 0, 50, 110),
			el("R$ 1.250,00", 0, 140, 110),
			el("Data de Emissão:", 0, 50, 140),
			el("12/03/2026", 0, 160, 140),
			el("Documento emitido eletronicamente", 0, 50, 170),
			el("Município de São Paulo", 0, 50, 200),
			el("Secretaria da Fazenda Estadual", 0, 50, 230),
		},
	}
}

// invoiceDoc2 is a second instance of the same form class with different
// values and slightly shifted value boxes.
func invoiceDoc2() *schema.ParsedDocument {
	return &schema.ParsedDocument{
		CoordSpace: "top-left",
		Elements: []schema.Element{
			el("Nota Fiscal Eletrônica", 0, 50, 20),
			el("Nome:", 0, 50, 50),
			el("Maria Souza", 0, 112, 50),
			el("CPF:", 0, 50, 80),
			el("987.654.321-00", 0, 102, 80),
			el("Valor Total:", 0, 50, 110),
			el("R$ 3.999,90", 0, 142, 110),
			el("Data de Emissão:", 0, 50, 140),
			el("25/07/2026", 0, 160, 140),
			el("Documento emitido eletronicamente", 0, 50, 170),
			el("Município de São Paulo", 0, 50, 200),
			el("Secretaria da Fazenda Estadual", 0, 50, 230),
		},
	}
}

// certificateDoc is a structurally unrelated document class.
func certificateDoc() *schema.ParsedDocument {
	return &schema.ParsedDocument{
		CoordSpace: "top-left",
		Elements: []schema.Element{
			el("Certidão Negativa de Débitos Trabalhistas", 0, 40, 20),
			el("Expedida pela Justiça do Trabalho conforme requerimento", 0, 40, 50),
			el("Interessado:", 0, 40, 80),
			el("Empresa Exemplo Ltda", 0, 120, 80),
			el("Validade:", 0, 40, 110),
			el("27/10/2026", 0, 100, 110),
		},
	}
}

func invoiceSchema() schema.Schema {
	return schema.NewSchema(
		"nome", "nome completo do cliente",
		"cpf", "CPF do cliente",
		"valor_total", "valor total da nota",
	)
}

func invoiceData() map[string]any {
	return map[string]any{
		"nome":        "João Silva",
		"cpf":         "123.456.789-09",
		"valor_total": "R$ 1.250,00",
	}
}

func invoiceData2() map[string]any {
	return map[string]any{
		"nome":        "Maria Souza",
		"cpf":         "987.654.321-00",
		"valor_total": "R$ 3.999,90",
	}
}
