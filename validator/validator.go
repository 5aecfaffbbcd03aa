// Package validator normalises and sanity-checks extracted field values
// against the shape a field's name and description suggest. It is the
// guard between a template's raw text candidates and the final result:
// values that do not fit their expected shape are rejected rather than
// returned wrong.
package validator

import (
	"regexp"
	"strings"
	"time"

	"github.com/extrato-ai/extrato/template"
)

var _ template.ValueValidator = (*Validator)(nil)

// Shape is a field's expected value format.
type Shape string

const (
	ShapeCPF      Shape = "cpf"
	ShapeCNPJ     Shape = "cnpj"
	ShapeCEP      Shape = "cep"
	ShapePhone    Shape = "phone"
	ShapeCurrency Shape = "currency"
	ShapeDate     Shape = "date"
	ShapeInteger  Shape = "integer"
	ShapeText     Shape = "text"
)

// shapeHints maps keywords found in field names and descriptions to
// shapes. Order matters: the first hit wins, and the more specific
// document shapes come before the generic ones.
var shapeHints = []struct {
	shape    Shape
	keywords []string
}{
	{ShapeCNPJ, []string{"cnpj"}},
	{ShapeCPF, []string{"cpf"}},
	{ShapeCEP, []string{"cep", "codigo postal", "código postal"}},
	{ShapePhone, []string{"telefone", "celular", "fone", "phone"}},
	{ShapeCurrency, []string{"valor", "preço", "preco", "total", "price", "amount", "salário", "salario"}},
	{ShapeDate, []string{"data", "date", "vencimento", "emissão", "emissao", "validade", "nascimento"}},
	{ShapeInteger, []string{"quantidade", "qtd", "número", "numero", "number", "parcelas"}},
}

// HintFor infers a field's shape from its name and description.
func HintFor(name, description string) Shape {
	haystack := strings.ToLower(name + " " + description)
	for _, h := range shapeHints {
		for _, kw := range h.keywords {
			if strings.Contains(haystack, kw) {
				return h.shape
			}
		}
	}
	return ShapeText
}

var (
	nonDigitsRe = regexp.MustCompile(`\D`)
	currencyRe  = regexp.MustCompile(`^(R\$\s?)?\d{1,3}(\.\d{3})*(,\d{2})?$|^(R\$\s?)?\d+([.,]\d{1,2})?$`)
)

// Validator checks extracted values against their inferred shapes.
// The zero value is ready to use.
type Validator struct{}

// New creates a Validator.
func New() *Validator { return &Validator{} }

// Validate infers the field's shape and normalises the value into it.
// Returns the canonical rendering and true, or "" and false when the
// value does not fit.
func (v *Validator) Validate(fieldName, value, description string) (string, bool) {
	return v.ValidateShape(HintFor(fieldName, description), value)
}

// ValidateShape normalises a value against an explicit shape.
func (v *Validator) ValidateShape(shape Shape, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	switch shape {
	case ShapeCPF:
		return normalizeCPF(value)
	case ShapeCNPJ:
		return normalizeCNPJ(value)
	case ShapeCEP:
		return normalizeCEP(value)
	case ShapePhone:
		return normalizePhone(value)
	case ShapeCurrency:
		return normalizeCurrency(value)
	case ShapeDate:
		return normalizeDate(value)
	case ShapeInteger:
		return normalizeInteger(value)
	default:
		return value, true
	}
}

// normalizeCPF verifies the two CPF check digits and renders the
// canonical XXX.XXX.XXX-XX form.
func normalizeCPF(s string) (string, bool) {
	digits := nonDigitsRe.ReplaceAllString(s, "")
	if len(digits) != 11 || allSame(digits) {
		return "", false
	}
	if cpfDigit(digits[:9], 10) != int(digits[9]-'0') ||
		cpfDigit(digits[:10], 11) != int(digits[10]-'0') {
		return "", false
	}
	return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11], true
}

func cpfDigit(digits string, startWeight int) int {
	var sum int
	for i, r := range digits {
		sum += int(r-'0') * (startWeight - i)
	}
	return sum * 10 % 11 % 10
}

// normalizeCNPJ verifies the CNPJ check digits and renders the canonical
// XX.XXX.XXX/XXXX-XX form.
func normalizeCNPJ(s string) (string, bool) {
	digits := nonDigitsRe.ReplaceAllString(s, "")
	if len(digits) != 14 || allSame(digits) {
		return "", false
	}
	if cnpjDigit(digits[:12]) != int(digits[12]-'0') ||
		cnpjDigit(digits[:13]) != int(digits[13]-'0') {
		return "", false
	}
	return digits[0:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:14], true
}

func cnpjDigit(digits string) int {
	weight := len(digits) - 7
	var sum int
	for _, r := range digits {
		sum += int(r-'0') * weight
		weight--
		if weight < 2 {
			weight = 9
		}
	}
	d := 11 - sum%11
	if d >= 10 {
		return 0
	}
	return d
}

func normalizeCEP(s string) (string, bool) {
	digits := nonDigitsRe.ReplaceAllString(s, "")
	if len(digits) != 8 {
		return "", false
	}
	return digits[0:5] + "-" + digits[5:8], true
}

// normalizePhone accepts Brazilian landline and mobile numbers, with or
// without the +55 country code.
func normalizePhone(s string) (string, bool) {
	digits := nonDigitsRe.ReplaceAllString(s, "")
	if len(digits) >= 12 && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	switch len(digits) {
	case 10:
		return "(" + digits[0:2] + ") " + digits[2:6] + "-" + digits[6:10], true
	case 11:
		return "(" + digits[0:2] + ") " + digits[2:7] + "-" + digits[7:11], true
	}
	return "", false
}

func normalizeCurrency(s string) (string, bool) {
	if !currencyRe.MatchString(s) {
		return "", false
	}
	return s, true
}

var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2006-01-02",
	"02/01/06",
}

// normalizeDate renders any accepted layout as DD/MM/YYYY.
func normalizeDate(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006"), true
		}
	}
	return "", false
}

// normalizeInteger strips thousand separators and keeps plain digit runs.
func normalizeInteger(s string) (string, bool) {
	cleaned := strings.NewReplacer(".", "", ",", "", " ", "").Replace(s)
	if cleaned == "" {
		return "", false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return cleaned, true
}

func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
