package template

import (
	"regexp"
	"strings"
	"unicode"
)

// Stopwords for Brazilian Portuguese documents. The list is data: it feeds
// tokenisation for signatures and matching but carries no behaviour.
var stopwords = map[string]struct{}{}

var stopwordList = []string{
	"a", "o", "as", "os", "um", "uma", "uns", "umas",
	"de", "do", "da", "dos", "das", "em", "no", "na", "nos", "nas",
	"por", "para", "com", "sem", "sob", "sobre", "entre", "ate",
	"e", "ou", "mas", "que", "se", "ao", "aos", "à", "às",
	"seu", "sua", "seus", "suas", "este", "esta", "esse", "essa",
	"the", "of", "and", "to", "in", "is",
}

func init() {
	for _, w := range stopwordList {
		stopwords[w] = struct{}{}
	}
}

var (
	digitsRe     = regexp.MustCompile(`\d+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// normalizeText lowercases, strips digits (values vary between documents
// of the same class) and collapses whitespace. Accents are preserved.
func normalizeText(s string) string {
	s = digitsRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// tokenize splits text into lowercased word tokens, accents preserved.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// contentTokens returns non-stopword tokens of at least three runes.
func contentTokens(s string) []string {
	var out []string
	for _, tok := range tokenize(s) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if len([]rune(tok)) < 3 {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// tokenFrequencies counts non-stopword tokens.
func tokenFrequencies(s string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range contentTokens(s) {
		freq[tok]++
	}
	return freq
}

// jaccard computes set similarity; 0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var inter int
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
