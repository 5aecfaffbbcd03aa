package template

import (
	"sort"

	"github.com/extrato-ai/extrato/schema"
)

// Matcher scores how well a parsed document resembles a stored template
// and applies the gates that make template extraction safe: a minimum
// similarity and a minimum sample count.
type Matcher struct {
	similarityThreshold float64
	minSamples          int
}

// Matcher scoring weights and caps.
const (
	weightStructural = 0.7
	weightTokens     = 0.2
	weightCharacters = 0.1

	// topTokens caps the token-frequency comparison on each side.
	topTokens = 200
	// charPrefixBytes truncates texts before the character comparison.
	charPrefixBytes = 2048

	DefaultSimilarityThreshold = 0.70
	DefaultMinSamples          = 2
)

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithSimilarityThreshold overrides the application gate (default 0.70).
func WithSimilarityThreshold(t float64) MatcherOption {
	return func(m *Matcher) { m.similarityThreshold = t }
}

// WithMinSamples overrides the sample-count gate (default 2).
func WithMinSamples(n int) MatcherOption {
	return func(m *Matcher) { m.minSamples = n }
}

// NewMatcher creates a Matcher with the default gates.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		similarityThreshold: DefaultSimilarityThreshold,
		minSamples:          DefaultMinSamples,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BestMatch returns the best-scoring applicable template among the
// candidates, or ok=false when none passes both gates. On a rejection the
// returned score is the best seen across all candidates, so callers can
// report the near miss.
func (m *Matcher) BestMatch(doc *schema.ParsedDocument, candidates []*Template) (*Template, float64, bool) {
	var (
		best      *Template
		bestScore float64
		topScore  float64
	)
	docTokens := anchorTokens(doc)
	docText := doc.Text()

	for _, t := range candidates {
		score := m.score(docTokens, docText, t)
		if score > topScore {
			topScore = score
		}
		// Under-trained templates never win: a fresh sibling must not
		// shadow a template that passes both gates.
		if t.SampleCount < m.minSamples {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	if best == nil || bestScore < m.similarityThreshold {
		return nil, topScore, false
	}
	return best, bestScore, true
}

// Score computes the similarity between a document and one template.
func (m *Matcher) Score(doc *schema.ParsedDocument, t *Template) float64 {
	return m.score(anchorTokens(doc), doc.Text(), t)
}

func (m *Matcher) score(docTokens map[string]struct{}, docText string, t *Template) float64 {
	structural := jaccard(t.SignatureSet(), docTokens)
	tokens := cappedTokenJaccard(t.TrainingText, docText)
	chars := lcsRatio(normalizeText(t.TrainingText), normalizeText(docText))
	return weightStructural*structural + weightTokens*tokens + weightCharacters*chars
}

// anchorTokens collects the distinctive label-like tokens of a document:
// non-stopword tokens from short elements, digits stripped. Short elements
// are where printed field labels live; long paragraphs mostly carry values
// and prose.
func anchorTokens(doc *schema.ParsedDocument) map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range doc.Elements {
		if len(tokenize(e.Text)) > 6 {
			continue
		}
		for _, tok := range contentTokens(digitsRe.ReplaceAllString(e.Text, "")) {
			set[tok] = struct{}{}
		}
	}
	return set
}

// cappedTokenJaccard compares the token multisets of two texts, keeping
// only the topTokens most frequent tokens on each side.
func cappedTokenJaccard(a, b string) float64 {
	fa := capFrequencies(tokenFrequencies(a))
	fb := capFrequencies(tokenFrequencies(b))
	if len(fa) == 0 && len(fb) == 0 {
		return 0
	}

	var inter, union int
	for tok, ca := range fa {
		if cb, ok := fb[tok]; ok {
			inter += min(ca, cb)
			union += max(ca, cb)
		} else {
			union += ca
		}
	}
	for tok, cb := range fb {
		if _, ok := fa[tok]; !ok {
			union += cb
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func capFrequencies(freq map[string]int) map[string]int {
	if len(freq) <= topTokens {
		return freq
	}
	type tf struct {
		tok   string
		count int
	}
	all := make([]tf, 0, len(freq))
	for tok, c := range freq {
		all = append(all, tf{tok, c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].tok < all[j].tok
	})
	capped := make(map[string]int, topTokens)
	for _, e := range all[:topTokens] {
		capped[e.tok] = e.count
	}
	return capped
}

// lcsRatio is the longest-common-subsequence ratio of the first
// charPrefixBytes of each text: 2·LCS/(len(a)+len(b)).
func lcsRatio(a, b string) float64 {
	ra := truncRunes(a, charPrefixBytes)
	rb := truncRunes(b, charPrefixBytes)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

func truncRunes(s string, maxBytes int) []rune {
	if len(s) > maxBytes {
		// Cut on a rune boundary.
		for maxBytes > 0 && s[maxBytes]&0xC0 == 0x80 {
			maxBytes--
		}
		s = s[:maxBytes]
	}
	return []rune(s)
}
