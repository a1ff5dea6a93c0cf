// Package vocab maps loosely spelled role and department names onto the
// values actually present in storage.
package vocab

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultThreshold is the normalized edit distance a fuzzy match must stay
// strictly below. Lower is stricter.
const DefaultThreshold = 0.4

// Vocabulary is the live set of distinct role and department values.
// It is read at the start of every request and never cached.
type Vocabulary struct {
	Roles       []string `json:"roles"`
	Departments []string `json:"departments"`
}

// Kind classifies how a Match was obtained.
type Kind int

const (
	// Literal means nothing was close enough; Value is the title-cased input.
	Literal Kind = iota
	// Fuzzy means Value is the closest vocabulary entry within the threshold.
	Fuzzy
	// Exact means Value equals the input ignoring case.
	Exact
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Fuzzy:
		return "fuzzy"
	}
	return "literal"
}

// Match is the result of matching a candidate against a vocabulary.
type Match struct {
	Value string
	Kind  Kind
	// Score is the normalized distance of the chosen entry (0 for Exact,
	// 1 for Literal).
	Score float64
}

// Confident reports whether Value came from the vocabulary.
func (m Match) Confident() bool { return m.Kind != Literal }

// Matcher performs edit-distance matching with a fixed threshold.
// A Matcher is safe for concurrent use.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a Matcher. A non-positive threshold selects DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Match maps candidate onto the closest entry of vocabulary.
func (m *Matcher) Match(candidate string, vocabulary []string) Match {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return Match{Kind: Literal, Score: 1}
	}

	for _, v := range vocabulary {
		if strings.EqualFold(v, candidate) {
			return Match{Value: v, Kind: Exact}
		}
	}

	best, bestScore := "", 1.0
	lower := strings.ToLower(candidate)
	for _, v := range vocabulary {
		if v == "" {
			continue
		}
		score := Distance(lower, strings.ToLower(v))
		if score < bestScore {
			best, bestScore = v, score
		}
	}
	if best != "" && bestScore < m.threshold {
		return Match{Value: best, Kind: Fuzzy, Score: bestScore}
	}

	// Casers are stateful, so one is built per call. Title-casing an
	// already title-cased value is a no-op, which keeps matching idempotent.
	return Match{Value: cases.Title(language.English).String(candidate), Kind: Literal, Score: 1}
}

// MatchString is Match collapsed to its value.
func (m *Matcher) MatchString(candidate string, vocabulary []string) string {
	return m.Match(candidate, vocabulary).Value
}

// Distance is the Levenshtein distance between a and b divided by the rune
// length of the longer string. It is 0 for identical strings and 1 when
// nothing is shared.
func Distance(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	return float64(levenshtein([]rune(a), []rune(b))) / float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
