// Package diagnostics offers small debugging helpers around a decode's
// output that are not part of the core beam-search algorithm: in
// particular, suggesting in-vocabulary corrections for words a decode
// produced that the attached lexicon does not recognize.
//
// The matching algorithm is the two-stage one of a phonetic entity matcher:
// Double Metaphone code overlap narrows the candidate set, then
// Jaro-Winkler ranks within it.
package diagnostics

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// defaultPhoneticThreshold is the minimum Jaro-Winkler score required to
	// accept a phonetically-matched suggestion.
	defaultPhoneticThreshold = 0.70
	// defaultFuzzyThreshold is the minimum Jaro-Winkler score required to
	// accept a suggestion found only by pure string similarity, with no
	// phonetic overlap.
	defaultFuzzyThreshold = 0.85
)

// Option configures a [Suggester].
type Option func(*Suggester)

// WithPhoneticThreshold overrides the default 0.70 phonetic-match threshold.
func WithPhoneticThreshold(threshold float64) Option {
	return func(s *Suggester) { s.phoneticThreshold = threshold }
}

// WithFuzzyThreshold overrides the default 0.85 fuzzy-fallback threshold.
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Suggester) { s.fuzzyThreshold = threshold }
}

// Suggester proposes in-vocabulary replacements for a word a decode
// produced that fell outside the lexicon. It is read-only after
// construction and safe for concurrent use.
type Suggester struct {
	vocabulary        []string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a Suggester over vocabulary — typically the same word list a
// [github.com/MrWong99/beamctc/pkg/lexicon.Lexicon] was built from, or an
// [github.com/MrWong99/beamctc/pkg/lm.NGramModel]'s Vocabulary().
func New(vocabulary []string, opts ...Option) *Suggester {
	s := &Suggester{
		vocabulary:        vocabulary,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Suggestion is one ranked replacement candidate for a decoded word.
type Suggestion struct {
	Word       string
	Confidence float64
	Phonetic   bool
}

// Suggest returns the best in-vocabulary replacement for word, or the zero
// [Suggestion] and false if none reaches the configured thresholds.
func (s *Suggester) Suggest(word string) (Suggestion, bool) {
	wordLower := strings.ToLower(strings.TrimSpace(word))
	if wordLower == "" || len(s.vocabulary) == 0 {
		return Suggestion{}, false
	}
	wordPrimary, wordSecondary := matchr.DoubleMetaphone(wordLower)

	var best Suggestion
	var bestPhonetic bool
	for _, candidate := range s.vocabulary {
		candidateLower := strings.ToLower(strings.TrimSpace(candidate))
		if candidateLower == "" || candidateLower == wordLower {
			continue
		}
		candPrimary, candSecondary := matchr.DoubleMetaphone(candidateLower)
		phoneticMatch := codeOverlap(wordPrimary, wordSecondary, candPrimary, candSecondary)
		score := matchr.JaroWinkler(wordLower, candidateLower, false)

		if phoneticMatch {
			if score >= s.phoneticThreshold && (!bestPhonetic || score > best.Confidence) {
				best = Suggestion{Word: candidate, Confidence: score, Phonetic: true}
				bestPhonetic = true
			}
		} else if !bestPhonetic && score >= s.fuzzyThreshold && score > best.Confidence {
			best = Suggestion{Word: candidate, Confidence: score, Phonetic: false}
		}
	}

	if best.Word == "" {
		return Suggestion{}, false
	}
	return best, true
}

// SuggestAll calls [Suggester.Suggest] for every word in words and returns
// one corrected slice. Words with no accepted suggestion pass through
// unchanged.
func (s *Suggester) SuggestAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		if sug, ok := s.Suggest(w); ok {
			out[i] = sug.Word
		} else {
			out[i] = w
		}
	}
	return out
}

func codeOverlap(p1, s1, p2, s2 string) bool {
	if p1 != "" && (p1 == p2 || p1 == s2) {
		return true
	}
	if s1 != "" && (s1 == p2 || s1 == s2) {
		return true
	}
	return false
}
