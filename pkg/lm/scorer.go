// Package lm defines the external-scorer contract spec §4.3 draws around
// the n-gram language model and lexicon rescoring, plus a reference
// backoff n-gram implementation.
//
// Loading a real KenLM-format binary model is explicitly out of scope per
// spec §1 ("loading the KenLM-style n-gram model... treated as external
// collaborators, specified only at their interface"); no n-gram/KenLM
// library appears anywhere in this module's reference corpus. [NGramModel]
// exists so the decoder and its tests have a working, from-scratch [Scorer]
// to exercise the rescoring boundary logic in [pkg/decoder] against.
package lm

import "github.com/MrWong99/beamctc/pkg/alphabet"

// Reserved tokens, carried verbatim from the original decoder's scorer.h
// (OOV_SCORE, START_TOKEN, UNK_TOKEN, END_TOKEN) since spec §4.5 references
// OOV_SCORE by name without defining its value.
const (
	OOVScore   = -1000.0
	StartToken = "<s>"
	UnkToken   = "<unk>"
	EndToken   = "</s>"
)

// Scorer is the LM façade the beam search consults, per spec §4.3. All
// methods must be safe for concurrent read-only use: a Scorer is shared
// read-only across every job in a batch (spec §5), while each job clones
// its own lexicon/trie state.
type Scorer interface {
	// Alpha is the language-model weight.
	Alpha() float64
	// Beta is the per-scored-unit insertion weight.
	Beta() float64
	// MaxOrder is the n-gram order.
	MaxOrder() int
	// IsUTF8Mode reports whether this is a character-based (true) or
	// word-based (false) LM.
	IsUTF8Mode() bool

	// IsScoringBoundary reports whether appending nextLabel to a prefix
	// (whose own last label is prefixLastLabel, or which is empty when
	// prefixEmpty) completes a scorable unit. Character LMs return true on
	// every step; word LMs return true exactly when nextLabel is the space
	// label, the prefix is non-empty, and the prefix does not itself
	// already end in space.
	IsScoringBoundary(prefixEmpty bool, prefixLastLabel, nextLabel int, a *alphabet.Alphabet) bool

	// SplitLabelsIntoScoredUnits splits a raw label sequence into the
	// scored units this Scorer operates on: words (split on the alphabet's
	// space label) for a word LM, or graphemes (split on codepoint
	// boundaries) for a character LM.
	SplitLabelsIntoScoredUnits(labels []int, a *alphabet.Alphabet) []string

	// MakeNgram returns up to MaxOrder scored units: the units preceding
	// the current one plus the current one, padding [StartToken] on the
	// left when units is shorter than MaxOrder. bos reports whether
	// padding occurred (the ngram starts at utterance start).
	MakeNgram(units []string) (ngram []string, bos bool)

	// GetLogCondProb returns the conditional log-probability of ngram's
	// last element given the preceding ones. eos additionally folds in the
	// probability of the sentence ending immediately after.
	GetLogCondProb(ngram []string, bos, eos bool) float64

	// GetSentLogProb returns the full-sentence log-probability of words,
	// framed with beginning- and end-of-sentence tokens. Used only at
	// final rescoring (spec §4.5).
	GetSentLogProb(words []string) float64
}
