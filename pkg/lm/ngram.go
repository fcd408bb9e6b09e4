package lm

import (
	"fmt"
	"math"
	"strings"

	"github.com/MrWong99/beamctc/pkg/alphabet"
)

// backoffFactor is the constant discount applied when a higher-order
// n-gram is unseen and the model backs off to a shorter context ("stupid
// backoff", Brants et al. 2007 — chosen because it needs no held-out
// discount estimation, appropriate for a from-scratch reference model).
const backoffFactor = 0.4

// unigramFloor is the log-probability assigned to a completely unseen
// unigram, standing in for KenLM's <unk> probability.
const unigramFloor = -20.0

// NGramModel is a simple count-based backoff language model implementing
// [Scorer]. It is the reference LM used by this module's tests and CLI;
// production use would substitute a real KenLM-backed Scorer (out of scope
// here, per spec §1).
type NGramModel struct {
	order    int
	utf8Mode bool
	alpha    float64
	beta     float64

	ngramCounts   map[string]int
	contextCounts map[string]int
	vocab         map[string]struct{}
	unigramTotal  int
}

// NewNGramModel creates an untrained model of the given order. utf8Mode
// selects character-based (true) or word-based (false) scoring.
func NewNGramModel(order int, utf8Mode bool) *NGramModel {
	if order < 1 {
		order = 1
	}
	return &NGramModel{
		order:         order,
		utf8Mode:      utf8Mode,
		ngramCounts:   make(map[string]int),
		contextCounts: make(map[string]int),
		vocab:         make(map[string]struct{}),
	}
}

// SetWeights sets alpha (LM weight) and beta (insertion weight), per the
// original's Scorer::reset_params — carried so callers can re-decode the
// same beam state while sweeping LM weights without reloading the model.
func (m *NGramModel) SetWeights(alpha, beta float64) {
	m.alpha = alpha
	m.beta = beta
}

// Train accumulates n-gram counts from sentences, each a sequence of
// already-tokenized scored units (words, or single-codepoint strings for a
// character model) with no bos/eos framing — Train pads each sentence with
// order-1 [StartToken]s and one trailing [EndToken] itself.
func (m *NGramModel) Train(sentences [][]string) {
	for _, sentence := range sentences {
		tokens := make([]string, 0, len(sentence)+m.order)
		for i := 0; i < m.order-1; i++ {
			tokens = append(tokens, StartToken)
		}
		tokens = append(tokens, sentence...)
		tokens = append(tokens, EndToken)

		for _, w := range sentence {
			m.vocab[w] = struct{}{}
		}

		for n := 1; n <= m.order; n++ {
			for i := 0; i+n <= len(tokens); i++ {
				gram := tokens[i : i+n]
				m.ngramCounts[ngramKey(gram)]++
				m.contextCounts[ngramKey(gram[:n-1])]++
				if n == 1 {
					m.unigramTotal++
				}
			}
		}
	}
}

// Vocabulary returns the distinct scored units seen during training,
// excluding the reserved bos/eos tokens — carried from the original's
// RetrieveStrEnumerateVocab, which enumerates the LM's vocabulary while
// loading so the lexicon FST can be built from exactly the words the LM
// knows.
func (m *NGramModel) Vocabulary() []string {
	out := make([]string, 0, len(m.vocab))
	for w := range m.vocab {
		out = append(out, w)
	}
	return out
}

func ngramKey(tokens []string) string {
	return strings.Join(tokens, "\x1f")
}

func (m *NGramModel) Alpha() float64   { return m.alpha }
func (m *NGramModel) Beta() float64    { return m.beta }
func (m *NGramModel) MaxOrder() int    { return m.order }
func (m *NGramModel) IsUTF8Mode() bool { return m.utf8Mode }

// IsScoringBoundary implements [Scorer.IsScoringBoundary] per spec §4.3.
func (m *NGramModel) IsScoringBoundary(prefixEmpty bool, prefixLastLabel, nextLabel int, a *alphabet.Alphabet) bool {
	if m.utf8Mode {
		return true
	}
	spaceID := a.SpaceID()
	return nextLabel == spaceID && !prefixEmpty && prefixLastLabel != spaceID
}

// SplitLabelsIntoScoredUnits implements [Scorer.SplitLabelsIntoScoredUnits].
func (m *NGramModel) SplitLabelsIntoScoredUnits(labels []int, a *alphabet.Alphabet) []string {
	if m.utf8Mode {
		return splitByCodepoint(labels, a)
	}
	return splitBySpace(labels, a)
}

func splitByCodepoint(labels []int, a *alphabet.Alphabet) []string {
	var out []string
	var cur strings.Builder
	for _, l := range labels {
		if a.IsCodepointBoundary(l) && cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(a.StringFromLabel(l))
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func splitBySpace(labels []int, a *alphabet.Alphabet) []string {
	spaceID := a.SpaceID()
	var out []string
	var cur strings.Builder
	for _, l := range labels {
		if l == spaceID {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteString(a.StringFromLabel(l))
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// MakeNgram implements [Scorer.MakeNgram].
func (m *NGramModel) MakeNgram(units []string) (ngram []string, bos bool) {
	if len(units) >= m.order {
		ngram = append([]string{}, units[len(units)-m.order:]...)
		return ngram, false
	}
	pad := m.order - len(units)
	ngram = make([]string, 0, m.order)
	for i := 0; i < pad; i++ {
		ngram = append(ngram, StartToken)
	}
	ngram = append(ngram, units...)
	return ngram, true
}

// GetLogCondProb implements [Scorer.GetLogCondProb] via stupid backoff.
func (m *NGramModel) GetLogCondProb(ngram []string, bos, eos bool) float64 {
	if len(ngram) == 0 {
		return unigramFloor
	}
	lp := m.condProb(ngram)
	if eos {
		tail := append(append([]string{}, ngram[1:]...), EndToken)
		if len(tail) > m.order {
			tail = tail[len(tail)-m.order:]
		}
		lp += m.condProb(tail)
	}
	return lp
}

// GetSentLogProb implements [Scorer.GetSentLogProb].
func (m *NGramModel) GetSentLogProb(words []string) float64 {
	tokens := make([]string, 0, len(words)+m.order)
	for i := 0; i < m.order-1; i++ {
		tokens = append(tokens, StartToken)
	}
	tokens = append(tokens, words...)
	tokens = append(tokens, EndToken)

	var total float64
	for i := m.order - 1; i < len(tokens); i++ {
		start := i - (m.order - 1)
		if start < 0 {
			start = 0
		}
		total += m.condProb(tokens[start : i+1])
	}
	return total
}

// condProb computes log P(tokens[last] | tokens[:last]) recursively via
// stupid backoff: fall back to a shorter context, discounted by
// [backoffFactor], whenever the full context was unseen in training.
func (m *NGramModel) condProb(tokens []string) float64 {
	if len(tokens) == 0 {
		return unigramFloor
	}
	if len(tokens) == 1 {
		c := m.ngramCounts[ngramKey(tokens)]
		if c == 0 || m.unigramTotal == 0 {
			return unigramFloor
		}
		return math.Log(float64(c) / float64(m.unigramTotal))
	}

	ctxKey := ngramKey(tokens[:len(tokens)-1])
	ngKey := ngramKey(tokens)
	ctxCount := m.contextCounts[ctxKey]
	ngCount := m.ngramCounts[ngKey]
	if ctxCount > 0 && ngCount > 0 {
		return math.Log(float64(ngCount) / float64(ctxCount))
	}
	return math.Log(backoffFactor) + m.condProb(tokens[1:])
}

// String describes the model for debugging/logging.
func (m *NGramModel) String() string {
	return fmt.Sprintf("NGramModel(order=%d, utf8=%v, alpha=%.3f, beta=%.3f, vocab=%d)",
		m.order, m.utf8Mode, m.alpha, m.beta, len(m.vocab))
}

var _ Scorer = (*NGramModel)(nil)
