// Package decoder implements the CTC prefix-beam-search recurrence: the
// per-frame beam update (spec §4.4) and the final LM tail-rescoring and
// top-K emission (spec §4.5), built on [pkg/trie] and the optional
// [pkg/lm.Scorer]/lexicon collaborators.
package decoder

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/beamctc/internal/observe"
	"github.com/MrWong99/beamctc/pkg/alphabet"
	"github.com/MrWong99/beamctc/pkg/lm"
	"github.com/MrWong99/beamctc/pkg/logmath"
	"github.com/MrWong99/beamctc/pkg/trie"
)

// Output is one emitted decode result: a CTC-collapsed label sequence with
// per-label timesteps and an approximate acoustic confidence.
type Output struct {
	// Tokens are raw alphabet label ids, blank-free and collapse-applied.
	Tokens []int
	// Timesteps is the frame at which each token was first best observed.
	// Non-decreasing, one per token.
	Timesteps []int
	// Confidence is the negation of the approximate acoustic-only
	// log-probability of this path (any LM/insertion contribution
	// subtracted back out), so a lower value means a more likely path.
	Confidence float64
}

// DecoderState owns one decode's trie and beam. It is not safe for
// concurrent use (spec §5): a DecoderState belongs to exactly one
// goroutine/batch job for its whole lifetime.
type DecoderState struct {
	alphabet *alphabet.Alphabet
	scorer   lm.Scorer

	tr          *trie.Trie
	beam        []trie.NodeID
	absTimeStep int

	beamSize   int
	cutoffProb float64
	cutoffTopN int

	metrics       *observe.Metrics
	lastBeamWidth int64

	rejectedWords    []string
	rejectedWordsSet map[string]bool
}

// New creates a decoder state. scorer may be nil (no LM rescoring); dict may
// be nil (no lexicon constraint). When dict is non-nil the trie's root is
// attached to it via alphabet's FST arc-label mapping, per spec invariant 3.
// metrics may be nil, in which case the beam recurrence records nothing.
func New(a *alphabet.Alphabet, beamSize int, cutoffProb float64, cutoffTopN int, scorer lm.Scorer, dict trie.Matcher, metrics *observe.Metrics) *DecoderState {
	var tr *trie.Trie
	if dict != nil {
		tr = trie.NewWithDictionary(dict, a.FSTArcLabel)
	} else {
		tr = trie.New()
	}
	return &DecoderState{
		alphabet:   a,
		scorer:     scorer,
		tr:         tr,
		beam:       []trie.NodeID{tr.Root()},
		beamSize:   beamSize,
		cutoffProb: cutoffProb,
		cutoffTopN: cutoffTopN,
		metrics:    metrics,
	}
}

// Feed advances the decode by len(probs) frames, each probs[t] a length-C
// probability row (blank at alphabet.BlankID()). Feed may be called
// repeatedly before [DecoderState.Finish] (spec §6 streaming API).
func (d *DecoderState) Feed(probs [][]float64) {
	for _, row := range probs {
		d.next(row)
		d.absTimeStep++
	}
}

// next runs one frame of the beam recurrence, spec §4.4 steps 1-5.
func (d *DecoderState) next(row []float64) {
	blankID := d.alphabet.BlankID()

	sort.SliceStable(d.beam, func(i, j int) bool {
		return d.tr.Score(d.beam[i]) > d.tr.Score(d.beam[j])
	})
	n := len(d.beam)
	if n > d.beamSize {
		n = d.beamSize
	}
	topBeam := d.beam[:n]
	fullBeam := n == d.beamSize

	minCutoff := logmath.NegInf
	if d.scorer != nil && n > 0 {
		insertion := math.Max(0, d.scorer.Beta())
		minCutoff = d.tr.Score(topBeam[n-1]) + math.Log(row[blankID]) - insertion
	}

	labels := logmath.PrunedTopK(row, blankID, d.cutoffProb, d.cutoffTopN)
	if d.metrics != nil {
		d.metrics.RecordCutoffRejection(context.Background(), int64(len(row)-len(labels)))
	}

	for _, lp := range labels {
		c := lp.Index
		logProbC := lp.LogProb

		for _, p := range topBeam {
			pScore := d.tr.Score(p)
			if fullBeam && logProbC+pScore < minCutoff {
				break
			}

			if c == blankID {
				d.tr.AddLogProbBCur(p, logProbC+pScore)
				continue
			}

			pChar := d.tr.Character(p)
			if c == pChar {
				d.tr.AddLogProbNBCur(p, logProbC+d.tr.LogProbNBPrev(p))
			}

			child, ok := d.tr.Extend(p, c, d.absTimeStep, logProbC, true)
			if !ok {
				if d.metrics != nil {
					d.metrics.RecordDictionaryRejection(context.Background())
				}
				d.recordRejectedWord(p, c)
				continue
			}

			var logP float64
			switch {
			case c == pChar && d.tr.LogProbBPrev(p) > logmath.NegInf:
				logP = logProbC + d.tr.LogProbBPrev(p)
			case c != pChar:
				logP = logProbC + pScore
			default:
				logP = logmath.NegInf
			}

			if d.scorer != nil && logP > logmath.NegInf {
				isRoot := d.tr.IsRoot(p)
				if d.scorer.IsScoringBoundary(isRoot, pChar, c, d.alphabet) {
					target := p
					if d.scorer.IsUTF8Mode() {
						target = child
					}
					logP += d.scorerTailScore(target)
				}
			}

			d.tr.AddLogProbNBCur(child, logP)
		}
	}

	d.beam = d.tr.Collect()
	sort.SliceStable(d.beam, func(i, j int) bool {
		return d.tr.Score(d.beam[i]) > d.tr.Score(d.beam[j])
	})
	if len(d.beam) > d.beamSize {
		pruned := len(d.beam) - d.beamSize
		for _, id := range d.beam[d.beamSize:] {
			d.tr.Remove(id)
		}
		d.beam = d.beam[:d.beamSize]
		if d.metrics != nil {
			d.metrics.RecordPruned(context.Background(), int64(pruned))
		}
	}
	if d.metrics != nil {
		width := int64(len(d.beam))
		d.metrics.BeamWidth.Add(context.Background(), width-d.lastBeamWidth)
		d.lastBeamWidth = width
	}
}

// scorerTailScore computes alpha*get_log_cond_prob(ngram) + beta for the
// scored unit completing at target's path, per spec §4.4 step 3's LM fold-in.
func (d *DecoderState) scorerTailScore(target trie.NodeID) float64 {
	start := time.Now()
	labels, _ := d.tr.Path(target)
	units := d.scorer.SplitLabelsIntoScoredUnits(labels, d.alphabet)
	ngram, bos := d.scorer.MakeNgram(units)
	lmScore := d.scorer.Alpha() * d.scorer.GetLogCondProb(ngram, bos, false)
	if d.metrics != nil {
		d.metrics.LMScoreDuration.Record(context.Background(), time.Since(start).Seconds())
	}
	return lmScore + d.scorer.Beta()
}

// recordRejectedWord captures the in-progress word (since the last space,
// or since the start of the utterance) that the lexicon just refused to
// extend with label c, for later off-the-hot-path diagnostic lookup via
// [DecoderState.RejectedWords]. It never influences the beam itself.
func (d *DecoderState) recordRejectedWord(prefix trie.NodeID, c int) {
	labels, _, _ := d.tr.PrevWord(prefix, d.alphabet.SpaceID())
	if len(labels) == 0 && c == d.alphabet.SpaceID() {
		return
	}
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(d.alphabet.StringFromLabel(l))
	}
	if c != d.alphabet.SpaceID() {
		b.WriteString(d.alphabet.StringFromLabel(c))
	}
	word := b.String()
	if word == "" {
		return
	}
	if d.rejectedWordsSet == nil {
		d.rejectedWordsSet = make(map[string]bool)
	}
	if d.rejectedWordsSet[word] {
		return
	}
	d.rejectedWordsSet[word] = true
	d.rejectedWords = append(d.rejectedWords, word)
}

// RejectedWords returns the distinct in-progress words the attached
// lexicon refused to extend over the course of this decode, in first-seen
// order. Empty when no dictionary is attached or nothing was rejected.
// Intended for [github.com/MrWong99/beamctc/pkg/diagnostics] to propose
// corrections after the fact — the beam recurrence itself never consults
// this list.
func (d *DecoderState) RejectedWords() []string {
	return d.rejectedWords
}

type rankedPrefix struct {
	id          trie.NodeID
	rescored    float64
	depth       int
	timestepSum int
}

// Finish performs final rescoring (spec §4.5) and returns the top topPaths
// outputs. It leaves the beam and trie unchanged, so it may be called again
// (the streaming server calls it after every message for a partial result);
// it does remove this decoder's width from the BeamWidth gauge, which the
// next Feed adds back.
func (d *DecoderState) Finish(topPaths int) []Output {
	if d.metrics != nil && d.lastBeamWidth != 0 {
		d.metrics.BeamWidth.Add(context.Background(), -d.lastBeamWidth)
		d.lastBeamWidth = 0
	}
	candidates := append([]trie.NodeID{}, d.beam...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return d.tr.Score(candidates[i]) > d.tr.Score(candidates[j])
	})
	if len(candidates) > d.beamSize {
		candidates = candidates[:d.beamSize]
	}

	ranked := make([]rankedPrefix, 0, len(candidates))
	for _, id := range candidates {
		labels, timesteps := d.tr.Path(id)
		score := d.tr.Score(id)

		if d.scorer != nil {
			if len(labels) == 0 {
				score = lm.OOVScore
			} else if !d.endsAtScoringBoundary(id) {
				score += d.scorerTailScore(id)
			}
		}

		tsum := 0
		for _, ts := range timesteps {
			tsum += ts
		}
		ranked = append(ranked, rankedPrefix{id: id, rescored: score, depth: len(labels), timestepSum: tsum})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.rescored != b.rescored {
			return a.rescored > b.rescored
		}
		if a.depth != b.depth {
			return a.depth > b.depth
		}
		return a.timestepSum < b.timestepSum
	})

	if topPaths > len(ranked) {
		topPaths = len(ranked)
	}
	out := make([]Output, 0, topPaths)
	for _, r := range ranked[:topPaths] {
		labels, timesteps := d.tr.Path(r.id)
		confidence := -r.rescored
		if d.scorer != nil {
			units := d.scorer.SplitLabelsIntoScoredUnits(labels, d.alphabet)
			approxCTC := r.rescored - float64(len(units))*d.scorer.Beta() - d.scorer.Alpha()*d.scorer.GetSentLogProb(units)
			confidence = -approxCTC
		}
		out = append(out, Output{Tokens: labels, Timesteps: timesteps, Confidence: confidence})
	}
	return out
}

// endsAtScoringBoundary reports whether id's own last label, appended to its
// parent, already completed a scored unit — i.e. whether it was already
// scored during [DecoderState.next], so [DecoderState.Finish] must not score
// it again (spec §9, "must not double-score").
func (d *DecoderState) endsAtScoringBoundary(id trie.NodeID) bool {
	parent := d.tr.Parent(id)
	return d.scorer.IsScoringBoundary(d.tr.IsRoot(parent), d.tr.Character(parent), d.tr.Character(id), d.alphabet)
}
