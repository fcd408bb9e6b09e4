// Package logmath provides the numerically-stable log-domain arithmetic the
// beam search recurrence relies on: log-sum-exp addition and a pruned top-K
// selection over a single frame's class probabilities.
package logmath

import (
	"math"
	"sort"
)

// NegInf is the additive identity of [LogSumExp]: log(0).
var NegInf = math.Inf(-1)

// LogSumExp returns log(exp(a) + exp(b)) computed in a numerically stable
// way. It returns a if b is -Inf, b if a is -Inf, and -Inf if both are -Inf.
func LogSumExp(a, b float64) float64 {
	if a == math.Inf(-1) {
		return b
	}
	if b == math.Inf(-1) {
		return a
	}
	if a > b {
		return a + math.Log1p(math.Exp(b-a))
	}
	return b + math.Log1p(math.Exp(a-b))
}

// IndexProb pairs a class index with its log-probability. Returned by
// [PrunedTopK] in increasing-index order.
type IndexProb struct {
	Index   int
	LogProb float64
}

// PrunedTopK returns at most cutoffTopN entries of row (a probability
// vector, not log-probabilities) whose cumulative probability mass, taken in
// decreasing order, first reaches cutoffProb. blankID is always included in
// the result regardless of the cutoff, since the blank label's probability
// must be considered at every beam-update step.
//
// Ties are broken by lower index first, making the selection deterministic.
// The returned log-probabilities are math.Log(row[i]); a zero-probability
// entry yields -Inf.
func PrunedTopK(row []float64, blankID int, cutoffProb float64, cutoffTopN int) []IndexProb {
	n := len(row)
	if cutoffTopN > n {
		cutoffTopN = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if row[a] != row[b] {
			return row[a] > row[b]
		}
		return a < b
	})

	out := make([]IndexProb, 0, cutoffTopN+1)
	seenBlank := false
	var mass float64
	for _, idx := range order {
		if len(out) >= cutoffTopN {
			break
		}
		mass += row[idx]
		out = append(out, IndexProb{Index: idx, LogProb: math.Log(row[idx])})
		if idx == blankID {
			seenBlank = true
		}
		if mass >= cutoffProb {
			break
		}
	}

	if !seenBlank && blankID >= 0 && blankID < n {
		out = append(out, IndexProb{Index: blankID, LogProb: math.Log(row[blankID])})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
