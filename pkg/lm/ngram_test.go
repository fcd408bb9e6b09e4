package lm_test

import (
	"math"
	"testing"

	"github.com/MrWong99/beamctc/pkg/alphabet"
	"github.com/MrWong99/beamctc/pkg/lm"
)

func TestNGramModelTrainAndVocabulary(t *testing.T) {
	m := lm.NewNGramModel(2, false)
	m.Train([][]string{
		{"the", "cat", "sat"},
		{"the", "dog", "sat"},
	})

	vocab := m.Vocabulary()
	seen := map[string]bool{}
	for _, w := range vocab {
		seen[w] = true
	}
	for _, w := range []string{"the", "cat", "sat", "dog"} {
		if !seen[w] {
			t.Errorf("Vocabulary() missing %q", w)
		}
	}
	if seen[lm.StartToken] || seen[lm.EndToken] {
		t.Errorf("Vocabulary() should not include bos/eos tokens")
	}
}

func TestNGramModelSeenBigramMoreLikelyThanUnseen(t *testing.T) {
	m := lm.NewNGramModel(2, false)
	m.Train([][]string{
		{"the", "cat", "sat"},
		{"the", "cat", "sat"},
		{"the", "dog", "ran"},
	})

	seen := m.GetLogCondProb([]string{"the", "cat"}, false, false)
	unseen := m.GetLogCondProb([]string{"the", "zzz"}, false, false)
	if !(seen > unseen) {
		t.Errorf("seen bigram logprob %v should exceed unseen %v", seen, unseen)
	}
}

func TestNGramModelBackoffNeverReturnsPositiveInfinityOrNaN(t *testing.T) {
	m := lm.NewNGramModel(3, false)
	m.Train([][]string{{"a", "b", "c"}})

	lp := m.GetLogCondProb([]string{"x", "y", "z"}, false, false)
	if math.IsNaN(lp) || math.IsInf(lp, 1) {
		t.Fatalf("GetLogCondProb on fully unseen ngram = %v, want finite negative value", lp)
	}
}

func TestNGramModelMakeNgramPadsWithStartToken(t *testing.T) {
	m := lm.NewNGramModel(3, false)
	ngram, bos := m.MakeNgram([]string{"hello"})
	if !bos {
		t.Error("MakeNgram should report bos when padding occurred")
	}
	want := []string{lm.StartToken, lm.StartToken, "hello"}
	if len(ngram) != len(want) {
		t.Fatalf("MakeNgram = %v, want %v", ngram, want)
	}
	for i := range want {
		if ngram[i] != want[i] {
			t.Errorf("MakeNgram[%d] = %q, want %q", i, ngram[i], want[i])
		}
	}
}

func TestNGramModelMakeNgramNoBosWhenFull(t *testing.T) {
	m := lm.NewNGramModel(2, false)
	ngram, bos := m.MakeNgram([]string{"a", "b", "c"})
	if bos {
		t.Error("MakeNgram should not report bos when units already fill the order")
	}
	if len(ngram) != 2 || ngram[0] != "b" || ngram[1] != "c" {
		t.Errorf("MakeNgram = %v, want [b c]", ngram)
	}
}

func TestNGramModelIsScoringBoundaryWordMode(t *testing.T) {
	a, _ := alphabet.New([]string{"a", "b", " "}, 2)
	m := lm.NewNGramModel(2, false)

	if !m.IsScoringBoundary(false, 0, 2, a) {
		t.Error("space label after non-empty non-space prefix should be a boundary")
	}
	if m.IsScoringBoundary(true, 0, 2, a) {
		t.Error("space label on an empty prefix should not be a boundary")
	}
	if m.IsScoringBoundary(false, 0, 0, a) {
		t.Error("non-space label should not be a boundary")
	}
}

func TestNGramModelIsScoringBoundaryUTF8Mode(t *testing.T) {
	a, _ := alphabet.New([]string{"a", "b"}, -1)
	m := lm.NewNGramModel(3, true)
	if !m.IsScoringBoundary(false, 0, 1, a) {
		t.Error("utf8 mode should treat every step as a scoring boundary")
	}
}

func TestNGramModelSplitLabelsIntoScoredUnitsWordMode(t *testing.T) {
	a, _ := alphabet.New([]string{"h", "i", " ", "t", "h", "e", "r", "e"}, 2)
	m := lm.NewNGramModel(2, false)
	units := m.SplitLabelsIntoScoredUnits([]int{0, 1, 2, 3, 4, 5, 6, 7}, a)
	if len(units) != 2 || units[0] != "hi" {
		t.Errorf("SplitLabelsIntoScoredUnits = %v, want first unit 'hi'", units)
	}
}

func TestNGramModelGetSentLogProbFinite(t *testing.T) {
	m := lm.NewNGramModel(2, false)
	m.Train([][]string{{"the", "cat", "sat"}})
	lp := m.GetSentLogProb([]string{"the", "cat", "sat"})
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		t.Fatalf("GetSentLogProb = %v, want finite", lp)
	}
}

func TestNGramModelSetWeights(t *testing.T) {
	m := lm.NewNGramModel(2, false)
	m.SetWeights(0.75, 1.5)
	if m.Alpha() != 0.75 {
		t.Errorf("Alpha() = %v, want 0.75", m.Alpha())
	}
	if m.Beta() != 1.5 {
		t.Errorf("Beta() = %v, want 1.5", m.Beta())
	}
}

func TestNGramModelMaxOrderAndUTF8Mode(t *testing.T) {
	m := lm.NewNGramModel(4, true)
	if m.MaxOrder() != 4 {
		t.Errorf("MaxOrder() = %d, want 4", m.MaxOrder())
	}
	if !m.IsUTF8Mode() {
		t.Error("IsUTF8Mode() should be true")
	}
}
