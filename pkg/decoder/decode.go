package decoder

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/beamctc/internal/observe"
	"github.com/MrWong99/beamctc/pkg/alphabet"
	"github.com/MrWong99/beamctc/pkg/batch"
	"github.com/MrWong99/beamctc/pkg/lm"
	"github.com/MrWong99/beamctc/pkg/trie"
)

// Options bundles the tunables shared by [Decode] and [DecodeBatch]. Zero
// value is invalid; use [DefaultOptions] as a starting point.
type Options struct {
	BeamSize   int
	CutoffProb float64
	CutoffTopN int
	// TopPaths is the number of ranked outputs to emit per decode. The
	// reference decoder this module is built from hardcodes this to 1;
	// per spec §9's open question, it is parameterized here instead.
	TopPaths int
	Scorer   lm.Scorer
	Dict     trie.Matcher

	// Metrics, if non-nil, receives beam-recurrence and batch-job
	// instrumentation (pruning, cutoff rejections, LM-score latency,
	// per-job batch duration/status). Nil disables all recording.
	Metrics *observe.Metrics
}

// DefaultOptions returns commonly-sensible beam-search tunables: a beam of
// 100, a cumulative-mass cutoff of 1.0 (no mass pruning) considering up to
// 40 labels per frame,
// and a single emitted path.
func DefaultOptions() Options {
	return Options{
		BeamSize:   100,
		CutoffProb: 1.0,
		CutoffTopN: 40,
		TopPaths:   1,
	}
}

// Validate checks the constraints spec §6 places on decode parameters.
func (o Options) Validate(c int) error {
	if o.BeamSize <= 0 || o.BeamSize > 10_000 {
		return fmt.Errorf("decoder: beam_size %d out of range (0,10000]", o.BeamSize)
	}
	if o.CutoffProb <= 0 || o.CutoffProb > 1.0 {
		return fmt.Errorf("decoder: cutoff_prob %v out of range (0,1.0]", o.CutoffProb)
	}
	if o.CutoffTopN <= 0 || o.CutoffTopN > c {
		return fmt.Errorf("decoder: cutoff_top_n %d out of range (0,%d]", o.CutoffTopN, c)
	}
	if o.TopPaths <= 0 {
		return fmt.Errorf("decoder: top_paths %d must be positive", o.TopPaths)
	}
	return nil
}

// Decode runs the full beam search over probs (a T-row, C-column matrix,
// one probability row per frame) and returns the top opts.TopPaths outputs,
// per spec §6's in-memory API.
func Decode(probs [][]float64, a *alphabet.Alphabet, opts Options) ([]Output, error) {
	if len(probs) == 0 {
		return nil, nil
	}
	c := len(probs[0])
	if err := opts.Validate(c); err != nil {
		return nil, err
	}
	for i, row := range probs {
		if len(row) != c {
			return nil, fmt.Errorf("decoder: probs[%d] has %d columns, want %d", i, len(row), c)
		}
	}

	st := New(a, opts.BeamSize, opts.CutoffProb, opts.CutoffTopN, opts.Scorer, opts.Dict, opts.Metrics)
	st.Feed(probs)
	return st.Finish(opts.TopPaths), nil
}

// BatchResult is one batch element's outcome: exactly one of Outputs/Err is
// meaningful, mirroring [batch.Result].
type BatchResult struct {
	Outputs []Output
	Err     error
}

// DecodeBatch decodes B independent, ragged-length sequences concurrently
// over a pool of numWorkers, per spec §4.6. probs[i][:seqLengths[i]] is
// decoded for each i; results preserve input order, and one sequence's
// decode error does not affect any other's (spec §7) — it is reported in
// that element's own [BatchResult.Err] rather than failing the whole batch.
func DecodeBatch(ctx context.Context, probs [][][]float64, seqLengths []int, a *alphabet.Alphabet, numWorkers int, opts Options) ([]BatchResult, error) {
	if len(probs) != len(seqLengths) {
		return nil, fmt.Errorf("decoder: probs has %d sequences, seq_lengths has %d", len(probs), len(seqLengths))
	}
	m := opts.Metrics
	jobs := make([]batch.Job[[]Output], len(probs))
	for i := range probs {
		i := i
		jobs[i] = func(ctx context.Context) ([]Output, error) {
			n := seqLengths[i]
			if n < 0 || n > len(probs[i]) {
				if m != nil {
					m.RecordBatchJob(ctx, "error")
				}
				return nil, fmt.Errorf("decoder: seq_lengths[%d]=%d out of range [0,%d]", i, n, len(probs[i]))
			}

			if m != nil {
				m.ActiveBatchWorkers.Add(ctx, 1)
				defer m.ActiveBatchWorkers.Add(ctx, -1)
			}
			start := time.Now()
			out, err := Decode(probs[i][:n], a, opts)
			if m != nil {
				m.BatchDuration.Record(ctx, time.Since(start).Seconds())
				status := "ok"
				if err != nil {
					status = "error"
				}
				m.RecordBatchJob(ctx, status)
			}
			return out, err
		}
	}

	results, err := batch.Run(ctx, numWorkers, jobs)
	if err != nil {
		return nil, err
	}
	out := make([]BatchResult, len(results))
	for i, r := range results {
		out[i] = BatchResult{Outputs: r.Value, Err: r.Err}
	}
	return out, nil
}
