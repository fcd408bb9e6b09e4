// Package observe provides application-wide observability primitives for
// the decoder service: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all decoder metrics.
const meterName = "github.com/MrWong99/beamctc"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// DecodeDuration tracks end-to-end single-sequence decode latency
	// (Feed over all frames plus Finish).
	DecodeDuration metric.Float64Histogram

	// FrameDuration tracks per-timestep beam-update latency.
	FrameDuration metric.Float64Histogram

	// LMScoreDuration tracks the latency of scorer calls folded into the
	// beam recurrence at scoring boundaries.
	LMScoreDuration metric.Float64Histogram

	// BatchDuration tracks wall-clock latency of one DecodeBatch job.
	BatchDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts timesteps fed into a decoder across all
	// sequences. Use with attribute: attribute.String("status", ...)
	FramesProcessed metric.Int64Counter

	// PrefixesPruned counts trie nodes removed by beam-size pruning.
	PrefixesPruned metric.Int64Counter

	// LabelsRejectedByCutoff counts candidate labels discarded by the
	// CutoffProb/CutoffTopN pruning step before they ever reach the beam.
	LabelsRejectedByCutoff metric.Int64Counter

	// DictionaryRejections counts prefix extensions refused by a
	// [trie.Matcher] because they would leave the lexicon.
	DictionaryRejections metric.Int64Counter

	// BatchJobs counts individual sequences processed by DecodeBatch. Use
	// with attribute: attribute.String("status", "ok"|"error")
	BatchJobs metric.Int64Counter

	// --- Gauges ---

	// BeamWidth tracks the number of live prefixes in the most recently
	// committed frame of the active decoders.
	BeamWidth metric.Int64UpDownCounter

	// ActiveDecoders tracks the number of in-flight DecoderState instances.
	ActiveDecoders metric.Int64UpDownCounter

	// ActiveBatchWorkers tracks the number of batch worker goroutines
	// currently holding a semaphore permit.
	ActiveBatchWorkers metric.Int64UpDownCounter

	// --- HTTP / WebSocket middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-frame and per-sequence decode latencies, which run well under a
// second in steady state.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecodeDuration, err = m.Float64Histogram("beamctc.decode.duration",
		metric.WithDescription("Latency of a single-sequence decode (Feed+Finish)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("beamctc.frame.duration",
		metric.WithDescription("Latency of a single beam-update timestep."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LMScoreDuration, err = m.Float64Histogram("beamctc.lm_score.duration",
		metric.WithDescription("Latency of a scorer call at a scoring boundary."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("beamctc.batch.duration",
		metric.WithDescription("Wall-clock latency of one DecodeBatch job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("beamctc.frames.processed",
		metric.WithDescription("Total timesteps fed into decoders."),
	); err != nil {
		return nil, err
	}
	if met.PrefixesPruned, err = m.Int64Counter("beamctc.prefixes.pruned",
		metric.WithDescription("Total trie nodes removed by beam-size pruning."),
	); err != nil {
		return nil, err
	}
	if met.LabelsRejectedByCutoff, err = m.Int64Counter("beamctc.labels.rejected_by_cutoff",
		metric.WithDescription("Total candidate labels discarded by cutoff pruning."),
	); err != nil {
		return nil, err
	}
	if met.DictionaryRejections, err = m.Int64Counter("beamctc.dictionary.rejections",
		metric.WithDescription("Total prefix extensions refused by the lexicon matcher."),
	); err != nil {
		return nil, err
	}
	if met.BatchJobs, err = m.Int64Counter("beamctc.batch.jobs",
		metric.WithDescription("Total sequences processed by DecodeBatch, by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.BeamWidth, err = m.Int64UpDownCounter("beamctc.beam.width",
		metric.WithDescription("Number of live prefixes in the most recently committed frame."),
	); err != nil {
		return nil, err
	}
	if met.ActiveDecoders, err = m.Int64UpDownCounter("beamctc.active_decoders",
		metric.WithDescription("Number of in-flight DecoderState instances."),
	); err != nil {
		return nil, err
	}
	if met.ActiveBatchWorkers, err = m.Int64UpDownCounter("beamctc.active_batch_workers",
		metric.WithDescription("Number of batch worker goroutines currently running."),
	); err != nil {
		return nil, err
	}

	// HTTP/WS middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("beamctc.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame is a convenience method that records a processed timestep.
func (m *Metrics) RecordFrame(ctx context.Context, status string) {
	m.FramesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordPruned is a convenience method that records prefixes removed by
// beam-size pruning in a single frame.
func (m *Metrics) RecordPruned(ctx context.Context, count int64) {
	if count == 0 {
		return
	}
	m.PrefixesPruned.Add(ctx, count)
}

// RecordCutoffRejection is a convenience method that records a label
// discarded by cutoff pruning before it reached the beam.
func (m *Metrics) RecordCutoffRejection(ctx context.Context, count int64) {
	if count == 0 {
		return
	}
	m.LabelsRejectedByCutoff.Add(ctx, count)
}

// RecordDictionaryRejection is a convenience method that records a prefix
// extension refused by the lexicon matcher.
func (m *Metrics) RecordDictionaryRejection(ctx context.Context) {
	m.DictionaryRejections.Add(ctx, 1)
}

// RecordBatchJob is a convenience method that records a batch job outcome.
func (m *Metrics) RecordBatchJob(ctx context.Context, status string) {
	m.BatchJobs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
