// Package observe provides the observability primitives for duplytalk:
// OpenTelemetry metric instruments for the voice pipeline and a Prometheus
// exporter bridge so they remain scrapeable via /metrics.
//
// A package-level default [Metrics] instance is available through [Default];
// tests should use [NewMetrics] with their own [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all duplytalk metrics.
const meterName = "github.com/rdxlabs/duplytalk"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency per chunk.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks the full utterance-to-last-playback turn time.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed conversation turns. Use with attribute:
	//   attribute.String("outcome", "completed"|"empty"|"error"|"cancelled")
	Turns metric.Int64Counter

	// StageErrors counts collaborator failures. Use with attributes:
	//   attribute.String("stage", "stt"|"llm"|"tts"|"decode"),
	//   attribute.String("kind", "policy"|"transport")
	StageErrors metric.Int64Counter

	// PublishedTracks counts synthesized-audio tracks published to the room.
	PublishedTracks metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live room sessions (0 or 1 per
	// orchestrator).
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("duplytalk.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("duplytalk.llm.duration",
		metric.WithDescription("Latency of reply completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("duplytalk.tts.duration",
		metric.WithDescription("Latency of speech synthesis per chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("duplytalk.turn.duration",
		metric.WithDescription("End-to-end conversation turn time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("duplytalk.turns",
		metric.WithDescription("Completed conversation turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("duplytalk.stage.errors",
		metric.WithDescription("Collaborator failures by pipeline stage."),
	); err != nil {
		return nil, err
	}
	if met.PublishedTracks, err = m.Int64Counter("duplytalk.room.published_tracks",
		metric.WithDescription("Synthesized-audio tracks published to the room."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("duplytalk.room.active_sessions",
		metric.WithDescription("Live room sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
	defaultErr     error
)

// Default returns the shared [Metrics] instance built from the global OTel
// meter provider. The first call wins; call [InitProvider] before using it so
// instruments bind to the Prometheus bridge.
func Default() (*Metrics, error) {
	defaultOnce.Do(func() {
		defaultMetrics, defaultErr = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics, defaultErr
}
