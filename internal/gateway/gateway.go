// Package gateway bundles the cascade's upstream collaborators behind one
// facade. The orchestrator talks to a [Gateway] instead of three separate
// providers, and the gateway is where per-stage latency and error metrics are
// recorded so provider implementations stay free of observability concerns.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rdxlabs/duplytalk/internal/observe"
	"github.com/rdxlabs/duplytalk/pkg/provider/llm"
	"github.com/rdxlabs/duplytalk/pkg/provider/stt"
	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
)

// Gateway fronts the STT, LLM and TTS providers for one pipeline.
type Gateway struct {
	stt     stt.Provider
	llm     llm.Provider
	tts     tts.Provider
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithMetrics attaches metric instruments. Without it the gateway records
// nothing.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger overrides the logger (default slog.Default).
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// New creates a Gateway over the given providers. All three are required.
func New(sttProv stt.Provider, llmProv llm.Provider, ttsProv tts.Provider, opts ...Option) (*Gateway, error) {
	if sttProv == nil || llmProv == nil || ttsProv == nil {
		return nil, errors.New("gateway: stt, llm and tts providers are all required")
	}
	g := &Gateway{
		stt: sttProv,
		llm: llmProv,
		tts: ttsProv,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Transcribe runs speech-to-text over a WAV-encoded utterance.
func (g *Gateway) Transcribe(ctx context.Context, wav []byte) (stt.Transcript, error) {
	start := time.Now()
	tr, err := g.stt.Transcribe(ctx, wav)
	g.observe(ctx, "stt", g.metricsSTT(), start, err)
	if err != nil {
		return stt.Transcript{}, err
	}
	return tr, nil
}

// Respond generates the assistant reply for a user turn.
func (g *Gateway) Respond(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := g.llm.Complete(ctx, req)
	g.observe(ctx, "llm", g.metricsLLM(), start, err)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		g.log.Warn("gateway: completion truncated at token limit")
	}
	return resp, nil
}

// Synthesize converts one reply chunk to audio.
func (g *Gateway) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.SynthesizedAudio, error) {
	start := time.Now()
	out, err := g.tts.Synthesize(ctx, text, voice)
	g.observe(ctx, "tts", g.metricsTTS(), start, err)
	if err != nil {
		return tts.SynthesizedAudio{}, err
	}
	return out, nil
}

func (g *Gateway) metricsSTT() metric.Float64Histogram {
	if g.metrics == nil {
		return nil
	}
	return g.metrics.STTDuration
}

func (g *Gateway) metricsLLM() metric.Float64Histogram {
	if g.metrics == nil {
		return nil
	}
	return g.metrics.LLMDuration
}

func (g *Gateway) metricsTTS() metric.Float64Histogram {
	if g.metrics == nil {
		return nil
	}
	return g.metrics.TTSDuration
}

// observe records stage latency and, on failure, a stage error classified as
// policy or transport.
func (g *Gateway) observe(ctx context.Context, stage string, hist metric.Float64Histogram, start time.Time, err error) {
	if hist != nil {
		hist.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("stage", stage)))
	}
	if err == nil || g.metrics == nil {
		return
	}
	kind := "transport"
	var policyErr *tts.PolicyError
	if errors.As(err, &policyErr) {
		kind = "policy"
	}
	g.metrics.StageErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	))
}
