package gateway

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/rdxlabs/duplytalk/internal/observe"
	"github.com/rdxlabs/duplytalk/pkg/provider/llm"
	llmmock "github.com/rdxlabs/duplytalk/pkg/provider/llm/mock"
	"github.com/rdxlabs/duplytalk/pkg/provider/stt"
	sttmock "github.com/rdxlabs/duplytalk/pkg/provider/stt/mock"
	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
	ttsmock "github.com/rdxlabs/duplytalk/pkg/provider/tts/mock"
)

func TestNew_RequiresAllProviders(t *testing.T) {
	if _, err := New(nil, &llmmock.Provider{}, &ttsmock.Provider{}); err == nil {
		t.Error("nil stt accepted")
	}
	if _, err := New(&sttmock.Provider{}, nil, &ttsmock.Provider{}); err == nil {
		t.Error("nil llm accepted")
	}
	if _, err := New(&sttmock.Provider{}, &llmmock.Provider{}, nil); err == nil {
		t.Error("nil tts accepted")
	}
}

func TestGateway_PassThrough(t *testing.T) {
	sttProv := &sttmock.Provider{
		Results: []sttmock.Result{{Transcript: stt.Transcript{Text: "hello there"}}},
	}
	llmProv := &llmmock.Provider{
		Results: []llmmock.Result{{Response: &llm.CompletionResponse{Text: "hi!"}}},
	}
	ttsProv := &ttsmock.Provider{
		Results: []ttsmock.Result{{Audio: tts.SynthesizedAudio{Data: []byte{1, 2}, MIMEType: "audio/wav"}}},
	}

	g, err := New(sttProv, llmProv, ttsProv)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	tr, err := g.Transcribe(ctx, []byte("RIFF..."))
	if err != nil || tr.Text != "hello there" {
		t.Errorf("transcribe = %+v, %v", tr, err)
	}

	resp, err := g.Respond(ctx, llm.CompletionRequest{Prompt: "hello there"})
	if err != nil || resp.Text != "hi!" {
		t.Errorf("respond = %+v, %v", resp, err)
	}

	out, err := g.Synthesize(ctx, "hi!", tts.VoiceProfile{ID: "v1"})
	if err != nil || !bytes.Equal(out.Data, []byte{1, 2}) {
		t.Errorf("synthesize = %+v, %v", out, err)
	}
	if calls := ttsProv.Calls(); len(calls) != 1 || calls[0].Voice.ID != "v1" {
		t.Errorf("tts calls = %+v", ttsProv.Calls())
	}
}

func TestGateway_ErrorsPropagate(t *testing.T) {
	wantErr := errors.New("service down")
	g, err := New(
		&sttmock.Provider{Results: []sttmock.Result{{Err: wantErr}}},
		&llmmock.Provider{Results: []llmmock.Result{{Err: wantErr}}},
		&ttsmock.Provider{Results: []ttsmock.Result{{Err: wantErr}}},
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, err := g.Transcribe(ctx, nil); !errors.Is(err, wantErr) {
		t.Errorf("transcribe err = %v", err)
	}
	if _, err := g.Respond(ctx, llm.CompletionRequest{Prompt: "x"}); !errors.Is(err, wantErr) {
		t.Errorf("respond err = %v", err)
	}
	if _, err := g.Synthesize(ctx, "x", tts.VoiceProfile{}); !errors.Is(err, wantErr) {
		t.Errorf("synthesize err = %v", err)
	}
}

func TestGateway_WarnsOnTruncatedReply(t *testing.T) {
	var buf bytes.Buffer
	g, err := New(
		&sttmock.Provider{},
		&llmmock.Provider{Results: []llmmock.Result{
			{Response: &llm.CompletionResponse{Text: "cut off", Truncated: true}},
		}},
		&ttsmock.Provider{},
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := g.Respond(context.Background(), llm.CompletionRequest{Prompt: "x"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(buf.String(), "truncated") {
		t.Errorf("no truncation warning logged: %q", buf.String())
	}
}

// stageErrorCount digs the stage-error counter value for the given attributes
// out of collected metric data.
func stageErrorCount(t *testing.T, rm metricdata.ResourceMetrics, stage, kind string) int64 {
	t.Helper()
	want := attribute.NewSet(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "duplytalk.stage.errors" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("stage.errors has unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestGateway_RecordsStageErrors(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	g, err := New(
		&sttmock.Provider{Results: []sttmock.Result{{Err: errors.New("timeout")}}},
		&llmmock.Provider{},
		&ttsmock.Provider{Results: []ttsmock.Result{{Err: &tts.PolicyError{
			Provider: "elevenlabs",
			Code:     "detected_unusual_activity",
			Message:  "free tier disabled",
		}}}},
		WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	g.Transcribe(ctx, nil)
	g.Synthesize(ctx, "x", tts.VoiceProfile{})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := stageErrorCount(t, rm, "stt", "transport"); got != 1 {
		t.Errorf("stt transport errors = %d, want 1", got)
	}
	if got := stageErrorCount(t, rm, "tts", "policy"); got != 1 {
		t.Errorf("tts policy errors = %d, want 1", got)
	}
}
