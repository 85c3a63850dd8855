// Command duplytalk runs the duplex voice pipeline: it reads float32 PCM
// capture frames from stdin (pipe `arecord`/`sox` into it), segments speech,
// drives each turn through STT → completion → TTS, plays the synthesized
// reply to stdout as int16 PCM, and republishes both microphone and reply
// audio into the configured media room.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rdxlabs/duplytalk/internal/config"
	"github.com/rdxlabs/duplytalk/internal/gateway"
	"github.com/rdxlabs/duplytalk/internal/health"
	"github.com/rdxlabs/duplytalk/internal/observe"
	"github.com/rdxlabs/duplytalk/internal/orchestrator"
	"github.com/rdxlabs/duplytalk/internal/resilience"
	"github.com/rdxlabs/duplytalk/internal/segment"
	"github.com/rdxlabs/duplytalk/internal/token"
	"github.com/rdxlabs/duplytalk/internal/transcript"
	"github.com/rdxlabs/duplytalk/pkg/audio"
	"github.com/rdxlabs/duplytalk/pkg/provider/llm"
	"github.com/rdxlabs/duplytalk/pkg/provider/llm/gemini"
	"github.com/rdxlabs/duplytalk/pkg/provider/llm/openai"
	"github.com/rdxlabs/duplytalk/pkg/provider/stt"
	"github.com/rdxlabs/duplytalk/pkg/provider/stt/whisperhttp"
	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
	"github.com/rdxlabs/duplytalk/pkg/provider/tts/elevenlabs"
	"github.com/rdxlabs/duplytalk/pkg/provider/tts/googletts"
	"github.com/rdxlabs/duplytalk/pkg/provider/vad"
	"github.com/rdxlabs/duplytalk/pkg/provider/vad/energy"
	"github.com/rdxlabs/duplytalk/pkg/room/ws"
)

const defaultSampleRate = 16000

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "duplytalk: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "duplytalk: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("duplytalk starting",
		"config", *configPath,
		"room", cfg.Room.URL,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Metrics ───────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownMetrics, err := observe.InitProvider(promReg, "duplytalk")
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(ctx); err != nil {
			slog.Warn("metrics shutdown", "err", err)
		}
	}()
	metrics, err := observe.Default()
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sttProv, err := buildSTT(cfg, reg)
	if err != nil {
		slog.Error("failed to create stt provider", "err", err)
		return 1
	}
	llmProv, err := buildLLM(cfg, reg)
	if err != nil {
		slog.Error("failed to create llm provider", "err", err)
		return 1
	}
	ttsProv, err := buildTTS(cfg, reg)
	if err != nil {
		slog.Error("failed to create tts provider", "err", err)
		return 1
	}
	vadEngine, err := buildVAD(cfg, reg)
	if err != nil {
		slog.Error("failed to create vad engine", "err", err)
		return 1
	}

	gw, err := gateway.New(sttProv, llmProv, ttsProv, gateway.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to create gateway", "err", err)
		return 1
	}

	tokens, err := token.NewClient(cfg.Token.ServiceURL)
	if err != nil {
		slog.Error("failed to create token client", "err", err)
		return 1
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	sampleRate := cfg.Audio.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	frameSize := cfg.Audio.FrameSize
	if frameSize == 0 {
		frameSize = sampleRate * 20 / 1000
	}

	orch, err := orchestrator.New(
		orchestrator.Config{
			RoomURL:    cfg.Room.URL,
			RoomName:   cfg.Room.Name,
			Identity:   cfg.Room.Identity,
			SampleRate: sampleRate,
			Segmenter: segment.Config{
				SampleRate:        sampleRate,
				PositiveThreshold: cfg.Segmenter.PositiveThreshold,
				NegativeThreshold: cfg.Segmenter.NegativeThreshold,
				RedemptionFrames:  cfg.Segmenter.RedemptionFrames,
			},
			SystemPrompt:   cfg.Reply.SystemPrompt,
			Temperature:    defaultFloat(cfg.Reply.Temperature, 0.1),
			TopP:           defaultFloat(cfg.Reply.TopP, 0.1),
			TopK:           defaultInt(cfg.Reply.TopK, 1),
			MaxTokens:      defaultInt(cfg.Reply.MaxTokens, 256),
			Voice:          voiceProfile(cfg.Providers.TTS.Voice),
			ChunkMaxLen:    cfg.Reply.ChunkMaxLen,
			PublishReplies: cfg.Room.PublishReplies,
		},
		orchestrator.Deps{
			Tokens:  tokens,
			Rooms:   ws.New(),
			VAD:     vadEngine,
			Gateway: gw,
			Capture: func() (audio.Source, error) {
				return audio.NewReaderSource(os.Stdin, sampleRate, frameSize), nil
			},
			Decoder: &audio.PCMDecoder{SampleRate: sampleRate},
			Sink:    &audio.WriterSink{W: os.Stdout},
		},
		orchestrator.WithMetrics(metrics),
		orchestrator.WithCorrector(transcript.New(cfg.Hotwords)),
		orchestrator.WithObserver(orchestrator.Observer{
			OnTranscript: func(text string) { slog.Info("you said", "text", text) },
			OnReply:      func(text string) { slog.Info("reply", "text", text) },
		}),
	)
	if err != nil {
		slog.Error("failed to create orchestrator", "err", err)
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		health.New(health.Checker{
			Name: "pipeline",
			Check: func(context.Context) error {
				if s := orch.State(); s != orchestrator.StateConnected {
					return fmt.Errorf("pipeline is %s", s)
				}
				return nil
			},
		}).Register(mux)
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := orch.Connect(ctx); err != nil {
		slog.Error("connect failed", "err", err)
		return 1
	}
	slog.Info("connected — speak into the capture pipe, press Ctrl+C to hang up")

	<-ctx.Done()
	slog.Info("shutdown signal received, hanging up…")
	if err := orch.Disconnect(); err != nil {
		slog.Warn("disconnect", "err", err)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the backend factories that ship with
// duplytalk into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("whisper-http", func(entry config.ProviderEntry) (stt.Provider, error) {
		return whisperhttp.New(entry.BaseURL)
	})

	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(entry.APIKey, opts...)
	})
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("google", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []googletts.Option
		if entry.BaseURL != "" {
			opts = append(opts, googletts.WithBaseURL(entry.BaseURL))
		}
		return googletts.New(entry.APIKey, opts...)
	})
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// buildSTT creates the primary transcription backend and, when fallbacks are
// configured, wraps the set in a failover group with per-backend circuit
// breakers.
func buildSTT(cfg *config.Config, reg *config.Registry) (stt.Provider, error) {
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	if len(cfg.Providers.STTFallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewSTTFallback(primary, cfg.Providers.STT.Name, resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.STTFallbacks {
		fb, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, fb)
		slog.Info("stt fallback registered", "name", entry.Name)
	}
	return group, nil
}

// buildLLM mirrors buildSTT for the completion stage.
func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	if len(cfg.Providers.LLMFallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.LLMFallbacks {
		fb, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, fb)
		slog.Info("llm fallback registered", "name", entry.Name)
	}
	return group, nil
}

// buildVAD resolves the speech detector through the registry, defaulting to
// the built-in energy detector when the config names none.
func buildVAD(cfg *config.Config, reg *config.Registry) (vad.Engine, error) {
	entry := cfg.Providers.VAD
	if entry.Name == "" {
		entry.Name = "energy"
	}
	eng, err := reg.CreateVAD(entry)
	if err != nil {
		return nil, fmt.Errorf("create vad engine %q: %w", entry.Name, err)
	}
	return eng, nil
}

// buildTTS creates the primary synthesis backend and, when fallbacks are
// configured, wraps the set in a failover group with per-backend circuit
// breakers.
func buildTTS(cfg *config.Config, reg *config.Registry) (tts.Provider, error) {
	primary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	if len(cfg.Providers.TTSFallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewTTSFallback(primary, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.TTSFallbacks {
		fb, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, fb)
		slog.Info("tts fallback registered", "name", entry.Name)
	}
	return group, nil
}

func voiceProfile(v config.VoiceConfig) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:           v.ID,
		LanguageCode: v.LanguageCode,
		SpeakingRate: v.SpeakingRate,
		Pitch:        v.Pitch,
	}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func defaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
