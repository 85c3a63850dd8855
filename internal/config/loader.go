package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known backend names per pipeline stage. Used by
// [Validate] to warn about likely typos.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper-http"},
	"llm": {"gemini", "openai"},
	"tts": {"google", "elevenlabs"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Hard errors are
// joined and returned; soft issues (unknown backend names, missing optional
// sections) are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Room.URL == "" {
		errs = append(errs, errors.New("room.url is required"))
	}
	if cfg.Token.ServiceURL == "" {
		errs = append(errs, errors.New("token.service_url is required"))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	for _, fb := range cfg.Providers.STTFallbacks {
		validateProviderName("stt", fb.Name)
	}
	for _, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	for _, fb := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", fb.Name)
	}

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if s := cfg.Segmenter; s.PositiveThreshold != 0 && s.NegativeThreshold > s.PositiveThreshold {
		errs = append(errs, fmt.Errorf("segmenter.negative_threshold %.2f exceeds positive_threshold %.2f",
			s.NegativeThreshold, s.PositiveThreshold))
	}

	if v := cfg.Providers.TTS.Voice; v.SpeakingRate != 0 && (v.SpeakingRate < 0.25 || v.SpeakingRate > 4.0) {
		errs = append(errs, fmt.Errorf("providers.tts.voice.speaking_rate %.2f is out of range [0.25, 4.0]", v.SpeakingRate))
	}
	if v := cfg.Providers.TTS.Voice; v.Pitch < -20 || v.Pitch > 20 {
		errs = append(errs, fmt.Errorf("providers.tts.voice.pitch %.2f is out of range [-20, 20]", v.Pitch))
	}

	if cfg.Reply.Temperature < 0 || cfg.Reply.Temperature > 2 {
		errs = append(errs, fmt.Errorf("reply.temperature %.2f is out of range [0, 2]", cfg.Reply.Temperature))
	}
	if cfg.Reply.ChunkMaxLen < 0 {
		errs = append(errs, fmt.Errorf("reply.chunk_max_len %d must not be negative", cfg.Reply.ChunkMaxLen))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given stage.
func validateProviderName(stage, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[stage]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party backend",
		"stage", stage,
		"name", name,
		"known", known,
	)
}
