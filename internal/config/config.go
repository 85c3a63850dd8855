// Package config provides the configuration schema, loader and provider
// registry for the duplytalk voice pipeline.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration for the duplytalk pipeline. It is loaded
// from a YAML file with [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Room      RoomConfig      `yaml:"room"`
	Token     TokenConfig     `yaml:"token"`
	Audio     AudioConfig     `yaml:"audio"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Providers ProvidersConfig `yaml:"providers"`
	Reply     ReplyConfig     `yaml:"reply"`
	Hotwords  []string        `yaml:"hotwords"`
}

// ServerConfig holds the local observability endpoint and logging settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address serving /metrics and /healthz
	// (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// RoomConfig describes the realtime media room to join.
type RoomConfig struct {
	// URL is the media-gateway websocket endpoint (e.g., "wss://rooms.example.com/ws").
	URL string `yaml:"url"`

	// Name scopes the join credential. Empty lets the token service choose.
	Name string `yaml:"name"`

	// Identity is the participant identity. Empty lets the token service choose.
	Identity string `yaml:"identity"`

	// PublishReplies republishes synthesized reply audio into the room as
	// ad-hoc tracks. Local playback happens regardless.
	PublishReplies bool `yaml:"publish_replies"`
}

// TokenConfig holds both sides of the join-credential contract: the client
// endpoint used by the pipeline and the issuer settings used by tokend.
type TokenConfig struct {
	// ServiceURL is the base URL of the token-issuing service used by the
	// pipeline client (e.g., "http://localhost:8780").
	ServiceURL string `yaml:"service_url"`

	// Issuer configures the issuing side. Only tokend reads this.
	Issuer TokenIssuerConfig `yaml:"issuer"`
}

// TokenIssuerConfig is the tokend service configuration.
type TokenIssuerConfig struct {
	// ListenAddr is the TCP address tokend listens on (e.g., ":8780").
	ListenAddr string `yaml:"listen_addr"`

	// APIKey identifies the issuing application (the JWT issuer claim).
	APIKey string `yaml:"api_key"`

	// APISecret signs credentials. Required for tokend.
	APISecret string `yaml:"api_secret"`

	// TTLSeconds is the credential lifetime. Zero means 10 minutes.
	TTLSeconds int `yaml:"ttl_seconds"`

	// DefaultRoom is granted when a request names no room.
	DefaultRoom string `yaml:"default_room"`
}

// AudioConfig holds capture parameters.
type AudioConfig struct {
	// SampleRate of capture frames in Hz. Zero means 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is samples per capture frame. Zero means 20 ms at SampleRate.
	FrameSize int `yaml:"frame_size"`
}

// SegmenterConfig holds the utterance-boundary thresholds. Zero values take
// the segment package defaults (0.85 / 0.70 / 12).
type SegmenterConfig struct {
	PositiveThreshold float64 `yaml:"positive_threshold"`
	NegativeThreshold float64 `yaml:"negative_threshold"`
	RedemptionFrames  int     `yaml:"redemption_frames"`
}

// ProvidersConfig selects the backend for each pipeline stage. Each entry's
// Name is looked up in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	// VAD selects the speech detector driving utterance segmentation. An
	// empty name means the built-in energy detector.
	VAD ProviderEntry `yaml:"vad"`

	// STTFallbacks, LLMFallbacks and TTSFallbacks list additional backends
	// per stage, tried in order when the primary fails or its circuit
	// breaker is open.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. Name selects the registered constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend (e.g., "gemini", "whisper-http").
	Name string `yaml:"name"`

	// APIKey authenticates against the backend, when it needs one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the backend.
	Model string `yaml:"model"`

	// Voice configures synthesis backends; ignored by the other kinds.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the synthesis voice parameters.
type VoiceConfig struct {
	// ID is the backend-specific voice identifier.
	ID string `yaml:"id"`

	// LanguageCode is a BCP-47 tag (e.g., "en-US").
	LanguageCode string `yaml:"language_code"`

	// SpeakingRate adjusts speaking speed in [0.25, 4.0]. Zero means default.
	SpeakingRate float64 `yaml:"speaking_rate"`

	// Pitch adjusts pitch in semitones within [-20, 20]. Zero means default.
	Pitch float64 `yaml:"pitch"`
}

// ReplyConfig shapes the completion request and the synthesis chunking.
type ReplyConfig struct {
	// SystemPrompt is prepended to every completion request.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature, TopP and TopK keep the reply low-variance. Zero values
	// mean 0.1 / 0.1 / 1.
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	TopK        int     `yaml:"top_k"`

	// MaxTokens bounds the reply length. Zero means 256.
	MaxTokens int `yaml:"max_tokens"`

	// ChunkMaxLen bounds each synthesis chunk in characters. Zero means 120.
	ChunkMaxLen int `yaml:"chunk_max_len"`
}
