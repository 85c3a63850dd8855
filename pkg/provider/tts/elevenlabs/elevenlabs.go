// Package elevenlabs provides a [tts.Provider] backed by the ElevenLabs HTTP
// synthesis endpoint (POST /v1/text-to-speech/{voice_id}), returning the
// encoded audio bytes directly.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rdxlabs/duplytalk/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io/v1"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	defaultTimeout   = 30 * time.Second
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g. "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the audio output format (e.g. "pcm_16000", "mp3_44100_128").
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements [tts.Provider] backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	httpClient   *http.Client
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates an ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

// synthesizeRequest is the JSON body for the synthesis endpoint.
type synthesizeRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// apiError is the JSON error envelope returned on non-2xx responses.
type apiError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// policyStatuses are detail.status values that denote an account-policy
// refusal. "detected_unusual_activity" is the free-tier abuse heuristic;
// remediation is an account upgrade, not a retry.
var policyStatuses = map[string]bool{
	"detected_unusual_activity": true,
	"quota_exceeded":            true,
	"voice_limit_reached":       true,
}

// Synthesize implements [tts.Provider].
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.SynthesizedAudio, error) {
	if text == "" {
		return tts.SynthesizedAudio{}, errors.New("elevenlabs: text must not be empty")
	}
	if voice.ID == "" {
		return tts.SynthesizedAudio{}, errors.New("elevenlabs: voice.ID must not be empty")
	}

	body := synthesizeRequest{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           voice.SpeakingRate,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", p.baseURL, voice.ID, p.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && policyStatuses[ae.Detail.Status] {
			return tts.SynthesizedAudio{}, &tts.PolicyError{
				Provider: "elevenlabs",
				Code:     ae.Detail.Status,
				Message:  ae.Detail.Message,
			}
		}
		return tts.SynthesizedAudio{}, fmt.Errorf("elevenlabs: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(data) == 0 {
		return tts.SynthesizedAudio{}, errors.New("elevenlabs: empty audio response")
	}
	return tts.SynthesizedAudio{Data: data, MIMEType: resp.Header.Get("Content-Type")}, nil
}
