// Package googletts provides a [tts.Provider] backed by the Google Cloud
// Text-to-Speech REST API (text:synthesize). The response carries the encoded
// audio as base64; this provider decodes it and returns the raw bytes.
package googletts

import (
	"bytes"
	"context"
	"encoding/base64"
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
	defaultBaseURL = "https://texttospeech.googleapis.com/v1"
	defaultTimeout = 30 * time.Second

	// defaultVoice is a clear, slightly higher-pitched en-US WaveNet voice.
	defaultVoice = "en-US-Wavenet-F"
)

// Encoding selects the audio container returned by the API.
type Encoding string

const (
	// EncodingMP3 returns MPEG audio — compact, needs a platform decoder.
	EncodingMP3 Encoding = "MP3"

	// EncodingLinear16 returns 16-bit PCM in a WAV container, decodable by
	// [audio.PCMDecoder] without external help.
	EncodingLinear16 Encoding = "LINEAR16"
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithEncoding sets the output encoding (default LINEAR16).
func WithEncoding(enc Encoding) Option {
	return func(p *Provider) { p.encoding = enc }
}

// WithSampleRate sets the output sample rate in Hz for PCM encodings.
func WithSampleRate(hz int) Option {
	return func(p *Provider) { p.sampleRate = hz }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements [tts.Provider] against the Google Cloud TTS REST API.
type Provider struct {
	apiKey     string
	baseURL    string
	encoding   Encoding
	sampleRate int
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates a Provider authenticated with an API key.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("googletts: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		encoding:   EncodingLinear16,
		sampleRate: 16000,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

type synthesizeRequest struct {
	Input       synthesisInput  `json:"input"`
	Voice       voiceSelection  `json:"voice"`
	AudioConfig audioConfig     `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type audioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	Pitch           float64 `json:"pitch,omitempty"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize implements [tts.Provider].
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.SynthesizedAudio, error) {
	if text == "" {
		return tts.SynthesizedAudio{}, errors.New("googletts: text must not be empty")
	}

	name := voice.ID
	if name == "" {
		name = defaultVoice
	}
	lang := voice.LanguageCode
	if lang == "" {
		// Voice names embed their language tag ("en-US-Wavenet-F" → "en-US").
		if parts := strings.SplitN(name, "-", 3); len(parts) >= 2 {
			lang = parts[0] + "-" + parts[1]
		}
	}

	body := synthesizeRequest{
		Input: synthesisInput{Text: text},
		Voice: voiceSelection{LanguageCode: lang, Name: name},
		AudioConfig: audioConfig{
			AudioEncoding: string(p.encoding),
			SpeakingRate:  voice.SpeakingRate,
			Pitch:         voice.Pitch,
		},
	}
	if p.encoding == EncodingLinear16 {
		body.AudioConfig.SampleRateHertz = p.sampleRate
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("googletts: encode request: %w", err)
	}

	url := p.baseURL + "/text:synthesize?key=" + p.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("googletts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("googletts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && policyStatus(er.Error.Status) {
			return tts.SynthesizedAudio{}, &tts.PolicyError{
				Provider: "googletts",
				Code:     er.Error.Status,
				Message:  er.Error.Message,
			}
		}
		return tts.SynthesizedAudio{}, fmt.Errorf("googletts: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("googletts: decode response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(sr.AudioContent)
	if err != nil {
		return tts.SynthesizedAudio{}, fmt.Errorf("googletts: decode audio content: %w", err)
	}

	mime := "audio/wav"
	if p.encoding == EncodingMP3 {
		mime = "audio/mpeg"
	}
	return tts.SynthesizedAudio{Data: data, MIMEType: mime}, nil
}

// policyStatus reports whether the API status string denotes an account-policy
// refusal rather than a transient failure.
func policyStatus(status string) bool {
	switch status {
	case "PERMISSION_DENIED", "RESOURCE_EXHAUSTED":
		return true
	}
	return false
}
