// Package whisperhttp provides an [stt.Provider] backed by a Whisper
// transcription server speaking the common multipart HTTP protocol:
// POST /transcribe with a `file` form part, JSON `{"text": "..."}` back.
package whisperhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rdxlabs/duplytalk/pkg/provider/stt"
)

const defaultTimeout = 30 * time.Second

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client (used by tests and for custom
// transports). The default client carries a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithFilename overrides the filename sent in the multipart part. Some servers
// sniff the container format from the extension. Default "audio.wav".
func WithFilename(name string) Option {
	return func(p *Provider) { p.filename = name }
}

// Provider implements [stt.Provider] against a Whisper HTTP server.
type Provider struct {
	baseURL    string
	filename   string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// New creates a Provider for the server at baseURL (e.g. "http://localhost:8001").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("whisperhttp: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		filename:   "audio.wav",
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// transcribeResponse is the JSON body returned by the server.
type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe implements [stt.Provider] via multipart POST /transcribe.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (stt.Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", p.filename)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: build form: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcribe", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Transcript{}, fmt.Errorf("whisperhttp: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: decode response: %w", err)
	}
	return stt.Transcript{Text: strings.TrimSpace(tr.Text)}, nil
}
