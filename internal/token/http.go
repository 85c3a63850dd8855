package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Handler serves GET /token?identity=<id>&room=<name>. A missing identity gets
// a generated one; a missing room falls back to the configured default.
func Handler(issuer *Issuer, defaultRoom string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /token", func(w http.ResponseWriter, r *http.Request) {
		identity := r.URL.Query().Get("identity")
		if identity == "" {
			identity = fmt.Sprintf("user_%d", time.Now().UnixMilli())
		}
		roomName := r.URL.Query().Get("room")
		if roomName == "" {
			roomName = defaultRoom
		}

		cred, err := issuer.Issue(identity, roomName)
		if err != nil {
			slog.Error("token: issue failed", "identity", identity, "room", roomName, "err", err)
			http.Error(w, "token issue failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(cred); err != nil {
			slog.Warn("token: write response", "err", err)
		}
	})
	return mux
}

// Client fetches join credentials from a token endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// NewClient creates a credential fetcher for the issuing service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("token: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Fetch requests a credential for identity scoped to roomName. Either value
// may be empty, in which case the service chooses.
func (c *Client) Fetch(ctx context.Context, identity, roomName string) (Credential, error) {
	q := url.Values{}
	if identity != "" {
		q.Set("identity", identity)
	}
	if roomName != "" {
		q.Set("room", roomName)
	}
	u := c.baseURL + "/token"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("token: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("token: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Credential{}, fmt.Errorf("token: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return Credential{}, fmt.Errorf("token: decode response: %w", err)
	}
	if cred.Token == "" {
		return Credential{}, errors.New("token: response carried no token")
	}
	return cred, nil
}
