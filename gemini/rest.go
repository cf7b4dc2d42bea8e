package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// MaxResponseBytes caps how much of a response body is read. A reply limited
// to 1000 output tokens is a few KB.
const MaxResponseBytes = 4 << 20

// RESTClient calls generateContent over plain HTTPS with the key passed as a
// query parameter.
type RESTClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	config     GenerationConfig
}

// RESTOption is a functional option for RESTClient
type RESTOption func(*RESTClient)

// WithBaseURL overrides the API root, e.g. for tests.
func WithBaseURL(baseURL string) RESTOption {
	return func(c *RESTClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithModel sets the model name
func WithModel(model string) RESTOption {
	return func(c *RESTClient) {
		c.model = model
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(client *http.Client) RESTOption {
	return func(c *RESTClient) {
		c.httpClient = client
	}
}

// WithGenerationConfig replaces the default sampling parameters
func WithGenerationConfig(cfg GenerationConfig) RESTOption {
	return func(c *RESTClient) {
		c.config = cfg
	}
}

// NewRESTClient creates a REST generator
func NewRESTClient(opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		config:     DefaultGenerationConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

// Generate sends exactly one request. There are no retries.
func (c *RESTClient) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: c.config,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the key, so the transport error is not logged verbatim
		slog.Warn("Gemini request failed", "model", c.model, "error", redact(err.Error(), apiKey))
		return "", fmt.Errorf("%w: %s", ErrNetwork, redact(err.Error(), apiKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}
	if len(raw) > MaxResponseBytes {
		slog.Warn("Gemini response too large", "status", resp.StatusCode, "limit", MaxResponseBytes)
		return "", fmt.Errorf("%w: response exceeds %d bytes", ErrMalformedResponse, MaxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("Gemini API error", "status", resp.StatusCode, "body", truncate(string(raw), 512))
		return "", statusError(resp.StatusCode)
	}

	var apiResp generateResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(apiResp.Candidates) == 0 || apiResp.Candidates[0].Content == nil ||
		len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", ErrMalformedResponse
	}

	candidate := apiResp.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
		slog.Debug("Gemini candidate finished early", "reason", candidate.FinishReason)
	}

	return candidate.Content.Parts[0].Text, nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(secret), "REDACTED")
	return strings.ReplaceAll(s, secret, "REDACTED")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
