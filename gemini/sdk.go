package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SDKClient generates through the generative-ai-go client library. A client
// is built per call because the key comes with each request.
type SDKClient struct {
	model    string
	config   GenerationConfig
	timeout  time.Duration
	endpoint string
	opts     []option.ClientOption
}

// SDKOption is a functional option for SDKClient
type SDKOption func(*SDKClient)

// WithSDKTimeout bounds each Generate call, on top of any caller deadline
func WithSDKTimeout(d time.Duration) SDKOption {
	return func(c *SDKClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSDKBaseURL points the client at another API root. A trailing API
// version such as /v1beta is dropped since the SDK adds its own.
func WithSDKBaseURL(baseURL string) SDKOption {
	return func(c *SDKClient) {
		c.endpoint = sdkEndpoint(baseURL)
	}
}

// WithSDKGenerationConfig replaces the default sampling parameters
func WithSDKGenerationConfig(cfg GenerationConfig) SDKOption {
	return func(c *SDKClient) {
		c.config = cfg
	}
}

// WithSDKClientOptions appends client options after the API key
func WithSDKClientOptions(opts ...option.ClientOption) SDKOption {
	return func(c *SDKClient) {
		c.opts = append(c.opts, opts...)
	}
}

// NewSDKClient creates an SDK-backed generator
func NewSDKClient(model string, opts ...SDKOption) *SDKClient {
	if model == "" {
		model = DefaultModel
	}
	c := &SDKClient{
		model:   model,
		config:  DefaultGenerationConfig(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-call deadline
func (c *SDKClient) Timeout() time.Duration { return c.timeout }

// Endpoint returns the overridden API root, or "" for the SDK default
func (c *SDKClient) Endpoint() string { return c.endpoint }

func (c *SDKClient) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if c.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(c.endpoint))
	}
	clientOpts = append(clientOpts, c.opts...)

	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create Gemini client: %v", ErrNetwork, err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	model.SetTemperature(c.config.Temperature)
	model.SetTopK(c.config.TopK)
	model.SetTopP(c.config.TopP)
	model.SetMaxOutputTokens(c.config.MaxOutputTokens)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		// keep the deadline visible so callers can tell a timeout apart
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrNetwork, ctxErr)
		}
		return "", classifySDKError(err)
	}
	return responseText(resp)
}

// sdkEndpoint turns a REST base URL into the host root the SDK expects.
func sdkEndpoint(baseURL string) string {
	endpoint := strings.TrimRight(baseURL, "/")
	if i := strings.LastIndex(endpoint, "/"); i >= 0 {
		if v := endpoint[i+1:]; v == "v1" || strings.HasPrefix(v, "v1beta") || strings.HasPrefix(v, "v1alpha") {
			endpoint = endpoint[:i]
		}
	}
	return endpoint
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrMalformedResponse
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", ErrMalformedResponse
	}

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", ErrMalformedResponse
	}
	return b.String(), nil
}

func classifySDKError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			return statusError(code)
		}
		if grpcErr := grpcStatusError(apiErr.GRPCStatus()); grpcErr != nil {
			return grpcErr
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return statusError(gErr.Code)
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.OK && s.Code() != codes.Unknown {
		if grpcErr := grpcStatusError(s); grpcErr != nil {
			return grpcErr
		}
	}

	// anything else never produced an HTTP status
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func grpcStatusError(s *status.Status) error {
	if s == nil {
		return nil
	}
	switch s.Code() {
	case codes.Unauthenticated:
		return ErrInvalidCredential
	case codes.PermissionDenied:
		return ErrPermissionDenied
	case codes.InvalidArgument:
		return &RequestFailedError{Status: 400}
	case codes.ResourceExhausted:
		return &RequestFailedError{Status: 429}
	case codes.Unavailable:
		return &RequestFailedError{Status: 503}
	case codes.Internal:
		return &RequestFailedError{Status: 500}
	}
	return nil
}
