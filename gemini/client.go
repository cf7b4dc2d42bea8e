// Package gemini sends a single prompt to the Gemini generateContent endpoint
// and returns the generated text. Two transports are available: a plain REST
// client and one built on the generative-ai-go SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash-exp"
	DefaultTimeout = 60 * time.Second
)

var (
	ErrInvalidCredential = errors.New("invalid API key")
	ErrPermissionDenied  = errors.New("API access denied")
	ErrNetwork           = errors.New("network error")
	ErrMalformedResponse = errors.New("invalid response format from API")
)

// RequestFailedError is returned for any non-2xx status other than 401/403.
type RequestFailedError struct {
	Status int
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("API request failed with status %d", e.Status)
}

// Generator performs one generation request with the caller's API key.
type Generator interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// GenerationConfig mirrors the generationConfig block of the request body.
type GenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopK            int32   `json:"topK"`
	TopP            float32 `json:"topP"`
	MaxOutputTokens int32   `json:"maxOutputTokens"`
}

// DefaultGenerationConfig keeps the model close to deterministic.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.1,
		TopK:            1,
		TopP:            1,
		MaxOutputTokens: 1000,
	}
}

// statusError maps an HTTP status code onto the package's error kinds.
func statusError(code int) error {
	switch code {
	case 401:
		return ErrInvalidCredential
	case 403:
		return ErrPermissionDenied
	default:
		return &RequestFailedError{Status: code}
	}
}
