// Package config collects the server and CLI settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"insurecalc-backend/gemini"
	"insurecalc-backend/sandbox"
	"insurecalc-backend/storage"
)

// Transport selects how Gemini is called
type Transport string

const (
	TransportREST Transport = "rest"
	TransportSDK  Transport = "sdk"
)

// Config holds every setting read at startup
type Config struct {
	Port     string
	LogLevel string

	GeminiAPIKey    string // optional server-side default
	GeminiModel     string
	GeminiBaseURL   string
	GeminiTransport Transport
	GeminiTimeout   time.Duration
	SandboxTimeout  time.Duration

	Storage storage.StorageConfig
}

// LoadDotEnv loads .env from the working directory, falling back to the
// project root when run from cmd/<name>/.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			slog.Debug("No .env file found, using environment variables")
		}
	}
}

// FromEnv reads the configuration from environment variables
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		GeminiAPIKey:    strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:     getenv("GEMINI_MODEL", gemini.DefaultModel),
		GeminiBaseURL:   getenv("GEMINI_BASE_URL", gemini.DefaultBaseURL),
		GeminiTransport: Transport(strings.ToLower(getenv("GEMINI_TRANSPORT", string(TransportREST)))),
		Storage:         storage.ConfigFromEnv(),
	}

	var err error
	if cfg.GeminiTimeout, err = durationEnv("GEMINI_TIMEOUT", gemini.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.SandboxTimeout, err = durationEnv("SANDBOX_TIMEOUT", sandbox.DefaultTimeout); err != nil {
		return nil, err
	}

	switch cfg.GeminiTransport {
	case TransportREST, TransportSDK:
	default:
		return nil, fmt.Errorf("unknown GEMINI_TRANSPORT: %s", cfg.GeminiTransport)
	}

	return cfg, nil
}

// Generator builds the Gemini client selected by GeminiTransport
func (c *Config) Generator() gemini.Generator {
	if c.GeminiTransport == TransportSDK {
		opts := []gemini.SDKOption{gemini.WithSDKTimeout(c.GeminiTimeout)}
		if c.GeminiBaseURL != gemini.DefaultBaseURL {
			opts = append(opts, gemini.WithSDKBaseURL(c.GeminiBaseURL))
		}
		return gemini.NewSDKClient(c.GeminiModel, opts...)
	}
	return gemini.NewRESTClient(
		gemini.WithBaseURL(c.GeminiBaseURL),
		gemini.WithModel(c.GeminiModel),
		gemini.WithHTTPClient(&http.Client{Timeout: c.GeminiTimeout}),
	)
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive duration such as 30s", key, raw)
	}
	return d, nil
}
