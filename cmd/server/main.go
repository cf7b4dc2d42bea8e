package main

import (
	"context"
	"log/slog"
	"os"

	"insurecalc-backend/config"
	"insurecalc-backend/handlers"
	"insurecalc-backend/logging"
	"insurecalc-backend/metrics"
	"insurecalc-backend/repository"
	"insurecalc-backend/sandbox"
	"insurecalc-backend/service"
	"insurecalc-backend/storage"
)

func main() {
	logging.Setup()
	config.LoadDotEnv()

	cfg, err := config.FromEnv()
	if err != nil {
		fatal("Invalid configuration", err)
	}
	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))

	ctx := context.Background()

	// Initialize storage
	store, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		fatal("Failed to initialize storage", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "type", cfg.Storage.Type)

	recorder := metrics.New()

	// Initialize repositories
	historyRepo := repository.NewHistoryRepository(store)
	credentialRepo := repository.NewCredentialRepository(store)
	recorder.SetHistorySize(len(historyRepo.List(ctx)))

	if cfg.GeminiAPIKey == "" {
		slog.Info("GEMINI_API_KEY not set, AI calculations need a key from the user")
	}

	// Initialize services
	calcService := service.NewCalculationService(
		service.WithHistoryRepository(historyRepo),
		service.WithCredentialRepository(credentialRepo),
		service.WithSplitPipeline(service.NewSplitPipeline(cfg.Generator(), service.PipelineWithMetrics(recorder))),
		service.WithExecutor(sandbox.NewExecutor(sandbox.WithTimeout(cfg.SandboxTimeout))),
		service.WithMetrics(recorder),
		service.WithDefaultAPIKey(cfg.GeminiAPIKey),
	)

	r, err := handlers.NewRouter(calcService, recorder)
	if err != nil {
		fatal("Failed to build router", err)
	}

	slog.Info("Server starting",
		"port", cfg.Port,
		"gemini_transport", cfg.GeminiTransport,
		"gemini_model", cfg.GeminiModel,
	)
	if err := r.Run(":" + cfg.Port); err != nil {
		fatal("Failed to start server", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
