package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"insurecalc-backend/calculator"
	"insurecalc-backend/metrics"
	"insurecalc-backend/models"
	"insurecalc-backend/repository"
	"insurecalc-backend/sandbox"
)

// CalculationService handles both calculation paths and the records they
// leave behind. Only one calculation runs at a time.
type CalculationService struct {
	historyRepo    *repository.HistoryRepository
	credentialRepo *repository.CredentialRepository
	pipeline       *SplitPipeline
	executor       *sandbox.Executor
	metrics        *metrics.Recorder
	defaultAPIKey  string
	inFlight       *semaphore.Weighted
}

// CalculationServiceOption is a functional option for CalculationService
type CalculationServiceOption func(*CalculationService)

// WithHistoryRepository sets the history repository
func WithHistoryRepository(repo *repository.HistoryRepository) CalculationServiceOption {
	return func(s *CalculationService) {
		s.historyRepo = repo
	}
}

// WithCredentialRepository sets the credential repository
func WithCredentialRepository(repo *repository.CredentialRepository) CalculationServiceOption {
	return func(s *CalculationService) {
		s.credentialRepo = repo
	}
}

// WithSplitPipeline sets the AI pipeline
func WithSplitPipeline(p *SplitPipeline) CalculationServiceOption {
	return func(s *CalculationService) {
		s.pipeline = p
	}
}

// WithExecutor sets the sandbox used to run generated code
func WithExecutor(e *sandbox.Executor) CalculationServiceOption {
	return func(s *CalculationService) {
		s.executor = e
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) CalculationServiceOption {
	return func(s *CalculationService) {
		s.metrics = m
	}
}

// WithDefaultAPIKey sets a server-side key used when the request carries
// none and nothing is remembered.
func WithDefaultAPIKey(key string) CalculationServiceOption {
	return func(s *CalculationService) {
		s.defaultAPIKey = strings.TrimSpace(key)
	}
}

// NewCalculationService creates a new calculation service
func NewCalculationService(opts ...CalculationServiceOption) *CalculationService {
	s := &CalculationService{inFlight: semaphore.NewWeighted(1)}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = sandbox.NewExecutor()
	}
	return s
}

// CalculateRequest represents one calculation submitted from the form, the
// API or the CLI.
type CalculateRequest struct {
	Mode          models.CalculationMode
	InitialAmount float64
	Coverage      models.CoverageSpec
	APIKey        string // AI mode only; empty falls back to the remembered key
	RememberKey   bool
}

// CalculateResult represents a successful calculation
type CalculateResult struct {
	Mode          models.CalculationMode
	InitialAmount float64
	Split         models.AmountSplit
	Explanation   string
	Code          *models.GeneratedCode // AI mode only
	Entry         *models.HistoryEntry  // nil when the history could not be written
}

// Calculate runs the manual or AI path. A second call while one is running
// fails immediately with ErrCalculationInProgress.
func (s *CalculationService) Calculate(ctx context.Context, req CalculateRequest) (*CalculateResult, error) {
	if !s.inFlight.TryAcquire(1) {
		return nil, ErrCalculationInProgress
	}
	defer s.inFlight.Release(1)

	var (
		result   *CalculateResult
		err      error
		calcType models.CalculationType
	)
	switch req.Mode {
	case models.ModeManual:
		calcType = models.CalculationManual
		result, err = s.calculateManual(req)
	case models.ModeAI:
		calcType = models.CalculationAI
		result, err = s.calculateAI(ctx, req)
	default:
		err = ErrInvalidMode
	}

	if err != nil {
		code, _, _ := Describe(err)
		s.metrics.ObserveCalculation(string(calcType), code)
		slog.Info("Calculation rejected", "mode", req.Mode, "code", code, "error", err)
		return nil, err
	}
	s.metrics.ObserveCalculation(string(calcType), "ok")

	result.Entry = s.record(ctx, calcType, result)
	return result, nil
}

func (s *CalculationService) calculateManual(req CalculateRequest) (*CalculateResult, error) {
	// terms belong to the AI path and are ignored here
	coverage := models.CoverageSpec{
		Percentage:  req.Coverage.Percentage,
		FixedAmount: req.Coverage.FixedAmount,
	}

	split, err := calculator.Compute(req.InitialAmount, coverage)
	if err != nil {
		return nil, err
	}

	return &CalculateResult{
		Mode:          models.ModeManual,
		InitialAmount: req.InitialAmount,
		Split:         split,
	}, nil
}

func (s *CalculationService) calculateAI(ctx context.Context, req CalculateRequest) (*CalculateResult, error) {
	if err := calculator.ValidateInitialAmount(req.InitialAmount); err != nil {
		return nil, err
	}
	terms, err := calculator.ValidateTerms(req.Coverage.Terms)
	if err != nil {
		return nil, err
	}

	apiKey, err := s.resolveAPIKey(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.pipeline == nil {
		return nil, errors.New("split pipeline not set")
	}

	code, err := s.pipeline.RequestSplit(ctx, apiKey, req.InitialAmount, terms)
	if err != nil {
		return nil, err
	}

	outcome, err := s.executor.Execute(ctx, code.Source, req.InitialAmount)
	if err != nil {
		s.metrics.ObserveSandbox("error")
		slog.Warn("Generated code failed", "error", sandbox.Summary(err))
		return nil, err
	}
	s.metrics.ObserveSandbox("ok")

	if err := calculator.ValidateSplit(req.InitialAmount, outcome.InsuranceAmount, outcome.PatientAmount); err != nil {
		slog.Warn("Generated split rejected",
			"initial", req.InitialAmount,
			"insurance", outcome.InsuranceAmount,
			"patient", outcome.PatientAmount,
			"error", err,
		)
		return nil, err
	}

	return &CalculateResult{
		Mode:          models.ModeAI,
		InitialAmount: req.InitialAmount,
		Split: models.AmountSplit{
			InsuranceAmount: outcome.InsuranceAmount,
			PatientAmount:   outcome.PatientAmount,
		},
		Explanation: outcome.Explanation,
		Code:        &code,
	}, nil
}

// resolveAPIKey prefers the request key, then the remembered key, then the
// server default. A key supplied with the request is remembered or forgotten
// according to RememberKey.
func (s *CalculationService) resolveAPIKey(ctx context.Context, req CalculateRequest) (string, error) {
	if key := strings.TrimSpace(req.APIKey); key != "" {
		if s.credentialRepo != nil {
			if err := s.credentialRepo.Save(ctx, key, req.RememberKey); err != nil {
				slog.Warn("Failed to update remembered API key", "error", err)
			}
		}
		return key, nil
	}

	if s.credentialRepo != nil {
		if cred := s.credentialRepo.Load(ctx); cred.APIKey != "" {
			return cred.APIKey, nil
		}
	}

	if s.defaultAPIKey != "" {
		return s.defaultAPIKey, nil
	}
	return "", ErrMissingCredential
}

// record appends the result to the history. Failures are logged only.
func (s *CalculationService) record(ctx context.Context, calcType models.CalculationType, result *CalculateResult) *models.HistoryEntry {
	if s.historyRepo == nil {
		return nil
	}

	entry := models.HistoryEntry{
		InitialAmount:   result.InitialAmount,
		InsuranceAmount: result.Split.InsuranceAmount,
		PatientAmount:   result.Split.PatientAmount,
		CalculationType: calcType,
	}
	if result.Explanation != "" {
		explanation := result.Explanation
		entry.Explanation = &explanation
	}

	saved, err := s.historyRepo.Record(ctx, entry)
	if err != nil {
		slog.Warn("Failed to save calculation to history", "error", err)
		return nil
	}
	s.metrics.SetHistorySize(len(s.historyRepo.List(ctx)))
	return &saved
}
