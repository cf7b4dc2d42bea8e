package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"insurecalc-backend/gemini"
	"insurecalc-backend/metrics"
	"insurecalc-backend/models"
)

var ErrCodeExtractionFailed = errors.New("could not extract valid Go code from AI response")

// codePattern matches from the function header to the first closing brace
// at the start of a line.
var codePattern = regexp.MustCompile(`func calculateInsurance\([\s\S]*?\n}`)

// SplitPipeline turns natural-language terms into a generated calculation
// function. It performs exactly one generation request per call.
type SplitPipeline struct {
	generator gemini.Generator
	metrics   *metrics.Recorder
	now       func() time.Time
}

// PipelineOption is a functional option for SplitPipeline
type PipelineOption func(*SplitPipeline)

// PipelineWithMetrics records generation latency
func PipelineWithMetrics(m *metrics.Recorder) PipelineOption {
	return func(p *SplitPipeline) {
		p.metrics = m
	}
}

// NewSplitPipeline creates a pipeline over the given generator
func NewSplitPipeline(generator gemini.Generator, opts ...PipelineOption) *SplitPipeline {
	p := &SplitPipeline{generator: generator, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RequestSplit prompts the model and extracts the calculateInsurance function.
func (p *SplitPipeline) RequestSplit(ctx context.Context, apiKey string, initialAmount float64, terms string) (models.GeneratedCode, error) {
	if p.generator == nil {
		return models.GeneratedCode{}, errors.New("generator not set")
	}

	start := time.Now()
	text, err := p.generator.Generate(ctx, apiKey, BuildPrompt(initialAmount, terms))
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = fmt.Errorf("%w: %w", err, ctx.Err())
	}
	p.metrics.ObserveGeneration(generationOutcome(err), time.Since(start))
	if err != nil {
		return models.GeneratedCode{}, err
	}

	code, err := ExtractCode(text)
	if err != nil {
		slog.Warn("AI response did not contain a calculation function", "response_length", len(text))
		return models.GeneratedCode{}, err
	}

	return models.GeneratedCode{
		Source:        code,
		Terms:         terms,
		InitialAmount: initialAmount,
		GeneratedAt:   p.now(),
	}, nil
}

// ExtractCode returns the first calculateInsurance function found in text.
func ExtractCode(text string) (string, error) {
	code := codePattern.FindString(text)
	if code == "" {
		return "", ErrCodeExtractionFailed
	}
	return code, nil
}

func generationOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	code, _, _ := Describe(err)
	return code
}
